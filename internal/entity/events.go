package entity

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/chronicle/internal/event"
)

// Event types emitted by the entity aggregate.
const (
	Created       event.Type = "Created"
	Renamed       event.Type = "Renamed"
	StatusChanged event.Type = "StatusChanged"
	FieldSet      event.Type = "FieldSet"
	Superseded    event.Type = "Superseded"
	Removed       event.Type = "Removed"
)

// EventTypes lists every entity event type.
var EventTypes = []event.Type{Created, Renamed, StatusChanged, FieldSet, Superseded, Removed}

// Payload keys.
const (
	keyKind     = "kind"
	keyTitle    = "title"
	keyStatus   = "status"
	keyFields   = "fields"
	keyPrevious = "previous"
	keyFrom     = "from"
	keyTo       = "to"
	keyKey      = "key"
	keyValue    = "value"
	keyTarget   = "target"
	keyReason   = "reason"
)

// SupersededTarget returns the id named by a Superseded event, or "" for
// any other event.
func SupersededTarget(ev event.Event) string {
	if ev.Type != Superseded {
		return ""
	}
	return ev.Payload.String(keyTarget)
}

func createdPayload(kind, title, status string, fields map[string]string) event.Payload {
	f := make(map[string]any, len(fields))
	for k, v := range fields {
		f[k] = v
	}
	return event.Payload{keyKind: kind, keyTitle: title, keyStatus: status, keyFields: f}
}

// stringFields reads the fields object of a Created payload. Values that
// are not strings are dropped; commands only ever write strings.
func stringFields(p event.Payload) map[string]string {
	out := map[string]string{}
	switch raw := p[keyFields].(type) {
	case map[string]any:
		for k, v := range raw {
			if s, ok := v.(string); ok {
				out[k] = s
			}
		}
	case map[string]string:
		maps.Copy(out, raw)
	}
	return out
}

// FieldKeys returns the keys of fields, sorted.
func FieldKeys(fields map[string]string) []string {
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Summary renders ev as a one-line description for activity feeds.
func Summary(ev event.Event) string {
	p := ev.Payload
	switch ev.Type {
	case Created:
		return fmt.Sprintf("created %s %q", p.String(keyKind), p.String(keyTitle))
	case Renamed:
		return fmt.Sprintf("renamed %q -> %q", p.String(keyPrevious), p.String(keyTitle))
	case StatusChanged:
		return fmt.Sprintf("status %s -> %s", p.String(keyFrom), p.String(keyTo))
	case FieldSet:
		if p.String(keyValue) == "" {
			return fmt.Sprintf("cleared %s", p.String(keyKey))
		}
		return fmt.Sprintf("set %s=%s", p.String(keyKey), p.String(keyValue))
	case Superseded:
		return fmt.Sprintf("supersedes %s", p.String(keyTarget))
	case Removed:
		if reason := p.String(keyReason); reason != "" {
			return fmt.Sprintf("removed (%s)", reason)
		}
		return "removed"
	default:
		return string(ev.Type)
	}
}
