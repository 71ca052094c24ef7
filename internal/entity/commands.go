package entity

import "github.com/roach88/chronicle/internal/aggregate"

// Command is the closed set of entity commands. Every command carries the
// event id and timestamp stamped by the command handler, so Decide never
// reads a clock or a random source.
type Command interface {
	isCommand()
	meta() aggregate.Meta
}

// Create starts a new entity of Kind with the given ID. Fields are
// optional.
type Create struct {
	aggregate.Meta
	ID     string
	Kind   string
	Title  string
	Fields map[string]string
}

// Rename changes the title.
type Rename struct {
	aggregate.Meta
	Title string
}

// SetStatus moves the entity along its kind's status machine.
type SetStatus struct {
	aggregate.Meta
	Status string
}

// SetField sets Key to Value. An empty Value clears the field.
type SetField struct {
	aggregate.Meta
	Key   string
	Value string
}

// Supersede marks the entity as the replacement of Target.
type Supersede struct {
	aggregate.Meta
	Target string
}

// Remove retires the entity. Its stream stays.
type Remove struct {
	aggregate.Meta
	Reason string
}

func (Create) isCommand()    {}
func (Rename) isCommand()    {}
func (SetStatus) isCommand() {}
func (SetField) isCommand()  {}
func (Supersede) isCommand() {}
func (Remove) isCommand()    {}

func (c Create) meta() aggregate.Meta    { return c.Meta }
func (c Rename) meta() aggregate.Meta    { return c.Meta }
func (c SetStatus) meta() aggregate.Meta { return c.Meta }
func (c SetField) meta() aggregate.Meta  { return c.Meta }
func (c Supersede) meta() aggregate.Meta { return c.Meta }
func (c Remove) meta() aggregate.Meta    { return c.Meta }

// Stamp returns cmd with its event id and timestamp set to m.
func Stamp(cmd Command, m aggregate.Meta) Command {
	switch c := cmd.(type) {
	case Create:
		c.Meta = m
		return c
	case Rename:
		c.Meta = m
		return c
	case SetStatus:
		c.Meta = m
		return c
	case SetField:
		c.Meta = m
		return c
	case Supersede:
		c.Meta = m
		return c
	case Remove:
		c.Meta = m
		return c
	default:
		panic("entity: unknown command type")
	}
}

// Name returns a short label for cmd, used in logs and CLI output.
func Name(cmd Command) string {
	switch cmd.(type) {
	case Create:
		return "create"
	case Rename:
		return "rename"
	case SetStatus:
		return "status"
	case SetField:
		return "set"
	case Supersede:
		return "supersede"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}
