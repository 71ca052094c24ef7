// Package catalog loads the entity kinds from CUE.
//
// The kinds are data, not code: every kind shares the entity reducer and
// the projection row shape. The embedded kinds.cue declares the built-in
// kinds and the #Kind schema; an optional extra CUE file is unified on top
// to add kinds or extend existing ones.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/samber/lo"
)

//go:embed kinds.cue
var builtinCUE []byte

// Kind describes one entity type.
type Kind struct {
	Name        string              `json:"-"`
	Table       string              `json:"table"`
	Prefix      string              `json:"prefix"`
	Initial     string              `json:"initial"`
	Supersedes  bool                `json:"supersedes"`
	Transitions map[string][]string `json:"transitions"`
}

// CanTransition reports whether from -> to is a legal status change.
func (k Kind) CanTransition(from, to string) bool {
	return lo.Contains(k.Transitions[from], to)
}

// HasStatus reports whether status is part of the kind's status machine.
func (k Kind) HasStatus(status string) bool {
	_, ok := k.Transitions[status]
	return ok
}

// Statuses returns every status of the kind, sorted.
func (k Kind) Statuses() []string {
	statuses := lo.Keys(k.Transitions)
	slices.Sort(statuses)
	return statuses
}

// Catalog is the validated set of kinds.
type Catalog struct {
	kinds map[string]Kind
	names []string
}

// identifierPattern guards table names, which are interpolated into SQL.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z_]*$`)

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load("")
}

// Load compiles the built-in kinds, unifies extraPath on top when set, and
// validates the result.
func Load(extraPath string) (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(builtinCUE, cue.Filename("kinds.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile built-in kinds: %w", err)
	}

	if extraPath != "" {
		src, err := os.ReadFile(extraPath)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", extraPath, err)
		}
		extra := ctx.CompileBytes(src, cue.Filename(extraPath))
		if err := extra.Err(); err != nil {
			return nil, fmt.Errorf("compile catalog %s: %w", extraPath, err)
		}
		v = v.Unify(extra)
	}

	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate kinds: %w", err)
	}

	var kinds map[string]Kind
	if err := v.LookupPath(cue.ParsePath("kinds")).Decode(&kinds); err != nil {
		return nil, fmt.Errorf("decode kinds: %w", err)
	}
	return New(kinds)
}

// New validates kinds and builds a Catalog. Exposed for tests and callers
// that assemble kinds in Go.
func New(kinds map[string]Kind) (*Catalog, error) {
	if len(kinds) == 0 {
		return nil, fmt.Errorf("catalog: no kinds defined")
	}

	c := &Catalog{kinds: make(map[string]Kind, len(kinds))}
	tables := make(map[string]string)
	prefixes := make(map[string]string)

	for name, k := range kinds {
		k.Name = name
		if err := validateKind(k); err != nil {
			return nil, err
		}
		if other, dup := tables[k.Table]; dup {
			return nil, fmt.Errorf("catalog: kinds %s and %s share table %q", other, name, k.Table)
		}
		if other, dup := prefixes[k.Prefix]; dup {
			return nil, fmt.Errorf("catalog: kinds %s and %s share prefix %q", other, name, k.Prefix)
		}
		tables[k.Table] = name
		prefixes[k.Prefix] = name
		c.kinds[name] = k
	}

	c.names = lo.Keys(c.kinds)
	slices.Sort(c.names)
	return c, nil
}

func validateKind(k Kind) error {
	if !identifierPattern.MatchString(k.Table) {
		return fmt.Errorf("catalog: kind %s: invalid table name %q", k.Name, k.Table)
	}
	if k.Prefix == "" {
		return fmt.Errorf("catalog: kind %s: prefix is required", k.Name)
	}
	if !k.HasStatus(k.Initial) {
		return fmt.Errorf("catalog: kind %s: initial status %q has no transitions entry", k.Name, k.Initial)
	}
	for from, targets := range k.Transitions {
		for _, to := range targets {
			if !k.HasStatus(to) {
				return fmt.Errorf("catalog: kind %s: transition %s -> %s targets an unknown status", k.Name, from, to)
			}
		}
	}
	return nil
}

// Kind returns the kind with the given name.
func (c *Catalog) Kind(name string) (Kind, bool) {
	k, ok := c.kinds[name]
	return k, ok
}

// Names returns the kind names, sorted.
func (c *Catalog) Names() []string {
	return slices.Clone(c.names)
}

// Kinds returns every kind, sorted by name.
func (c *Catalog) Kinds() []Kind {
	return lo.Map(c.names, func(name string, _ int) Kind { return c.kinds[name] })
}

// KindForID resolves the kind of an entity id from its prefix.
func (c *Catalog) KindForID(id string) (Kind, bool) {
	prefix, _, ok := strings.Cut(id, "-")
	if !ok {
		return Kind{}, false
	}
	return lo.Find(c.Kinds(), func(k Kind) bool { return k.Prefix == prefix })
}
