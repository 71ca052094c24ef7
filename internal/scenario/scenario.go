// Package scenario runs scripted command sequences against a fresh data
// directory and snapshots the result.
//
// A scenario is a YAML file listing commands (and optional mid-run
// rebuilds). Timestamps come from a stepping clock and event ids from a
// sequence, so a scenario always produces the same log and the same
// projection, which makes it usable as a golden test and as a demo.
package scenario

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted run.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Start is the first event timestamp (RFC 3339). Each command advances
	// the clock by Step.
	Start string `yaml:"start"`

	// Step is the clock increment per command, as a Go duration. Defaults
	// to one second.
	Step string `yaml:"step,omitempty"`

	// Parity rebuilds the projection after the last step and requires the
	// rebuilt dump to equal the incremental one.
	Parity bool `yaml:"parity,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one command or a rebuild.
type Step struct {
	Op     string            `yaml:"op"`
	ID     string            `yaml:"id,omitempty"`
	Kind   string            `yaml:"kind,omitempty"`
	Title  string            `yaml:"title,omitempty"`
	Status string            `yaml:"status,omitempty"`
	Key    string            `yaml:"key,omitempty"`
	Value  string            `yaml:"value,omitempty"`
	Target string            `yaml:"target,omitempty"`
	Reason string            `yaml:"reason,omitempty"`
	Fields map[string]string `yaml:"fields,omitempty"`

	// ExpectError is the domain error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion checks one projected row after the run. Expect is a subset
// match over title, status, version, supersedes, superseded_by, removed
// and field.<name>.
type Assertion struct {
	Kind   string         `yaml:"kind"`
	ID     string         `yaml:"id"`
	Expect map[string]any `yaml:"expect"`
}

// Step operations.
const (
	OpCreate    = "create"
	OpRename    = "rename"
	OpStatus    = "status"
	OpSet       = "set"
	OpSupersede = "supersede"
	OpRemove    = "remove"
	OpRebuild   = "rebuild"
)

// Load reads and validates a scenario file. Unknown keys are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := s.startTime(); err != nil {
		return err
	}
	if _, err := s.step(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, st := range s.Steps {
		if err := st.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	for i, a := range s.Assertions {
		if a.Kind == "" || a.ID == "" {
			return fmt.Errorf("assertion %d: kind and id are required", i+1)
		}
	}
	return nil
}

func (st Step) validate() error {
	require := func(fields map[string]string) error {
		for name, value := range fields {
			if value == "" {
				return fmt.Errorf("%s requires %s", st.Op, name)
			}
		}
		return nil
	}
	switch st.Op {
	case OpCreate:
		return require(map[string]string{"id": st.ID, "kind": st.Kind})
	case OpRename:
		return require(map[string]string{"id": st.ID})
	case OpStatus:
		return require(map[string]string{"id": st.ID, "status": st.Status})
	case OpSet:
		return require(map[string]string{"id": st.ID, "key": st.Key})
	case OpSupersede:
		return require(map[string]string{"id": st.ID, "target": st.Target})
	case OpRemove:
		return require(map[string]string{"id": st.ID})
	case OpRebuild:
		if st.ID != "" || st.ExpectError != "" {
			return fmt.Errorf("rebuild takes no arguments")
		}
		return nil
	default:
		return fmt.Errorf("unknown op %q", st.Op)
	}
}

func (s *Scenario) startTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("start: %w", err)
	}
	return t.UTC(), nil
}

func (s *Scenario) step() (time.Duration, error) {
	if s.Step == "" {
		return time.Second, nil
	}
	d, err := time.ParseDuration(s.Step)
	if err != nil {
		return 0, fmt.Errorf("step: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("step must be positive")
	}
	return d, nil
}
