package scenario

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/roach88/chronicle/internal/aggregate"
	"github.com/roach88/chronicle/internal/app"
	"github.com/roach88/chronicle/internal/clock"
	"github.com/roach88/chronicle/internal/command"
	"github.com/roach88/chronicle/internal/config"
	"github.com/roach88/chronicle/internal/dispatch"
	"github.com/roach88/chronicle/internal/idgen"
	"github.com/roach88/chronicle/internal/projection"
)

// Result is what a scenario run produced.
type Result struct {
	Name string
	// Transcript has one line per step.
	Transcript []string
	// Dump is the final projection dump.
	Dump string
}

// Snapshot renders the result for golden comparison.
func (r *Result) Snapshot() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# scenario %s\n", r.Name)
	for _, line := range r.Transcript {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(r.Dump)
	return []byte(b.String())
}

// Run executes s against a fresh data directory at dataDir.
//
// A step without expect_error must succeed and project cleanly; a step
// with one must be rejected with exactly that domain code. Parity and
// assertion failures are returned as errors.
func Run(ctx context.Context, s *Scenario, dataDir string) (*Result, error) {
	start, err := s.startTime()
	if err != nil {
		return nil, err
	}
	step, err := s.step()
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.DataDir = dataDir
	a, err := app.Open(cfg, app.Options{
		Clock:    clock.NewStepping(start, step),
		EventIDs: idgen.NewSequence("evt"),
	})
	if err != nil {
		return nil, err
	}
	defer a.Close()

	res := &Result{Name: s.Name}
	for i, st := range s.Steps {
		line, err := runStep(ctx, a, st)
		if err != nil {
			return res, fmt.Errorf("step %d (%s %s): %w", i+1, st.Op, st.ID, err)
		}
		res.Transcript = append(res.Transcript, fmt.Sprintf("%d %s", i+1, line))
	}

	res.Dump, err = a.Live.Dump(ctx)
	if err != nil {
		return res, err
	}

	if s.Parity {
		if _, err := a.Rebuild.Rebuild(ctx); err != nil {
			return res, fmt.Errorf("parity rebuild: %w", err)
		}
		rebuilt, err := a.Live.Dump(ctx)
		if err != nil {
			return res, err
		}
		if rebuilt != res.Dump {
			return res, fmt.Errorf("parity: rebuilt projection differs from incremental\n--- incremental\n%s--- rebuilt\n%s", res.Dump, rebuilt)
		}
	}

	if err := checkAssertions(ctx, a.Live, s.Assertions); err != nil {
		return res, err
	}
	return res, nil
}

func runStep(ctx context.Context, a *app.App, st Step) (string, error) {
	if st.Op == OpRebuild {
		r, err := a.Rebuild.Rebuild(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("rebuild -> %d events", r.EventsReplayed), nil
	}

	out, err := execute(ctx, a.Commands, st)
	if st.ExpectError != "" {
		if err == nil {
			return "", fmt.Errorf("expected %s, got %s", st.ExpectError, out.Event)
		}
		code := aggregate.CodeOf(err)
		if string(code) != st.ExpectError {
			return "", fmt.Errorf("expected %s: %w", st.ExpectError, err)
		}
		return fmt.Sprintf("%s %s -> rejected %s", st.Op, st.ID, code), nil
	}
	if err != nil {
		return "", err
	}
	if len(out.ProjectionErrors) > 0 {
		return "", errors.Join(lo.Map(out.ProjectionErrors, func(f *dispatch.ProjectorFailure, _ int) error { return f })...)
	}
	return fmt.Sprintf("%s %s -> %s", st.Op, st.ID, out.Event), nil
}

func execute(ctx context.Context, svc *command.Service, st Step) (command.Outcome, error) {
	switch st.Op {
	case OpCreate:
		return svc.CreateWithID(ctx, st.ID, st.Kind, st.Title, st.Fields)
	case OpRename:
		return svc.Rename(ctx, st.ID, st.Title)
	case OpStatus:
		return svc.SetStatus(ctx, st.ID, st.Status)
	case OpSet:
		return svc.SetField(ctx, st.ID, st.Key, st.Value)
	case OpSupersede:
		return svc.Supersede(ctx, st.ID, st.Target)
	case OpRemove:
		return svc.Remove(ctx, st.ID, st.Reason)
	}
	return command.Outcome{}, fmt.Errorf("unknown op %q", st.Op)
}

func checkAssertions(ctx context.Context, live *projection.Live, assertions []Assertion) error {
	var errs []error
	for _, as := range assertions {
		row, err := live.Get(ctx, as.Kind, as.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("assert %s %s: %w", as.Kind, as.ID, err))
			continue
		}
		keys := lo.Keys(as.Expect)
		slices.Sort(keys)
		for _, key := range keys {
			got, ok := rowValue(row, key)
			if !ok {
				errs = append(errs, fmt.Errorf("assert %s %s: unknown key %q", as.Kind, as.ID, key))
				continue
			}
			if want := fmt.Sprint(as.Expect[key]); fmt.Sprint(got) != want {
				errs = append(errs, fmt.Errorf("assert %s %s: %s = %v, want %s", as.Kind, as.ID, key, got, want))
			}
		}
	}
	return errors.Join(errs...)
}

func rowValue(row projection.Row, key string) (any, bool) {
	if name, ok := strings.CutPrefix(key, "field."); ok {
		return row.Fields[name], true
	}
	switch key {
	case "title":
		return row.Title, true
	case "status":
		return row.Status, true
	case "version":
		return row.Version, true
	case "supersedes":
		return row.Supersedes, true
	case "superseded_by":
		return row.SupersededBy, true
	case "removed":
		return row.Removed, true
	}
	return nil, false
}
