package cli

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/app"
	"github.com/roach88/chronicle/internal/command"
	"github.com/roach88/chronicle/internal/dispatch"
	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
)

// EventView is the output form of one event.
type EventView struct {
	EventID     string `json:"event_id"`
	AggregateID string `json:"aggregate_id"`
	Type        string `json:"type"`
	Version     int64  `json:"version"`
	Timestamp   string `json:"timestamp"`
	Summary     string `json:"summary"`
}

func newEventView(ev event.Event) EventView {
	return EventView{
		EventID:     ev.EventID,
		AggregateID: ev.AggregateID,
		Type:        string(ev.Type),
		Version:     ev.Version,
		Timestamp:   event.FormatTimestamp(ev.Timestamp),
		Summary:     entity.Summary(ev),
	}
}

// CommandResult is printed after an accepted command.
type CommandResult struct {
	Event    EventView `json:"event"`
	Attempts int       `json:"attempts"`
	// ProjectionErrors lists projectors that failed on the event. The
	// event is committed; a rebuild repairs the projection.
	ProjectionErrors []string `json:"projection_errors,omitempty"`
}

func (r CommandResult) String() string {
	return fmt.Sprintf("%s@%d %s", r.Event.AggregateID, r.Event.Version, r.Event.Summary)
}

// runCommand opens the app, runs one command and reports its outcome.
func runCommand(opts *RootOptions, cmd *cobra.Command, fn func(context.Context, *command.Service) (command.Outcome, error)) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		out, err := fn(ctx, a.Commands)
		if err != nil {
			return err
		}

		f := opts.formatter(cmd)
		res := CommandResult{
			Event:    newEventView(out.Event),
			Attempts: out.Attempts,
			ProjectionErrors: lo.Map(out.ProjectionErrors, func(pf *dispatch.ProjectorFailure, _ int) string {
				return pf.Error()
			}),
		}
		for _, msg := range res.ProjectionErrors {
			f.Warn("%s (run 'chronicle rebuild' to repair the projection)", msg)
		}
		f.VerboseLog("event %s appended after %d attempt(s)", out.Event.EventID, out.Attempts)
		return f.Success(res)
	})
}

// CreateOptions holds flags for the create command.
type CreateOptions struct {
	*RootOptions
	ID     string
	Fields map[string]string
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create <kind> <title>",
		Short: "Create an entity",
		Long: `Create an entity of the given kind. Its id is generated from the kind's
prefix unless --id is given.

Examples:
  chronicle create goal "Ship the importer"
  chronicle create task "Write docs" --field owner=sam --field area=docs
  chronicle create decision "Use SQLite" --id dc-sqlite`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(opts.RootOptions, cmd, func(ctx context.Context, svc *command.Service) (command.Outcome, error) {
				if opts.ID != "" {
					return svc.CreateWithID(ctx, opts.ID, args[0], args[1], opts.Fields)
				}
				return svc.Create(ctx, args[0], args[1], opts.Fields)
			})
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "explicit entity id")
	cmd.Flags().StringToStringVar(&opts.Fields, "field", nil, "initial field as key=value (repeatable)")

	return cmd
}

// NewRenameCommand creates the rename command.
func NewRenameCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Change an entity's title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(rootOpts, cmd, func(ctx context.Context, svc *command.Service) (command.Outcome, error) {
				return svc.Rename(ctx, args[0], args[1])
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move an entity to another status",
		Long: `Move an entity to another status. The kind's catalog entry lists the
allowed transitions; run 'chronicle kinds' to see them.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(rootOpts, cmd, func(ctx context.Context, svc *command.Service) (command.Outcome, error) {
				return svc.SetStatus(ctx, args[0], args[1])
			})
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <key> [value]",
		Short: "Set or clear a free-form field",
		Long: `Set a free-form field on an entity. Omitting the value clears the field.

Examples:
  chronicle set tk-x1y2 owner sam
  chronicle set tk-x1y2 owner`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 3 {
				value = args[2]
			}
			return runCommand(rootOpts, cmd, func(ctx context.Context, svc *command.Service) (command.Outcome, error) {
				return svc.SetField(ctx, args[0], args[1], value)
			})
		},
	}
}

// NewSupersedeCommand creates the supersede command.
func NewSupersedeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "supersede <id> <target>",
		Short: "Mark an entity as replacing another of the same kind",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(rootOpts, cmd, func(ctx context.Context, svc *command.Service) (command.Outcome, error) {
				return svc.Supersede(ctx, args[0], args[1])
			})
		},
	}
}

// RemoveOptions holds flags for the remove command.
type RemoveOptions struct {
	*RootOptions
	Reason string
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an entity",
		Long: `Remove an entity. Its stream is kept; the projected row is flagged as
removed and further commands against it are rejected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(opts.RootOptions, cmd, func(ctx context.Context, svc *command.Service) (command.Outcome, error) {
				return svc.Remove(ctx, args[0], opts.Reason)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Reason, "reason", "", "why the entity was removed")

	return cmd
}
