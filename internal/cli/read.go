package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/roach88/chronicle/internal/app"
	"github.com/roach88/chronicle/internal/catalog"
	"github.com/roach88/chronicle/internal/entity"
	"github.com/roach88/chronicle/internal/event"
	"github.com/roach88/chronicle/internal/projection"
)

// EntityView is the output form of a projected row.
type EntityView struct {
	Kind         string            `json:"kind"`
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Fields       map[string]string `json:"fields"`
	Supersedes   string            `json:"supersedes,omitempty"`
	SupersededBy string            `json:"superseded_by,omitempty"`
	Removed      bool              `json:"removed"`
	Version      int64             `json:"version"`
	UpdatedAt    string            `json:"updated_at"`
}

func newEntityView(r projection.Row) EntityView {
	return EntityView{
		Kind:         r.Kind,
		ID:           r.ID,
		Title:        r.Title,
		Status:       r.Status,
		Fields:       r.Fields,
		Supersedes:   r.Supersedes,
		SupersededBy: r.SupersededBy,
		Removed:      r.Removed,
		Version:      r.Version,
		UpdatedAt:    event.FormatTimestamp(r.UpdatedAt),
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the projected state of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				row, err := a.Live.Find(ctx, args[0])
				if err != nil {
					return err
				}
				f := rootOpts.formatter(cmd)
				view := newEntityView(row)
				if f.Format == "json" {
					return f.Success(view)
				}

				rows := [][]string{
					{"id", view.ID},
					{"kind", view.Kind},
					{"title", view.Title},
					{"status", view.Status},
					{"version", strconv.FormatInt(view.Version, 10)},
					{"updated", view.UpdatedAt},
				}
				if view.Supersedes != "" {
					rows = append(rows, []string{"supersedes", view.Supersedes})
				}
				if view.SupersededBy != "" {
					rows = append(rows, []string{"superseded by", view.SupersededBy})
				}
				if view.Removed {
					rows = append(rows, []string{"removed", "yes"})
				}
				for _, key := range entity.FieldKeys(view.Fields) {
					rows = append(rows, []string{"field." + key, view.Fields[key]})
				}
				f.Table([]string{"Property", "Value"}, rows)
				return nil
			})
		},
	}
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Status string
	All    bool
	Limit  int
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List entities of a kind",
		Long: `List entities of a kind, ordered by id. Removed entities are hidden
unless --all is given.

Examples:
  chronicle list task
  chronicle list task --status doing
  chronicle list decision --all --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				rows, err := a.Live.List(ctx, args[0], projection.Filter{
					Status:         opts.Status,
					IncludeRemoved: opts.All,
					Limit:          opts.Limit,
				})
				if err != nil {
					return err
				}
				return outputRows(opts.formatter(cmd), rows)
			})
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only entities in this status")
	cmd.Flags().BoolVar(&opts.All, "all", false, "include removed entities")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of entities (0 = no limit)")

	return cmd
}

func outputRows(f *OutputFormatter, rows []projection.Row) error {
	views := lo.Map(rows, func(r projection.Row, _ int) EntityView { return newEntityView(r) })
	if f.Format == "json" {
		return f.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(f.Writer, "No entities found.")
		return nil
	}

	f.Table([]string{"ID", "Title", "Status", "Version", "Updated"}, lo.Map(views, func(v EntityView, _ int) []string {
		status := v.Status
		if v.Removed {
			status += " (removed)"
		}
		return []string{v.ID, v.Title, status, strconv.FormatInt(v.Version, 10), v.UpdatedAt}
	}))
	return nil
}

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Limit int
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log [id]",
		Short: "Show an entity's event stream, or recent activity",
		Long: `With an id, print that entity's event stream from the log, oldest first.
Without one, print the most recent entries of the projected activity feed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				f := opts.formatter(cmd)
				if len(args) == 1 {
					return streamLog(ctx, f, a, args[0])
				}
				return recentLog(ctx, f, a, opts.Limit)
			})
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of activity entries (0 = all)")

	return cmd
}

func streamLog(ctx context.Context, f *OutputFormatter, a *app.App, id string) error {
	events, err := a.Events.ReadStream(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return &ExitError{Code: ExitFailure, Reason: "NOT_FOUND", Message: fmt.Sprintf("no events for %s", id)}
	}

	views := lo.Map(events, func(ev event.Event, _ int) EventView { return newEventView(ev) })
	if f.Format == "json" {
		return f.Success(views)
	}
	f.Table([]string{"Version", "Type", "Event ID", "At", "Summary"}, lo.Map(views, func(v EventView, _ int) []string {
		return []string{strconv.FormatInt(v.Version, 10), v.Type, v.EventID, v.Timestamp, v.Summary}
	}))
	return nil
}

func recentLog(ctx context.Context, f *OutputFormatter, a *app.App, limit int) error {
	entries, err := a.Live.Recent(ctx, limit)
	if err != nil {
		return err
	}

	views := lo.Map(entries, func(e projection.Activity, _ int) EventView {
		return EventView{
			EventID:     e.EventID,
			AggregateID: e.AggregateID,
			Type:        string(e.Type),
			Version:     e.Version,
			Timestamp:   e.At,
			Summary:     e.Summary,
		}
	})
	if f.Format == "json" {
		return f.Success(views)
	}
	if len(views) == 0 {
		fmt.Fprintln(f.Writer, "No activity yet.")
		return nil
	}
	f.Table([]string{"At", "Entity", "Version", "Summary"}, lo.Map(views, func(v EventView, _ int) []string {
		return []string{v.Timestamp, v.AggregateID, strconv.FormatInt(v.Version, 10), v.Summary}
	}))
	return nil
}

// KindView is the output form of a catalog entry.
type KindView struct {
	Name        string              `json:"name"`
	Table       string              `json:"table"`
	Prefix      string              `json:"prefix"`
	Initial     string              `json:"initial"`
	Supersedes  bool                `json:"supersedes"`
	Statuses    []string            `json:"statuses"`
	Transitions map[string][]string `json:"transitions"`
}

// NewKindsCommand creates the kinds command.
func NewKindsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "kinds",
		Short: "List entity kinds and their status machines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.CatalogFile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load catalog", err)
			}

			views := lo.Map(cat.Kinds(), func(k catalog.Kind, _ int) KindView {
				return KindView{
					Name:        k.Name,
					Table:       k.Table,
					Prefix:      k.Prefix,
					Initial:     k.Initial,
					Supersedes:  k.Supersedes,
					Statuses:    k.Statuses(),
					Transitions: k.Transitions,
				}
			})

			f := rootOpts.formatter(cmd)
			if f.Format == "json" {
				return f.Success(views)
			}
			f.Table([]string{"Kind", "Prefix", "Initial", "Supersedes", "Transitions"}, lo.Map(views, func(v KindView, _ int) []string {
				return []string{v.Name, v.Prefix, v.Initial, strconv.FormatBool(v.Supersedes), formatTransitions(v)}
			}))
			return nil
		},
	}
}

// formatTransitions renders "from>to1,to2 from2>to3" in status order,
// skipping terminal statuses.
func formatTransitions(v KindView) string {
	parts := lo.FilterMap(v.Statuses, func(from string, _ int) (string, bool) {
		targets := v.Transitions[from]
		if len(targets) == 0 {
			return "", false
		}
		return from + ">" + strings.Join(targets, ","), true
	})
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
