package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Popie52/offlinesync/internal/bootstrap"
	"github.com/Popie52/offlinesync/internal/model"
	"github.com/Popie52/offlinesync/internal/store"
)

// openStore loads config and opens the configured store for a one-shot
// command. The caller closes it.
func (o *RootOptions) openStore() (store.ActionStore, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	st, err := bootstrap.OpenStore(cfg.Store)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return st, nil
}

func NewEnqueueCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <kind> [payload]",
		Short: "Record a pending action",
		Long: `Record a pending action in the local store. It is delivered by the next
sync pass, either from a running "serve" or from "sync".

Example:
  offlinesync enqueue small "like post 42"
  offlinesync enqueue large ./photo.jpg --format json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "enqueue", err)
			}
			payload := ""
			if len(args) == 2 {
				payload = args[1]
			}

			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			a, err := st.Enqueue(cmd.Context(), kind, payload)
			if err != nil {
				return WrapExitError(ExitCommandError, "enqueue", err)
			}

			return rootOpts.formatter(cmd).Success(a, func(w io.Writer) {
				fmt.Fprintf(w, "enqueued %s (%s, priority %d)\n", a.ID, a.Kind.Label(), a.Priority)
			})
		},
	}
}

func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded actions",
		Long: `List actions in display order: pending ones in the order they will be
sent, then completed ones, most recent first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := rootOpts.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			var actions []*model.Action
			switch status {
			case "all":
				actions, err = st.ListAll(ctx)
			case string(model.StatusPending):
				actions, err = st.ListPending(ctx)
			case string(model.StatusCompleted):
				actions, err = st.ListCompleted(ctx)
			default:
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid status %q: must be pending, completed or all", status))
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "list", err)
			}

			return rootOpts.formatter(cmd).Success(actions, func(w io.Writer) {
				writeActionTable(w, actions)
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "all", "filter by status (pending|completed|all)")
	return cmd
}

func writeActionTable(w io.Writer, actions []*model.Action) {
	if len(actions) == 0 {
		fmt.Fprintln(w, "no actions")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTATUS\tRETRIES\tCREATED\tPAYLOAD")
	for _, a := range actions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			a.ID, a.Kind.Label(), a.Status.Label(), a.RetryCount,
			time.UnixMilli(a.CreatedAt).UTC().Format(time.RFC3339),
			truncate(a.Payload, 40),
		)
	}
	tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pending, completed and exhausted counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rootOpts.load()
			if err != nil {
				return err
			}
			st, err := bootstrap.OpenStore(cfg.Store)
			if err != nil {
				return WrapExitError(ExitCommandError, "open store", err)
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context(), cfg.Sync.MaxRetry)
			if err != nil {
				return WrapExitError(ExitCommandError, "stats", err)
			}

			return rootOpts.formatter(cmd).Success(stats, func(w io.Writer) {
				fmt.Fprintf(w, "pending:   %d\n", stats.Pending)
				fmt.Fprintf(w, "completed: %d\n", stats.Completed)
				fmt.Fprintf(w, "exhausted: %d (max retry %d)\n", stats.Exhausted, cfg.Sync.MaxRetry)
			})
		},
	}
}
