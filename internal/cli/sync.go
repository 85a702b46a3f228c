package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Popie52/offlinesync/internal/bootstrap"
	"github.com/Popie52/offlinesync/internal/core"
)

type syncResult struct {
	Online    bool   `json:"online"`
	Ran       bool   `json:"ran"`
	Outcome   string `json:"outcome,omitempty"`
	Attempted int    `json:"attempted"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`
	FailedID  string `json:"failed_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass and exit",
		Long: `Run a single sync pass with the configured sender. Connectivity is read
once from the configured network monitor; when offline nothing is sent.

Exits 1 when offline, when the pass stopped on a failed send, or when the
sender refused to try (circuit breaker open).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			ctx := cmd.Context()

			st, err := bootstrap.OpenStore(cfg.Store)
			if err != nil {
				return WrapExitError(ExitCommandError, "open store", err)
			}
			defer st.Close()

			s, err := bootstrap.NewSender(cfg.Sender, logger)
			if err != nil {
				return WrapExitError(ExitCommandError, "sender", err)
			}
			mon, _ := bootstrap.NewMonitor(cfg.Network, logger)

			e := core.NewEngine(st, s,
				core.WithMaxRetry(cfg.Sync.MaxRetry),
				core.WithLogger(logger.Named("engine")),
			)
			online := mon.CurrentState(ctx)
			e.SetOnline(online)

			report := e.Run(ctx)
			res := syncResult{
				Online:    online,
				Ran:       report.Ran,
				Outcome:   string(report.Outcome),
				Attempted: report.Attempted,
				Completed: report.Completed,
				Skipped:   report.Skipped,
				FailedID:  report.FailedID,
			}
			if report.Err != nil {
				res.Error = report.Err.Error()
			}

			if err := rootOpts.formatter(cmd).Success(res, func(w io.Writer) {
				writeSyncResult(w, res)
			}); err != nil {
				return err
			}

			switch {
			case !online:
				return NewExitError(ExitFailure, "offline: nothing sent")
			case report.Outcome == core.OutcomeAborted:
				return WrapExitError(ExitCommandError, "sync aborted", report.Err)
			case report.Outcome == core.OutcomeHalted:
				return WrapExitError(ExitFailure, "sync halted at "+report.FailedID, report.Err)
			case report.Outcome == core.OutcomeDeferred:
				return WrapExitError(ExitFailure, "sync deferred", report.Err)
			}
			return nil
		},
	}
}

func writeSyncResult(w io.Writer, r syncResult) {
	if !r.Online {
		fmt.Fprintln(w, "offline, no pass ran")
		return
	}
	fmt.Fprintf(w, "outcome:   %s\n", r.Outcome)
	fmt.Fprintf(w, "attempted: %d\n", r.Attempted)
	fmt.Fprintf(w, "completed: %d\n", r.Completed)
	fmt.Fprintf(w, "skipped:   %d\n", r.Skipped)
	if r.FailedID != "" {
		fmt.Fprintf(w, "failed:    %s (%s)\n", r.FailedID, r.Error)
	}
}
