package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Popie52/offlinesync/internal/store"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down>",
		Short: "Apply or roll back the SQL schema",
		Long: `Apply (up) or roll back (down) the embedded schema migrations for the
sqlite and postgres stores. The file store has no schema.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(store.MigrateUp), string(store.MigrateDown)},
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := store.Direction(args[0])
			if dir != store.MigrateUp && dir != store.MigrateDown {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid direction %q: must be up or down", args[0]))
			}

			cfg, _, err := rootOpts.load()
			if err != nil {
				return err
			}

			var dsn string
			switch cfg.Store.Driver {
			case store.DriverSQLite:
				dsn = cfg.Store.Path
			case store.DriverPostgres:
				dsn = cfg.Store.DSN
			default:
				return NewExitError(ExitCommandError, fmt.Sprintf("store driver %q has no migrations", cfg.Store.Driver))
			}

			dsn = store.DSN(cfg.Store.Driver, dsn)
			if err := store.Migrate(cfg.Store.Driver, dsn, dir); err != nil {
				return WrapExitError(ExitCommandError, "migrate", err)
			}
			version, dirty, err := store.SchemaVersion(cfg.Store.Driver, dsn)
			if err != nil {
				return WrapExitError(ExitCommandError, "migrate", err)
			}

			res := map[string]any{"direction": dir, "version": version, "dirty": dirty}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) {
				fmt.Fprintf(w, "migrated %s, schema version %d\n", dir, version)
			})
		},
	}
}
