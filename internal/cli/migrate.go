package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"veto/internal/storage/postgres"
)

// NewMigrateCommand creates the migrate command and its up/down/version
// subcommands.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres URL (defaults to VETO_DATABASE_URL)")

	resolveURL := func() (string, error) {
		if databaseURL != "" {
			return databaseURL, nil
		}
		cfg, err := rootOpts.loadConfig()
		if err != nil {
			return "", err
		}
		if cfg.Database.URL == "" {
			return "", errors.New("no database URL: pass --database-url or set VETO_DATABASE_URL")
		}
		return cfg.Database.URL, nil
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveURL()
			if err != nil {
				return err
			}
			if err := postgres.Migrate(url); err != nil {
				return err
			}
			return printVersion(rootOpts, cmd.OutOrStdout(), url)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveURL()
			if err != nil {
				return err
			}
			if err := postgres.MigrateDown(url); err != nil {
				return err
			}
			return printVersion(rootOpts, cmd.OutOrStdout(), url)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveURL()
			if err != nil {
				return err
			}
			return printVersion(rootOpts, cmd.OutOrStdout(), url)
		},
	})

	return cmd
}

type versionResult struct {
	Version uint `json:"version"`
	Dirty   bool `json:"dirty"`
}

func printVersion(opts *RootOptions, w io.Writer, url string) error {
	version, dirty, err := postgres.MigrationVersion(url)
	if err != nil {
		return err
	}
	res := versionResult{Version: version, Dirty: dirty}
	return opts.output(w, res, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "schema version %d (dirty: %t)\n", res.Version, res.Dirty)
		return err
	})
}
