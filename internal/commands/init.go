package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/config"
)

func newInitCommand(opts *rootOptions) *cobra.Command {
	var driver string
	var noChart bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			absDir, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}

			return runInit(cmd, opts, absDir, driver, noChart)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", config.DriverSQLite, "storage driver (sqlite, postgres)")
	cmd.Flags().BoolVar(&noChart, "no-chart", false, "skip importing the default chart of accounts")

	return cmd
}

func runInit(cmd *cobra.Command, opts *rootOptions, dir, driver string, noChart bool) error {
	if driver == config.DriverMemory {
		return fmt.Errorf("the %s driver keeps nothing between runs; pick sqlite or postgres", driver)
	}

	dirs := []string{
		"logs",
		"import",
		filepath.Join("import", "processed"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(dir, d), 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	path := filepath.Join(dir, config.FileName)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	cfg := config.Default()
	cfg.Storage.Driver = driver
	if err := config.Save(path, cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	created := 0
	err := opts.withApp(cmd.Context(), path, func(a *app.App) error {
		if noChart {
			return nil
		}
		res, err := a.Import(cmd.Context(), opts.actor, "default chart", accounts.DefaultChart())
		if err != nil {
			return fmt.Errorf("importing default chart: %w", err)
		}
		created = res.Created
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized ledger at %s (%d accounts)\n", dir, created)
	return nil
}
