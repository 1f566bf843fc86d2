package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/buildinfo"
	"github.com/cleared-dev/ledger/internal/config"
	"github.com/cleared-dev/ledger/internal/logging"
)

const dateLayout = "2006-01-02"

type rootOptions struct {
	configPath string
	actor      string
	logLevel   string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Double-entry ledger with chart-of-accounts import",
		Version: buildinfo.String(),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.FileName, "path to the ledger config file")
	flags.StringVar(&opts.actor, "actor", "", "who is acting (defaults to ledger.actor)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(
		newInitCommand(opts),
		newImportCommand(opts),
		newAccountsCommand(opts),
		newJournalCommand(opts),
		newServeCommand(opts),
	)

	return rootCmd
}

// loadConfig reads path, or defaults when it does not exist, and anchors
// relative paths at the config file's directory.
func (o *rootOptions) loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	cfg.ResolvePaths(filepath.Dir(path))
	return cfg, nil
}

// withApp opens the ledger described by the config at path, runs fn, and
// releases everything afterwards.
func (o *rootOptions) withApp(ctx context.Context, path string, fn func(a *app.App) error) error {
	cfg, err := o.loadConfig(path)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(a)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
