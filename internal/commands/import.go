package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/importer"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import [file...]",
		Short: "Import chart-of-accounts feeds",
		Long: `Import chart-of-accounts feeds into the account registry.

With no arguments every feed in the configured inbox is imported, and feeds
whose records all imported are moved to the inbox's processed/ directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				if len(args) == 0 {
					return importInbox(cmd, opts, a)
				}
				return importFiles(cmd, opts, a, args, format)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "feed format (default: by file extension)")

	return cmd
}

func importFiles(cmd *cobra.Command, opts *rootOptions, a *app.App, paths []string, format string) error {
	failed := 0
	for _, path := range paths {
		records, err := a.Parsers.ParseFile(path, format)
		if err != nil {
			return err
		}
		res, err := a.Import(cmd.Context(), opts.actor, path, records)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), path, res)
		if !res.Success {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d feed(s) had failed records", failed)
	}
	return nil
}

func importInbox(cmd *cobra.Command, opts *rootOptions, a *app.App) error {
	inbox := a.Config.Import.Inbox
	files, err := a.Parsers.Scan(inbox)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No feeds in %s\n", inbox)
		return nil
	}

	failed := 0
	for _, f := range files {
		records, err := a.Parsers.ParseFile(f.Path, f.Format)
		if err != nil {
			return err
		}
		res, err := a.Import(cmd.Context(), opts.actor, f.Name, records)
		if err != nil {
			return err
		}
		printResult(cmd.OutOrStdout(), f.Name, res)
		if !res.Success {
			failed++
			continue
		}
		if err := importer.MarkProcessed(inbox, f.Name); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d feed(s) had failed records and were left in %s", failed, inbox)
	}
	return nil
}

func printResult(w io.Writer, source string, res importer.Result) {
	fmt.Fprintf(w, "%s: created %d, skipped %d, linked %d, failed %d\n",
		source, res.Created, res.Skipped, res.Linked, res.Failed)
	for _, d := range res.Diagnostics {
		fmt.Fprintf(w, "  row %d (%s) %s %s: %s\n", d.Row, d.Code, d.Severity, d.Kind, d.Message)
	}
}
