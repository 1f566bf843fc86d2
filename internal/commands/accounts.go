package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/accounts"
	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/importer"
	"github.com/cleared-dev/ledger/internal/model"
)

func newAccountsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Chart of accounts operations",
	}
	cmd.AddCommand(
		newAccountsListCommand(opts),
		newAccountsTreeCommand(opts),
		newAccountsExportCommand(opts),
		newAccountsSetActiveCommand(opts, true),
		newAccountsSetActiveCommand(opts, false),
	)
	return cmd
}

func newAccountsListCommand(opts *rootOptions) *cobra.Command {
	var accountType string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts in registry order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if accountType != "" && !model.AccountType(accountType).Valid() {
				return fmt.Errorf("unknown account type %q", accountType)
			}
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				all, err := a.Accounts.List(cmd.Context())
				if err != nil {
					return err
				}
				if accountType != "" {
					all = accounts.ByType(all, model.AccountType(accountType))
				}

				codes, err := a.AccountCodes(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CODE\tNAME\tTYPE\tPARENT\tACTIVE")
				for _, acct := range all {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", acct.Code, acct.Name, acct.Type, codes[acct.ParentID], acct.IsActive)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVar(&accountType, "type", "", "only accounts of this type")

	return cmd
}

func newAccountsTreeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Show the account hierarchy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				all, err := a.Accounts.List(cmd.Context())
				if err != nil {
					return err
				}
				return accounts.WriteTree(cmd.OutOrStdout(), accounts.BuildTree(all))
			})
		},
	}
}

func newAccountsExportCommand(opts *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the chart as an importable feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "csv" && format != "json" {
				return fmt.Errorf("unknown export format %q", format)
			}
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				all, err := a.Accounts.List(cmd.Context())
				if err != nil {
					return err
				}
				records := accounts.ExportRecords(all)
				if format == "csv" {
					return importer.WriteCSV(cmd.OutOrStdout(), records)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "feed format (csv, json)")

	return cmd
}

func newAccountsSetActiveCommand(opts *rootOptions, active bool) *cobra.Command {
	use, short, verb := "deactivate <code>", "Stop accepting postings to an account", "Deactivated"
	if active {
		use, short, verb = "activate <code>", "Accept postings to an account again", "Activated"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				acct, err := a.SetActive(cmd.Context(), opts.actor, args[0], active)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", verb, acct.Code, acct.Name)
				return nil
			})
		},
	}
}
