package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/app"
	"github.com/cleared-dev/ledger/internal/journal"
	"github.com/cleared-dev/ledger/internal/model"
)

func newJournalCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Journal entry operations",
	}
	cmd.AddCommand(
		newJournalPostCommand(opts),
		newJournalShowCommand(opts),
		newJournalListCommand(opts),
		newJournalReverseCommand(opts),
		newJournalBalancesCommand(opts),
	)
	return cmd
}

func newJournalPostCommand(opts *rootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Post journal entries from a CSV file",
		Long: `Post journal entries from a CSV file with the header

  ` + journal.Header + `

Rows sharing an entry number form one entry. Every entry is validated before
any is posted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("opening journal file: %w", err)
				}
				defer f.Close()
				r = f
			}
			drafts, err := journal.ReadDrafts(r)
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				return fmt.Errorf("no entries in %s", file)
			}

			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				for _, d := range drafts {
					if err := a.Journal.Validate(cmd.Context(), d); err != nil {
						return fmt.Errorf("entry %s rejected:\n%w", d.EntryNumber, err)
					}
				}
				for _, d := range drafts {
					d.CreatedBy = opts.actor
					entry, err := a.Post(cmd.Context(), d)
					if err != nil {
						return fmt.Errorf("posting %s: %w", d.EntryNumber, err)
					}
					debit, _ := entry.Totals()
					fmt.Fprintf(cmd.OutOrStdout(), "Posted %s %s (%s)\n", entry.EntryNumber, entry.Description, debit)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "journal CSV file, - for stdin")

	return cmd
}

func newJournalShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|entry-number>",
		Short: "Show one journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				entry, err := a.ResolveEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				codes, err := a.AccountCodes(cmd.Context())
				if err != nil {
					return err
				}
				return writeEntry(cmd.OutOrStdout(), entry, codes)
			})
		},
	}
}

func writeEntry(w io.Writer, entry model.JournalEntry, codes map[string]string) error {
	fmt.Fprintf(w, "%s  %s  %s\n", entry.EntryNumber, entry.Date.Format(dateLayout), entry.Description)
	fmt.Fprintf(w, "posted %s by %s\n", entry.PostedAt.Format("2006-01-02 15:04:05"), entry.CreatedBy)
	if entry.ReversesID != "" {
		fmt.Fprintf(w, "reverses %s\n", entry.ReversesID)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ACCOUNT\tDEBIT\tCREDIT\tMEMO\t")
	for _, l := range entry.Lines {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", codes[l.AccountID], blankZero(l.Debit), blankZero(l.Credit), l.Memo)
	}
	debit, credit := entry.Totals()
	fmt.Fprintf(tw, "\t%s\t%s\t\t\n", debit, credit)
	return tw.Flush()
}

func blankZero(a model.Amount) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func newJournalListCommand(opts *rootOptions) *cobra.Command {
	var from, to, account string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var f journal.Filter
			var err error
			if f.From, err = parseDate(from); err != nil {
				return err
			}
			if f.To, err = parseDate(to); err != nil {
				return err
			}

			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				if account != "" {
					acct, ok, err := a.Accounts.FindByCode(cmd.Context(), account)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("account %s not found", account)
					}
					f.AccountID = acct.ID
				}
				entries, err := a.Journal.List(cmd.Context(), f)
				if err != nil {
					return err
				}
				codes, err := a.AccountCodes(cmd.Context())
				if err != nil {
					return err
				}
				return journal.WriteEntries(cmd.OutOrStdout(), entries, codes)
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last date, YYYY-MM-DD")
	cmd.Flags().StringVar(&account, "account", "", "only entries touching this account code")

	return cmd
}

func newJournalReverseCommand(opts *rootOptions) *cobra.Command {
	var date, description string

	cmd := &cobra.Command{
		Use:   "reverse <id|entry-number>",
		Short: "Post an entry that undoes another",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseDate(date)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				orig, err := a.ResolveEntry(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				rev, err := a.Reverse(cmd.Context(), orig.ID, journal.ReverseParams{
					Date:        d,
					Description: description,
					CreatedBy:   opts.actor,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Posted %s reversing %s\n", rev.EntryNumber, orig.EntryNumber)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "reversal date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&description, "description", "", "reversal description")

	return cmd
}

func newJournalBalancesCommand(opts *rootOptions) *cobra.Command {
	var nonZero bool

	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show account balances and the trial balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), opts.configPath, func(a *app.App) error {
				bs, err := a.Journal.Balances(cmd.Context())
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ACCOUNT\tDEBIT\tCREDIT\tBALANCE\tTOTAL")
				for _, b := range bs {
					if nonZero && b.RolledDebit.IsZero() && b.RolledCredit.IsZero() {
						continue
					}
					fmt.Fprintf(tw, "%s%s %s\t%s\t%s\t%s\t%s\n",
						strings.Repeat("  ", b.Depth), b.Account.Code, b.Account.Name,
						b.Debit, b.Credit, b.Balance, b.RolledUp)
				}
				debit, credit := journal.TrialBalance(bs)
				fmt.Fprintf(tw, "TOTAL\t%s\t%s\t\t\n", debit, credit)
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&nonZero, "non-zero", false, "hide accounts with no postings in their subtree")

	return cmd
}
