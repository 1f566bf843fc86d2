package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/ledger/internal/api"
	"github.com/cleared-dev/ledger/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return opts.withApp(ctx, opts.configPath, func(a *app.App) error {
				cfg := a.Config.Server
				if addr != "" {
					cfg.Addr = addr
				}
				router := api.NewRouter(api.NewHandler(a), cfg.CORSOrigins)
				return api.ListenAndServe(ctx, cfg, router, a.Logger)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")

	return cmd
}
