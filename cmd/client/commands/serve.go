package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"e2e_messaging/internal/service/api"
)

// serve: keep the client running, taking commands over HTTP and streaming
// their events on ws://<addr>/events.
func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"feed"},
		Short:   "Run the client as a local API with a websocket event feed",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return appCtx.Messaging.Run(ctx)
			})
			g.Go(func() error {
				return api.NewLocalServer(addr, appCtx.Messaging).Run(ctx)
			})
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9091", "listen address")
	return cmd
}
