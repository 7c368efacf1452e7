package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"algodesk/internal/server"
	"algodesk/internal/stream"
)

func addServeCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the live read model over HTTP",
		Long: `Subscribe to every group, strategy and the market channel, keep the
read model current and expose it on the local gateway.

In pull mode ([stream] mode = "pull") group snapshots are fetched on a
schedule instead of pushed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				app.Config.Server.Addr = addr
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from [server] addr)")
	rootCmd.AddCommand(cmd)
}

func (app *App) serve(ctx context.Context) error {
	if err := app.requireLogin(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.Session.OnUnauthorized(func() {
		app.Logger.Error().Msg("Session rejected; stopping. Log in again and restart.")
		cancel()
	})

	if err := app.sync(ctx); err != nil {
		return err
	}
	if err := app.Dashboard.RestoreGroups(ctx); err != nil {
		app.Logger.Warn().Err(err).Msg("Some stored snapshots could not be restored")
	}

	hub := app.startLive(ctx)
	defer hub.Stop()

	release, err := app.subscribeAll(ctx, hub)
	defer release()
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Server:    app.Config.Server,
		Dashboard: app.Dashboard,
		Actions:   app.Dispatcher,
		History:   app.Store,
		Log:       app.Logger,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}

// subscribeAll opens one channel per group and per strategy plus the market
// channel. In pull mode groups are polled and refreshes go through the
// poller. A channel that fails to open is logged and skipped.
func (app *App) subscribeAll(ctx context.Context, hub *stream.Hub) (func(), error) {
	var closers []func()
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	groups := app.Dashboard.Groups()
	if app.Config.IsPullMode() {
		poller := stream.NewPoller(app.API, hub, app.Config.Stream.PollInterval, app.Logger)
		for _, g := range groups {
			if err := poller.Watch(g.ID); err != nil {
				return release, err
			}
		}
		poller.Start()
		closers = append(closers, poller.Stop)
		app.Dashboard.SetRefresher(poller.PollNow)
	} else {
		for _, g := range groups {
			app.openChannel(ctx, hub, stream.KindDemat, g.ID, &closers)
		}
	}

	for _, s := range app.Dashboard.Strategies() {
		app.openChannel(ctx, hub, stream.KindStrategy, s.ID, &closers)
	}
	app.openChannel(ctx, hub, stream.KindMarket, "", &closers)

	if len(closers) == 0 && len(groups) > 0 {
		return release, errors.New("no snapshot channel could be opened")
	}
	return release, nil
}

func (app *App) openChannel(ctx context.Context, hub *stream.Hub, kind stream.ChannelKind, key string, closers *[]func()) {
	ch := stream.NewChannel(kind, app.Config.WebSocketURL(), app.Session, hub, app.channelOptions(), app.Logger)
	if err := ch.Switch(ctx, key); err != nil {
		app.Logger.Warn().Err(err).Str("channel", string(kind)).Str("key", key).Msg("Channel not opened")
		return
	}
	*closers = append(*closers, func() { _ = ch.Close() })
}
