// Package cli provides the command-line interface of the admin console.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"algodesk/internal/api"
	"algodesk/internal/config"
	"algodesk/internal/dashboard"
	"algodesk/internal/dispatch"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/logging"
	"algodesk/internal/models"
	"algodesk/internal/session"
	"algodesk/internal/store"
	"algodesk/internal/stream"
	"algodesk/pkg/utils"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-08-01"
)

// App holds the application dependencies. Config and Logger are set before
// any command runs; the rest is opened on first use by ready.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Store      store.DataStore
	Session    *session.Session
	API        *api.Client
	Dashboard  *dashboard.Dashboard
	Dispatcher *dispatch.Dispatcher
}

// NewRootCmd creates the root command. logger is used until the
// configuration is loaded and replaced by the configured logger afterwards.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "algodesk",
		Short: "Admin console for a multi-account algorithmic trading backend",
		Long: `algodesk manages demat accounts, mirrored trading groups and indicator
strategies on an algorithmic trading backend, and shows live positions,
orders and trades per group.

Use 'algodesk login' first; the session token is kept in the local store.
Use 'algodesk serve' to expose the live read model over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.Logger = logging.NewLoggerWithConfig(cfg.Log)
			utils.SetLayouts(cfg.UI.DateFormat, cfg.UI.TimeFormat)
			cmd.SetContext(withUI(cmd.Context(), cfg.UI))

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/algodesk)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAuthCommands(rootCmd, app)
	addAccountCommands(rootCmd, app)
	addGroupCommands(rootCmd, app)
	addTableCommands(rootCmd, app)
	addOrderCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addJobCommands(rootCmd, app)
	addMarketCommands(rootCmd, app)
	addServeCommand(rootCmd, app)

	return rootCmd
}

// ready opens the store, restores the session and builds the API client,
// dashboard and dispatcher. It is idempotent.
func (app *App) ready(ctx context.Context) error {
	if app.API != nil {
		return nil
	}

	dataStore, err := store.NewSQLiteStore(app.Config.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	app.Store = dataStore

	app.Session = session.New(dataStore, app.Logger)
	if err := app.Session.Load(ctx); err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if exp, ok := app.Session.Expiry(); ok && app.Session.Expired(time.Now()) {
		app.Logger.Warn().Time("expired_at", exp).Msg("Stored session has expired")
	}

	client, err := api.NewClient(app.Config.API, app.Session, app.Logger)
	if err != nil {
		return err
	}
	app.API = client
	app.Dashboard = dashboard.New(dataStore, app.Logger)
	app.Dashboard.SetRefresher(app.fetchGroup)
	app.Dispatcher = dispatch.New(client, app.Dashboard, dataStore, app.Logger)
	return nil
}

// requireLogin is ready plus a check that a token is present.
func (app *App) requireLogin(ctx context.Context) error {
	if err := app.ready(ctx); err != nil {
		return err
	}
	if !app.Session.Authenticated() {
		return fmt.Errorf("%w: run 'algodesk login' first", apperrors.ErrNotAuthenticated)
	}
	return nil
}

// sync loads the account, group and strategy registries into the dashboard.
func (app *App) sync(ctx context.Context) error {
	return app.Dashboard.Sync(ctx, app.API)
}

// fetchGroup loads the member accounts of groupID over REST and applies
// them as an unsequenced snapshot.
func (app *App) fetchGroup(ctx context.Context, groupID string) error {
	accounts, err := app.API.Children(ctx, groupID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(struct {
		DematAccounts []models.Account `json:"dematAccounts"`
	}{accounts})
	if err != nil {
		return err
	}
	return app.Dashboard.Apply(ctx, stream.Message{
		Scope:      stream.GroupScope(groupID),
		Type:       stream.TypeDematAccounts,
		Data:       data,
		ReceivedAt: time.Now(),
	})
}

// startLive starts a hub feeding the dashboard. Snapshots published to the
// hub are applied until ctx ends.
func (app *App) startLive(ctx context.Context) *stream.Hub {
	hub := stream.NewHub(app.Logger)
	hub.Start(ctx)
	sub := hub.Subscribe(stream.AllScopes)
	go func() {
		if err := app.Dashboard.Run(ctx, sub); err != nil && !errors.Is(err, context.Canceled) {
			app.Logger.Warn().Err(err).Msg("Snapshot loop stopped")
		}
	}()
	return hub
}

// subscribe opens a push channel for key, or in pull mode schedules polling
// when kind is the demat channel. The returned func releases it.
func (app *App) subscribe(ctx context.Context, hub *stream.Hub, kind stream.ChannelKind, key string) (func(), error) {
	if kind == stream.KindDemat && app.Config.IsPullMode() {
		poller := stream.NewPoller(app.API, hub, app.Config.Stream.PollInterval, app.Logger)
		if err := poller.Watch(key); err != nil {
			return nil, err
		}
		poller.Start()
		return poller.Stop, nil
	}

	ch := stream.NewChannel(kind, app.Config.WebSocketURL(), app.Session, hub, app.channelOptions(), app.Logger)
	if err := ch.Switch(ctx, key); err != nil {
		return nil, err
	}
	return func() { _ = ch.Close() }, nil
}

// channelOptions maps the stream configuration onto channel options.
func (app *App) channelOptions() stream.ChannelOptions {
	return stream.ChannelOptions{
		Reconnect:      app.Config.Stream.Reconnect,
		ReconnectDelay: app.Config.Stream.ReconnectDelay,
	}
}

// Close releases the store.
func (app *App) Close() error {
	if app.Store == nil {
		return nil
	}
	err := app.Store.Close()
	app.Store = nil
	return err
}

func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("algodesk v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backend")
	output.Printf("  Base URL:        %s\n", cfg.API.BaseURL)
	output.Printf("  WebSocket URL:   %s\n", cfg.WebSocketURL())
	output.Printf("  Timeout:         %s\n", cfg.API.Timeout)
	output.Println()

	output.Bold("Stream")
	output.Printf("  Mode:            %s\n", cfg.Stream.Mode)
	output.Printf("  Poll interval:   %s\n", cfg.Stream.PollInterval)
	output.Printf("  Reconnect:       %v\n", cfg.Stream.Reconnect)
	output.Println()

	output.Bold("Gateway")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	output.Printf("  Allowed origins: %v\n", cfg.Server.AllowedOrigins)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:        %s\n", cfg.Store.Path)
	output.Printf("  Log file:        %s\n", cfg.Log.FilePath)
}
