package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
	"algodesk/internal/strategy"
	"algodesk/internal/stream"
	"algodesk/pkg/utils"
)

func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "strategies",
		Aliases: []string{"strategy"},
		Short:   "Indicator strategy management",
		Long: `Strategies are inactive until deployed. Only inactive strategies can be
edited or deleted; an active strategy must be stopped first.`,
	}

	cmd.AddCommand(newStrategiesListCmd(app))
	cmd.AddCommand(newIndicatorsCmd(app))
	cmd.AddCommand(newStrategySaveCmd(app, "create"))
	cmd.AddCommand(newStrategySaveCmd(app, "update"))
	cmd.AddCommand(newStrategyActionCmd(app, strategy.ActionDelete))
	cmd.AddCommand(newStrategyActionCmd(app, strategy.ActionDeploy))
	cmd.AddCommand(newStrategyActionCmd(app, strategy.ActionStop))
	cmd.AddCommand(newStrategyWatchCmd(app))

	rootCmd.AddCommand(cmd)
}

func newStrategiesListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.sync(ctx); err != nil {
				return err
			}
			strategies := app.Dashboard.Strategies()
			if output.IsJSON() {
				return output.JSON(strategies)
			}
			if len(strategies) == 0 {
				output.Dim("No strategies. Create one with 'algodesk strategies create'.")
				return nil
			}

			table := NewTable(output, "ID", "NAME", "INDICATOR", "INDEX", "INTERVAL", "STATE", "ACTIONS", "MODIFIED")
			for _, s := range strategies {
				table.AddRow(
					s.ID,
					utils.Truncate(s.Name, 28),
					s.Indicator,
					s.Parameters.Text(models.ParamIndex),
					s.Parameters.Text(models.ParamInterval),
					strategyState(output, s),
					affordanceText(s),
					utils.FormatDateTime(s.ModifiedTime),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newIndicatorsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "indicators",
		Short: "List indicators and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			specs, err := app.API.Indicators(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(specs)
			}

			for _, spec := range specs {
				lines := make([]string, 0, len(spec.Fields))
				for _, f := range spec.Fields {
					lines = append(lines, describeField(f))
				}
				title := spec.Name
				if spec.Label != "" {
					title = spec.Label + " (" + spec.Name + ")"
				}
				output.Box(title, lines)
			}
			return nil
		},
	}
}

func describeField(f models.ParamField) string {
	var b strings.Builder
	b.WriteString(f.Name)
	b.WriteString(" ")
	b.WriteString(string(f.Type))
	if f.Required {
		b.WriteString(" required")
	}
	if f.Min != nil || f.Max != nil {
		lo, hi := "", ""
		if f.Min != nil {
			lo = strconv.FormatFloat(*f.Min, 'f', -1, 64)
		}
		if f.Max != nil {
			hi = strconv.FormatFloat(*f.Max, 'f', -1, 64)
		}
		fmt.Fprintf(&b, " [%s..%s]", lo, hi)
	}
	if len(f.Options) > 0 {
		fmt.Fprintf(&b, " {%s}", strings.Join(f.Options, "|"))
	}
	if f.Default != nil {
		fmt.Fprintf(&b, " default=%v", f.Default)
	}
	return b.String()
}

// newStrategySaveCmd builds create and update. Both validate the definition
// locally, against the indicator catalogue, before calling the backend.
func newStrategySaveCmd(app *App, verb string) *cobra.Command {
	use := "create --name NAME --indicator IND [--param key=value...]"
	short := "Create a strategy"
	argCheck := cobra.NoArgs
	if verb == "update" {
		use = "update <strategy-id> [--name NAME] [--param key=value...]"
		short = "Edit an inactive strategy"
		argCheck = cobra.ExactArgs(1)
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argCheck,
		Example: `  algodesk strategies create --name "Nifty ST" --indicator supertrend \
      --param index=NIFTY --param interval=5m \
      --param minContractPrice=50 --param maxContractPrice=250`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}

			def := models.StrategyUpdate{Parameters: models.Params{}}
			var current models.Strategy
			if verb == "update" {
				if err := app.sync(ctx); err != nil {
					return err
				}
				var ok bool
				if current, ok = app.Dashboard.Strategy(args[0]); !ok {
					return fmt.Errorf("strategy %s: %w", args[0], apperrors.ErrNotFound)
				}
				def = models.StrategyUpdate{
					Name:        current.Name,
					Description: current.Description,
					Indicator:   current.Indicator,
					Parameters:  current.Parameters.Clone(),
				}
			}

			if cmd.Flags().Changed("name") {
				def.Name, _ = cmd.Flags().GetString("name")
			}
			if cmd.Flags().Changed("description") {
				def.Description, _ = cmd.Flags().GetString("description")
			}
			if cmd.Flags().Changed("indicator") {
				def.Indicator, _ = cmd.Flags().GetString("indicator")
			}
			params, _ := cmd.Flags().GetStringArray("param")
			for _, kv := range params {
				key, value, ok := strings.Cut(kv, "=")
				if !ok || key == "" {
					return fmt.Errorf("--param %q: expected key=value", kv)
				}
				def.Parameters[key] = parseParamValue(value)
			}

			specs, err := app.API.Indicators(ctx)
			if err != nil {
				app.Logger.Warn().Err(err).Msg("Indicator catalogue unavailable; validating standard fields only")
			}
			spec, _ := strategy.FindIndicator(specs, def.Indicator)
			def.Parameters = strategy.WithDefaults(def.Parameters, spec)

			if problems := strategy.Check(def, spec); len(problems) > 0 {
				for _, p := range problems {
					output.Error("  %s: %s", p.Field, p.Message)
				}
				return problems[0]
			}

			var saved *models.Strategy
			if verb == "create" {
				saved, err = app.API.CreateStrategy(ctx, def)
			} else {
				err = app.Dispatcher.UpdateStrategy(ctx, args[0], def, spec)
				if err == nil {
					s, _ := app.Dashboard.Strategy(args[0])
					saved = &s
				}
			}
			if err != nil {
				output.Error("%s", apperrors.UserMessage(err, "Saving strategy failed"))
				return err
			}

			if output.IsJSON() {
				return output.JSON(saved)
			}
			if saved != nil {
				output.Success("✓ Saved strategy %s (%s)", saved.Name, saved.ID)
			} else {
				output.Success("✓ Saved strategy %s", def.Name)
			}
			return nil
		},
	}

	cmd.Flags().String("name", "", "strategy name")
	cmd.Flags().String("description", "", "description")
	cmd.Flags().String("indicator", "", "indicator name (see 'strategies indicators')")
	cmd.Flags().StringArray("param", nil, "parameter as key=value, repeatable")
	return cmd
}

// parseParamValue reads numbers and booleans as such; anything else stays
// text.
func parseParamValue(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func newStrategyActionCmd(app *App, action strategy.Action) *cobra.Command {
	shorts := map[strategy.Action]string{
		strategy.ActionDeploy: "Deploy an inactive strategy",
		strategy.ActionStop:   "Stop an active strategy",
		strategy.ActionDelete: "Delete an inactive strategy",
	}
	return &cobra.Command{
		Use:   string(action) + " <strategy-id>",
		Short: shorts[action],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			id := args[0]
			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.sync(ctx); err != nil {
				return err
			}

			var err error
			switch action {
			case strategy.ActionDeploy:
				err = app.Dispatcher.DeployStrategy(ctx, id)
			case strategy.ActionStop:
				err = app.Dispatcher.StopStrategy(ctx, id)
			case strategy.ActionDelete:
				err = app.Dispatcher.DeleteStrategy(ctx, id)
			}
			if err != nil {
				output.Error("%s", apperrors.UserMessage(err, "Strategy "+string(action)+" failed"))
				return err
			}

			s, exists := app.Dashboard.Strategy(id)
			if output.IsJSON() {
				if !exists {
					return output.JSON(map[string]interface{}{"status": true, "id": id, "deleted": true})
				}
				return output.JSON(s)
			}
			if !exists {
				output.Success("✓ Deleted strategy %s", id)
				return nil
			}
			output.Success("✓ %s is %s", s.Name, strategyState(output, s))
			return nil
		},
	}
}

func newStrategyWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <strategy-id>",
		Short: "Follow a strategy's live updates until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			id := args[0]

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.sync(ctx); err != nil {
				return err
			}
			if _, ok := app.Dashboard.Strategy(id); !ok {
				return fmt.Errorf("strategy %s: %w", id, apperrors.ErrNotFound)
			}

			scope := stream.StrategyScope(id)
			changed := make(chan struct{}, 1)
			app.Dashboard.OnChange(func(s string) {
				if s != scope {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			})

			hub := app.startLive(ctx)
			defer hub.Stop()
			release, err := app.subscribe(ctx, hub, stream.KindStrategy, id)
			if err != nil {
				return err
			}
			defer release()

			show := func() error {
				s, ok := app.Dashboard.Strategy(id)
				if !ok {
					return nil
				}
				if output.IsJSON() {
					return output.JSON(s)
				}
				output.Printf("%s  %s  %s  %s\n", utils.FormatTime(time.Now()), s.Name,
					strategyState(output, s), affordanceText(s))
				return nil
			}

			if err := show(); err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					if err := show(); err != nil {
						return err
					}
				}
			}
		},
	}
}

func strategyState(output *Output, s models.Strategy) string {
	if s.IsActive {
		return output.Green("active")
	}
	return output.DimText("inactive")
}

func affordanceText(s models.Strategy) string {
	actions := strategy.Affordances(s)
	names := make([]string, len(actions))
	for i, a := range actions {
		names[i] = string(a)
	}
	return strings.Join(names, ",")
}
