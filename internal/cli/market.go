package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"algodesk/internal/models"
	"algodesk/internal/stream"
	"algodesk/pkg/utils"
)

func addMarketCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Index quotes from the market channel",
	}
	cmd.AddCommand(newMarketWatchCmd(app))
	rootCmd.AddCommand(cmd)
}

func newMarketWatchCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show live index ticks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}

			session := utils.SessionAt(time.Now())
			if !output.IsJSON() {
				output.Printf("Market: %s\n", output.MarketSession(session))
				if !session.IsOpen() {
					output.Dim("Next open %s", utils.FormatDateTime(utils.NextOpen(time.Now())))
				}
			}

			changed := make(chan struct{}, 1)
			app.Dashboard.OnChange(func(scope string) {
				if scope != stream.ScopeMarket {
					return
				}
				select {
				case changed <- struct{}{}:
				default:
				}
			})

			hub := app.startLive(ctx)
			defer hub.Stop()
			release, err := app.subscribe(ctx, hub, stream.KindMarket, "")
			if err != nil {
				return err
			}
			defer release()

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-changed:
					ticks := app.Dashboard.Ticks()
					if output.IsJSON() {
						if err := output.JSON(ticks); err != nil {
							return err
						}
						continue
					}
					if output.colorEnabled {
						output.Printf("\033[H\033[2J")
					}
					output.Printf("Market: %s\n", output.MarketSession(utils.SessionAt(time.Now())))
					renderTicks(output, ticks)
				}
			}
		},
	}
}

func renderTicks(output *Output, ticks []models.Tick) {
	table := NewTable(output, "INDEX", "LTP", "CHANGE", "OPEN", "HIGH", "LOW", "PREV CLOSE", "TIME")
	for _, t := range ticks {
		name := t.Index
		if name == "" {
			name = t.Token
		}
		change := utils.FormatChange(t.Change, t.ChangePercent)
		switch {
		case t.Change > 0:
			change = output.Green(change)
		case t.Change < 0:
			change = output.Red(change)
		}
		table.AddRow(
			name,
			utils.FormatPrice(t.LTP),
			change,
			utils.FormatPrice(t.Open),
			utils.FormatPrice(t.High),
			utils.FormatPrice(t.Low),
			utils.FormatPrice(t.Close),
			utils.FormatTime(t.Timestamp),
		)
	}
	table.Render()
}
