package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"algodesk/internal/dashboard"
	"algodesk/internal/projector"
	"algodesk/internal/stream"
	"algodesk/internal/table"
	"algodesk/pkg/utils"
)

func addTableCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newTabCmd(app, dashboard.TabPositions, "Show a group's positions"))
	rootCmd.AddCommand(newTabCmd(app, dashboard.TabOrders, "Show a group's orders"))
	rootCmd.AddCommand(newTabCmd(app, dashboard.TabTrades, "Show a group's trades"))
}

func newTabCmd(app *App, tab dashboard.Tab, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(tab) + " --group ID",
		Short: short,
		Long: short + `.

--sort takes a column name, prefixed with '-' for descending order.
--search keeps rows where any column contains the text (case-insensitive).
--watch keeps the table open and redraws it on every snapshot.`,
		Example: fmt.Sprintf(`  algodesk %[1]s --group g1
  algodesk %[1]s --group g1 --sort -%[2]s --search nifty
  algodesk %[1]s --group g1 --watch`, tab, tabFields(tab)[1]),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			groupID, _ := cmd.Flags().GetString("group")
			sortParam, _ := cmd.Flags().GetString("sort")
			search, _ := cmd.Flags().GetString("search")
			watch, _ := cmd.Flags().GetBool("watch")

			if groupID == "" {
				return fmt.Errorf("--group is required")
			}
			if sortParam != "" {
				if _, ok := table.ParseSort(sortParam, tabFields(tab)); !ok {
					return fmt.Errorf("unknown sort field %q (columns: %s)",
						strings.TrimPrefix(sortParam, "-"), strings.Join(tabFields(tab), ", "))
				}
			}

			if watch {
				return app.watchTab(cmd, output, tab, groupID, sortParam, search)
			}

			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()
			view, err := app.loadGroupView(ctx, groupID)
			if err != nil {
				return err
			}
			app.configureTab(tab, groupID, sortParam, search)
			return app.renderTab(output, tab, view)
		},
	}

	cmd.Flags().StringP("group", "g", "", "group id")
	cmd.Flags().String("sort", "", "sort column, '-' prefix for descending")
	cmd.Flags().String("search", "", "filter rows containing text")
	cmd.Flags().BoolP("watch", "w", false, "redraw on every snapshot until interrupted")
	return cmd
}

func tabFields(tab dashboard.Tab) []string {
	switch tab {
	case dashboard.TabOrders:
		return projector.OrderFields()
	case dashboard.TabTrades:
		return projector.TradeFields()
	}
	return projector.PositionFields()
}

func (app *App) configureTab(tab dashboard.Tab, groupID, sortParam, search string) {
	apply := func(setSort func(string, table.Direction), setSearch func(string)) {
		if sort, ok := table.ParseSort(sortParam, tabFields(tab)); ok {
			setSort(sort.Field, sort.Direction)
		}
		setSearch(search)
	}
	switch tab {
	case dashboard.TabOrders:
		v := app.Dashboard.OrderView(groupID)
		apply(v.SetSortDirection, v.SetSearch)
	case dashboard.TabTrades:
		v := app.Dashboard.TradeView(groupID)
		apply(v.SetSortDirection, v.SetSearch)
	default:
		v := app.Dashboard.PositionView(groupID)
		apply(v.SetSortDirection, v.SetSearch)
	}
}

func (app *App) renderTab(output *Output, tab dashboard.Tab, view dashboard.GroupView) error {
	groupID := view.Group.ID
	switch tab {
	case dashboard.TabOrders:
		rows := app.Dashboard.OrderView(groupID).Rows()
		if output.IsJSON() {
			return output.JSON(tabPayload(tab, view, rows))
		}
		renderRows(output, projector.OrderFields(), rows, func(r projector.OrderRow, field, value string) string {
			if field == projector.FieldStatus {
				return output.OrderStatus(r.Status)
			}
			return value
		})
	case dashboard.TabTrades:
		rows := app.Dashboard.TradeView(groupID).Rows()
		if output.IsJSON() {
			return output.JSON(tabPayload(tab, view, rows))
		}
		renderRows(output, projector.TradeFields(), rows, nil)
	default:
		rows := app.Dashboard.PositionView(groupID).Rows()
		if output.IsJSON() {
			return output.JSON(tabPayload(tab, view, rows))
		}
		renderRows(output, projector.PositionFields(), rows, func(r projector.PositionRow, field, value string) string {
			switch field {
			case projector.FieldPnL:
				return output.PnL(r.PnL)
			case projector.FieldStatus:
				return output.PositionStatus(r.Status)
			}
			return value
		})
		output.Printf("\nNet P&L: %s\n", output.PnL(view.Aggregate.PnL))
	}
	if !view.UpdatedAt.IsZero() {
		output.Dim("Updated %s", utils.FormatTime(view.UpdatedAt))
	}
	return nil
}

func tabPayload[R table.Row](tab dashboard.Tab, view dashboard.GroupView, rows []R) map[string]interface{} {
	return map[string]interface{}{
		"groupId":   view.Group.ID,
		"tab":       tab,
		"seq":       view.Seq,
		"updatedAt": view.UpdatedAt,
		"total":     len(rows),
		"rows":      rows,
	}
}

// renderRows prints rows with one column per field. style, when set, may
// replace a cell's display value.
func renderRows[R table.Row](output *Output, fields []string, rows []R, style func(r R, field, value string) string) {
	if len(rows) == 0 {
		output.Dim("No rows.")
		return
	}
	headers := make([]string, len(fields))
	for i, f := range fields {
		headers[i] = strings.ToUpper(f)
	}
	t := NewTable(output, headers...)
	for _, r := range rows {
		cells := make([]string, len(fields))
		for i, f := range fields {
			cells[i] = r.Value(f)
			if style != nil {
				cells[i] = style(r, f, cells[i])
			}
		}
		t.AddRow(cells...)
	}
	t.Render()
}

// watchTab subscribes to the group's snapshot stream and redraws the table
// after every applied change until interrupted.
func (app *App) watchTab(cmd *cobra.Command, output *Output, tab dashboard.Tab, groupID, sortParam, search string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := app.loadGroupView(ctx, groupID); err != nil {
		return err
	}
	app.configureTab(tab, groupID, sortParam, search)

	changed := make(chan struct{}, 1)
	app.Dashboard.OnChange(func(scope string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	hub := app.startLive(ctx)
	defer hub.Stop()
	release, err := app.subscribe(ctx, hub, stream.KindDemat, groupID)
	if err != nil {
		return err
	}
	defer release()

	draw := func() error {
		view, ok := app.Dashboard.GroupView(groupID)
		if !ok {
			return nil
		}
		if output.colorEnabled {
			output.Printf("\033[H\033[2J")
		}
		if !output.IsJSON() {
			output.Bold("%s · %s", view.Group.Name, tab)
		}
		return app.renderTab(output, tab, view)
	}

	if err := draw(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			if err := draw(); err != nil {
				return err
			}
		}
	}
}
