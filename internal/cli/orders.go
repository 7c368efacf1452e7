package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"algodesk/internal/api"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
)

func addOrderCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Place, cancel and square off orders",
	}

	cmd.AddCommand(newOrderPlaceCmd(app))
	cmd.AddCommand(newOrderCancelCmd(app))
	cmd.AddCommand(newOrderCancelAllCmd(app))
	cmd.AddCommand(newOrderSquareOffCmd(app))

	rootCmd.AddCommand(cmd)
}

func newOrderPlaceCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "place",
		Short: "Place a manual order for an account or a whole group",
		Example: `  algodesk order place --account a1 --symbol NIFTY24AUGFUT --side BUY --qty 75
  algodesk order place --group g1 --symbol BANKNIFTY24AUGFUT --side SELL --qty 15 \
      --type LIMIT --price 51250`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			order := api.ManualOrder{}
			order.DematAccountID, _ = cmd.Flags().GetString("account")
			order.GroupID, _ = cmd.Flags().GetString("group")
			order.Symbol, _ = cmd.Flags().GetString("symbol")
			order.SymbolToken, _ = cmd.Flags().GetString("token")
			order.Exchange, _ = cmd.Flags().GetString("exchange")
			side, _ := cmd.Flags().GetString("side")
			order.TransactionType = models.Side(strings.ToUpper(side))
			orderType, _ := cmd.Flags().GetString("type")
			order.OrderType = strings.ToUpper(orderType)
			product, _ := cmd.Flags().GetString("product")
			order.ProductType = strings.ToUpper(product)
			order.Quantity, _ = cmd.Flags().GetInt64("qty")
			order.Price, _ = cmd.Flags().GetFloat64("price")

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.Dispatcher.PlaceManualOrder(ctx, order); err != nil {
				output.Error("Order not placed: %s", apperrors.UserMessage(err, "request failed"))
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "order": order})
			}
			where := order.DematAccountID
			if order.GroupID != "" {
				where = "group " + order.GroupID
			}
			output.Success("✓ %s %d %s placed for %s", order.TransactionType, order.Quantity, order.Symbol, where)
			return nil
		},
	}

	cmd.Flags().String("account", "", "demat account id")
	cmd.Flags().String("group", "", "group id (mirrors the order to every member)")
	cmd.Flags().String("symbol", "", "trading symbol")
	cmd.Flags().String("token", "", "symbol token")
	cmd.Flags().String("exchange", "NFO", "exchange")
	cmd.Flags().String("side", "", "BUY or SELL")
	cmd.Flags().String("type", "MARKET", "MARKET or LIMIT")
	cmd.Flags().String("product", "INTRADAY", "product type")
	cmd.Flags().Int64("qty", 0, "quantity")
	cmd.Flags().Float64("price", 0, "limit price")
	return cmd
}

func newOrderCancelCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <account-id> <order-id>",
		Short: "Cancel an open order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			accountID, orderID := args[0], args[1]
			if err := app.loadAccount(ctx, accountID); err != nil {
				return err
			}
			if err := app.Dispatcher.CancelOrder(ctx, accountID, orderID); err != nil {
				output.Error("%s", apperrors.UserMessage(err, "Cancel failed"))
				return err
			}

			order, _ := app.Dashboard.Order(accountID, orderID)
			if output.IsJSON() {
				return output.JSON(order)
			}
			output.Success("✓ Order %s is %s", orderID, output.OrderStatus(order.Status))
			return nil
		},
	}
}

func newOrderCancelAllCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel-all <group-id> [order-id...]",
		Short: "Cancel open orders across a group",
		Long: `Cancel the listed orders across a group, or every open order of every
member when no ids are given. Orders that are already complete, rejected
or cancelled are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			groupID, orderIDs := args[0], args[1:]
			view, err := app.loadGroupView(ctx, groupID)
			if err != nil {
				return err
			}
			if len(orderIDs) == 0 {
				open := 0
				for _, s := range view.Summaries {
					open += s.OpenOrders
				}
				question := fmt.Sprintf("Cancel %d open order(s) across %s?", open, view.Group.Name)
				if ok, err := confirm(cmd, question); err != nil || !ok {
					return err
				}
			}

			if err := app.Dispatcher.CancelAllOrders(ctx, groupID, orderIDs); err != nil {
				output.Error("%s", apperrors.UserMessage(err, "Cancel failed"))
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "groupId": groupID})
			}
			output.Success("✓ Cancel requested for %s", view.Group.Name)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	return cmd
}

func newOrderSquareOffCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "square-off <account-id> <symbol>[/<product>]",
		Short: "Close one position with an offsetting order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			accountID, key := args[0], args[1]
			if err := app.loadAccount(ctx, accountID); err != nil {
				return err
			}
			key = app.resolvePositionKey(accountID, key)
			if err := app.Dispatcher.SquareOff(ctx, accountID, key); err != nil {
				output.Error("%s", apperrors.UserMessage(err, "Square-off failed"))
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "accountId": accountID, "position": key})
			}
			output.Success("✓ Square-off requested for %s on %s", key, accountLabel(app, accountID))
			return nil
		},
	}
}

// loadAccount syncs registries and fetches every group accountID belongs
// to, so its orders and positions are in the dashboard.
func (app *App) loadAccount(ctx context.Context, accountID string) error {
	if err := app.requireLogin(ctx); err != nil {
		return err
	}
	if err := app.sync(ctx); err != nil {
		return err
	}
	if _, ok := app.Dashboard.Account(accountID); !ok {
		return fmt.Errorf("account %s: %w", accountID, apperrors.ErrNotFound)
	}
	for _, g := range app.Dashboard.Groups() {
		if !g.HasMember(accountID) {
			continue
		}
		if err := app.fetchGroup(ctx, g.ID); err != nil {
			return err
		}
	}
	return nil
}

// resolvePositionKey accepts a bare symbol when exactly one position of the
// account trades it.
func (app *App) resolvePositionKey(accountID, key string) string {
	if _, ok := app.Dashboard.Position(accountID, key); ok {
		return key
	}
	acct, ok := app.Dashboard.Account(accountID)
	if !ok {
		return key
	}
	match := ""
	for k, p := range acct.Stats.Positions {
		if strings.EqualFold(p.Symbol, key) {
			if match != "" {
				return key
			}
			match = k
		}
	}
	if match == "" {
		return key
	}
	return match
}
