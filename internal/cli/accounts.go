package cli

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"algodesk/internal/api"
	"algodesk/pkg/utils"
)

func addAccountCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "accounts",
		Aliases: []string{"account", "demat"},
		Short:   "Demat account management",
	}

	cmd.AddCommand(newAccountsListCmd(app))
	cmd.AddCommand(newAccountsAddCmd(app))
	cmd.AddCommand(newAccountsDeleteCmd(app))
	cmd.AddCommand(newAccountsTradingCmd(app))
	cmd.AddCommand(newAccountsAutoLoginCmd(app))

	rootCmd.AddCommand(cmd)
}

func newAccountsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected demat accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			accounts, err := app.API.DematAccounts(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(accounts)
			}
			if len(accounts) == 0 {
				output.Dim("No demat accounts. Add one with 'algodesk accounts add'.")
				return nil
			}

			table := NewTable(output, "ID", "CLIENT", "NAME", "BROKER", "TRADING", "MARGIN", "P&L")
			for _, a := range accounts {
				table.AddRow(
					a.ID,
					a.ClientID,
					a.DisplayName,
					a.BrokerName,
					output.OnOff(a.TradingEnabled),
					utils.FormatAmount(a.Stats.Margin.Decimal),
					output.PnL(a.Stats.PnL),
				)
			}
			table.Render()
			return nil
		},
	}
}

func newAccountsAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Connect a demat account",
		Example: `  algodesk accounts add --broker angel --client-id A123 --name "Desk 1" \
      --api-key KEY --totp-secret SECRET`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			req := api.AddAccountRequest{}
			req.BrokerName, _ = cmd.Flags().GetString("broker")
			req.ClientID, _ = cmd.Flags().GetString("client-id")
			req.DisplayName, _ = cmd.Flags().GetString("name")
			req.Password, _ = cmd.Flags().GetString("password")
			req.TOTPSecret, _ = cmd.Flags().GetString("totp-secret")
			req.APIKey, _ = cmd.Flags().GetString("api-key")

			if missing := missingFields(map[string]string{
				"--broker":    req.BrokerName,
				"--client-id": req.ClientID,
			}); len(missing) > 0 {
				return fmt.Errorf("required: %s", strings.Join(missing, ", "))
			}

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			account, err := app.API.AddDematAccount(ctx, req)
			if err != nil {
				output.Error("Adding account failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(account)
			}
			if account != nil {
				output.Success("✓ Added %s (%s)", account.Label(), account.ID)
			} else {
				output.Success("✓ Added %s", req.ClientID)
			}
			return nil
		},
	}

	cmd.Flags().String("broker", "", "broker name")
	cmd.Flags().String("client-id", "", "broker client id")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("password", "", "broker password or PIN")
	cmd.Flags().String("totp-secret", "", "TOTP secret for automatic login")
	cmd.Flags().String("api-key", "", "broker API key")
	return cmd
}

func newAccountsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <account-id>",
		Short: "Disconnect a demat account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.API.DeleteDematAccount(ctx, args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "id": args[0]})
			}
			output.Success("✓ Deleted account %s", args[0])
			return nil
		},
	}
}

func newAccountsTradingCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "trading <account-id> on|off",
		Short:     "Enable or disable trading for an account",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			enabled, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.sync(ctx); err != nil {
				return err
			}
			if err := app.Dispatcher.ToggleTrading(ctx, args[0], enabled); err != nil {
				return err
			}

			acct, _ := app.Dashboard.Account(args[0])
			if output.IsJSON() {
				return output.JSON(acct)
			}
			output.Success("✓ Trading %s for %s", output.OnOff(acct.TradingEnabled), acct.Label())
			return nil
		},
	}
}

func newAccountsAutoLoginCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "auto-login",
		Short: "Ask the backend to log every account in to its broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 2*time.Minute)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.API.AutoLoginUsers(ctx); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"status": true})
			}
			output.Success("✓ Auto-login requested")
			return nil
		},
	}
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "enable", "1":
		return true, nil
	case "off", "false", "disable", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)
	return missing
}

// accountLabel resolves an account id to its display label using the
// dashboard registry.
func accountLabel(app *App, id string) string {
	if acct, ok := app.Dashboard.Account(id); ok {
		return acct.Label()
	}
	return id
}
