package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"

	"algodesk/internal/api"
	"algodesk/pkg/utils"
)

// addAuthCommands adds session and broker-link commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newRegisterCmd(app))
	rootCmd.AddCommand(newWhoamiCmd(app))
	rootCmd.AddCommand(newBrokerCmd(app))
}

// commandContext returns the command's context bounded by timeout.
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// flagOrPrompt returns the flag value, asking on stdin when it is empty.
func flagOrPrompt(cmd *cobra.Command, reader *bufio.Reader, flag, label string) (string, error) {
	value, _ := cmd.Flags().GetString(flag)
	if value != "" {
		return value, nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s: %w", flag, err)
	}
	value = strings.TrimSpace(line)
	if value == "" {
		return "", fmt.Errorf("%s is required", flag)
	}
	return value, nil
}

// angelTOTP returns --totp, a code generated from --totp-secret or
// ALGODESK_ANGEL_TOTP_SECRET, or prompts for one.
func angelTOTP(cmd *cobra.Command, reader *bufio.Reader, now time.Time) (string, error) {
	if code, _ := cmd.Flags().GetString("totp"); code != "" {
		return code, nil
	}
	secret, _ := cmd.Flags().GetString("totp-secret")
	if secret == "" {
		secret = os.Getenv("ALGODESK_ANGEL_TOTP_SECRET")
	}
	if secret == "" {
		return flagOrPrompt(cmd, reader, "totp", "TOTP")
	}
	code, err := totp.GenerateCode(strings.ToUpper(strings.ReplaceAll(secret, " ", "")), now)
	if err != nil {
		return "", fmt.Errorf("generating TOTP: %w", err)
	}
	return code, nil
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the trading backend",
		Long: `Log in with platform credentials. The issued token is stored locally
and sent on every later command until 'algodesk logout' or until the
backend rejects it.`,
		Example: `  algodesk login --email ops@example.com
  algodesk login --email ops@example.com --password secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			if err := app.ready(ctx); err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			email, err := flagOrPrompt(cmd, reader, "email", "Email")
			if err != nil {
				return err
			}
			password, err := flagOrPrompt(cmd, reader, "password", "Password")
			if err != nil {
				return err
			}

			user, err := app.API.Login(ctx, api.Credentials{Email: email, Password: password})
			if err != nil {
				output.Error("Login failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "user": user})
			}
			output.Success("✓ Logged in")
			if user != nil {
				output.Printf("  User:   %s <%s>\n", user.Name, user.Email)
				output.Printf("  Broker: %s\n", brokerLinkText(output, user.BrokerConnected))
			}
			return nil
		},
	}

	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 10*time.Second)
			defer cancel()

			if err := app.ready(ctx); err != nil {
				return err
			}
			if err := app.Session.Clear(ctx); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"status": true})
			}
			output.Success("✓ Logged out")
			return nil
		},
	}
}

func newRegisterCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a platform user",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			if err := app.ready(ctx); err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			reg := api.Registration{}
			var err error
			if reg.Name, err = flagOrPrompt(cmd, reader, "name", "Name"); err != nil {
				return err
			}
			if reg.Email, err = flagOrPrompt(cmd, reader, "email", "Email"); err != nil {
				return err
			}
			if reg.Password, err = flagOrPrompt(cmd, reader, "password", "Password"); err != nil {
				return err
			}

			if err := app.API.Register(ctx, reg); err != nil {
				output.Error("Registration failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"status": true})
			}
			output.Success("✓ Registered %s. Log in with 'algodesk login'.", reg.Email)
			return nil
		},
	}

	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("email", "", "account email")
	cmd.Flags().String("password", "", "account password")
	return cmd
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user and session expiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			user, err := app.API.UserInfo(ctx)
			if err != nil {
				return err
			}
			expiry, hasExpiry := app.Session.Expiry()

			if output.IsJSON() {
				result := map[string]interface{}{"user": user}
				if hasExpiry {
					result["expiresAt"] = expiry
				}
				return output.JSON(result)
			}

			output.Bold("%s <%s>", user.Name, user.Email)
			output.Printf("  Broker:  %s\n", brokerLinkText(output, user.BrokerConnected))
			if hasExpiry {
				left := time.Until(expiry)
				if left <= 0 {
					output.Printf("  Session: %s\n", output.Red("expired"))
				} else {
					output.Printf("  Session: expires in %s\n", utils.FormatDuration(left.Round(time.Minute)))
				}
			}
			return nil
		},
	}
}

func newBrokerCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Broker session management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Check whether a broker session is linked",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			linked, err := app.API.CheckBroker(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"brokerConnected": linked})
			}
			output.Printf("Broker: %s\n", brokerLinkText(output, linked))
			return nil
		},
	})

	angel := &cobra.Command{
		Use:   "angel-login",
		Short: "Link an Angel One broker session",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}

			reader := bufio.NewReader(cmd.InOrStdin())
			req := api.AngelLogin{}
			var err error
			if req.ClientCode, err = flagOrPrompt(cmd, reader, "client-code", "Client code"); err != nil {
				return err
			}
			if req.Password, err = flagOrPrompt(cmd, reader, "password", "PIN"); err != nil {
				return err
			}
			if req.TOTP, err = angelTOTP(cmd, reader, time.Now()); err != nil {
				return err
			}

			if err := app.API.LoginAngel(ctx, req); err != nil {
				output.Error("Broker login failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"status": true})
			}
			output.Success("✓ Broker session linked for %s", req.ClientCode)
			return nil
		},
	}
	angel.Flags().String("client-code", "", "Angel One client code")
	angel.Flags().String("password", "", "Angel One PIN")
	angel.Flags().String("totp", "", "current TOTP code")
	angel.Flags().String("totp-secret", "", "base32 TOTP secret; the code is generated (env ALGODESK_ANGEL_TOTP_SECRET)")
	cmd.AddCommand(angel)

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List brokers supported by the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			brokers, err := app.API.ExistingBrokers(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(brokers)
			}
			table := NewTable(output, "CODE", "NAME")
			for _, b := range brokers {
				table.AddRow(b.Code, b.Name)
			}
			table.Render()
			return nil
		},
	})

	return cmd
}

func brokerLinkText(output *Output, linked bool) string {
	if linked {
		return output.Green("linked")
	}
	return output.Yellow("not linked")
}
