package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"algodesk/internal/api"
	"algodesk/internal/dashboard"
	apperrors "algodesk/internal/errors"
	"algodesk/internal/models"
)

func addGroupCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group"},
		Short:   "Trading group management",
		Long: `Groups mirror the orders of their master account to every member.
Member and master changes take effect on the backend immediately.`,
	}

	cmd.AddCommand(newGroupsListCmd(app))
	cmd.AddCommand(newGroupsSaveCmd(app, "create"))
	cmd.AddCommand(newGroupsSaveCmd(app, "update"))
	cmd.AddCommand(newGroupsDeleteCmd(app))
	cmd.AddCommand(newGroupsChildrenCmd(app))
	cmd.AddCommand(newGroupsChildCmd(app, "add-child"))
	cmd.AddCommand(newGroupsChildCmd(app, "remove-child"))
	cmd.AddCommand(newGroupsMasterCmd(app))
	cmd.AddCommand(newGroupsTradingCmd(app))
	cmd.AddCommand(newGroupsSquareOffCmd(app))

	rootCmd.AddCommand(cmd)
}

func newGroupsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
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
			groups := app.Dashboard.Groups()
			if output.IsJSON() {
				return output.JSON(groups)
			}
			if len(groups) == 0 {
				output.Dim("No groups. Create one with 'algodesk groups create'.")
				return nil
			}

			table := NewTable(output, "ID", "NAME", "MEMBERS", "MASTER", "TRADING")
			for _, g := range groups {
				master := "-"
				if g.MasterAccountID != nil {
					master = accountLabel(app, *g.MasterAccountID)
				}
				table.AddRow(g.ID, g.Name, fmt.Sprint(len(g.MemberAccountIDs)), master, output.OnOff(g.TradingEnabled))
			}
			table.Render()
			return nil
		},
	}
}

// newGroupsSaveCmd builds create and update, which share their flags.
func newGroupsSaveCmd(app *App, verb string) *cobra.Command {
	use := "create --name NAME [--members ID,ID]"
	short := "Create a group"
	argCheck := cobra.NoArgs
	if verb == "update" {
		use = "update <group-id> [--name NAME] [--members ID,ID]"
		short = "Rename a group or replace its members"
		argCheck = cobra.ExactArgs(1)
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  argCheck,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			name, _ := cmd.Flags().GetString("name")
			members, _ := cmd.Flags().GetStringSlice("members")
			req := api.GroupRequest{Name: name, MemberAccountIDs: members}

			if err := app.requireLogin(ctx); err != nil {
				return err
			}

			var (
				group *models.Group
				err   error
			)
			if verb == "create" {
				if strings.TrimSpace(name) == "" {
					return fmt.Errorf("--name is required")
				}
				group, err = app.API.CreateGroup(ctx, req)
			} else {
				req.GroupID = args[0]
				if err := app.sync(ctx); err != nil {
					return err
				}
				current, ok := app.Dashboard.Group(args[0])
				if !ok {
					return fmt.Errorf("group %s not found", args[0])
				}
				if req.Name == "" {
					req.Name = current.Name
				}
				if !cmd.Flags().Changed("members") {
					req.MemberAccountIDs = current.MemberAccountIDs
				}
				group, err = app.API.UpdateGroup(ctx, req)
			}
			if err != nil {
				output.Error("Saving group failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(group)
			}
			if group != nil {
				output.Success("✓ Saved group %s (%s)", group.Name, group.ID)
			} else {
				output.Success("✓ Saved group %s", req.Name)
			}
			return nil
		},
	}

	cmd.Flags().String("name", "", "group name")
	cmd.Flags().StringSlice("members", nil, "member account ids")
	return cmd
}

func newGroupsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <group-id>",
		Short: "Delete a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			if err := app.API.DeleteGroup(ctx, args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "id": args[0]})
			}
			output.Success("✓ Deleted group %s", args[0])
			return nil
		},
	}
}

func newGroupsChildrenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "children <group-id>",
		Short: "Show the member accounts of a group with their totals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			view, err := app.loadGroupView(ctx, args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(view.Summaries)
			}

			output.Bold("%s", view.Group.Name)
			table := NewTable(output, "ID", "CLIENT", "NAME", "ROLE", "TRADING", "OPEN", "P&L")
			for _, s := range view.Summaries {
				role := "member"
				if view.Group.IsMaster(s.AccountID) {
					role = output.Yellow("master")
				}
				table.AddRow(s.AccountID, s.ClientID, s.Name, role,
					output.OnOff(s.TradingEnabled), fmt.Sprint(s.OpenPositions), output.PnL(s.PnL))
			}
			table.Render()
			output.Printf("\nTotal P&L: %s\n", output.PnL(view.Aggregate.PnL))
			return nil
		},
	}
}

func newGroupsChildCmd(app *App, verb string) *cobra.Command {
	short := "Add an account to a group"
	if verb == "remove-child" {
		short = "Remove an account from a group"
	}
	return &cobra.Command{
		Use:   verb + " <group-id> <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			if err := app.requireLogin(ctx); err != nil {
				return err
			}
			call := app.API.AddChild
			if verb == "remove-child" {
				call = app.API.RemoveChild
			}
			group, err := call(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(group)
			}
			if verb == "remove-child" {
				output.Success("✓ Removed %s from %s", args[1], args[0])
			} else {
				output.Success("✓ Added %s to %s", args[1], args[0])
			}
			return nil
		},
	}
}

func newGroupsMasterCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "master <group-id> <account-id> connect|disconnect",
		Short:     "Make a member the group's master, or disconnect the master",
		Args:      cobra.ExactArgs(3),
		ValidArgs: []string{"connect", "disconnect"},
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
			mode := models.MasterAction(strings.ToLower(args[2]))
			if err := app.Dispatcher.ToggleMaster(ctx, args[0], args[1], mode); err != nil {
				return err
			}

			group, _ := app.Dashboard.Group(args[0])
			if output.IsJSON() {
				return output.JSON(group)
			}
			if group.MasterAccountID != nil {
				output.Success("✓ Master of %s is %s", group.Name, accountLabel(app, *group.MasterAccountID))
			} else {
				output.Success("✓ %s has no master", group.Name)
			}
			return nil
		},
	}
}

func newGroupsTradingCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "trading <group-id> on|off",
		Short:     "Enable or disable mirrored trading for a group",
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
			if err := app.Dispatcher.ToggleGroupTrading(ctx, args[0], enabled); err != nil {
				return err
			}

			group, _ := app.Dashboard.Group(args[0])
			if output.IsJSON() {
				return output.JSON(group)
			}
			output.Success("✓ Trading %s for %s", output.OnOff(group.TradingEnabled), group.Name)
			return nil
		},
	}
}

func newGroupsSquareOffCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "square-off <group-id>",
		Short: "Close every open position of every member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			view, err := app.loadGroupView(ctx, args[0])
			if err != nil {
				return err
			}
			open := 0
			for _, s := range view.Summaries {
				open += s.OpenPositions
			}
			question := fmt.Sprintf("Square off %d open position(s) across %s?", open, view.Group.Name)
			if ok, err := confirm(cmd, question); err != nil || !ok {
				return err
			}

			if err := app.Dispatcher.SquareOffAllByGroup(ctx, args[0]); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"status": true, "groupId": args[0]})
			}
			output.Success("✓ Square-off requested for %s", view.Group.Name)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "skip confirmation")
	return cmd
}

// confirm asks a yes/no question unless --yes was given.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	if yes, _ := cmd.Flags().GetBool("yes"); yes {
		return true, nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("confirmation required: pass --yes")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// loadGroupView syncs registries, fetches the group's children and returns
// the projected view.
func (app *App) loadGroupView(ctx context.Context, groupID string) (dashboard.GroupView, error) {
	if err := app.requireLogin(ctx); err != nil {
		return dashboard.GroupView{}, err
	}
	if err := app.sync(ctx); err != nil {
		return dashboard.GroupView{}, err
	}
	if err := app.fetchGroup(ctx, groupID); err != nil {
		return dashboard.GroupView{}, err
	}
	view, ok := app.Dashboard.GroupView(groupID)
	if !ok {
		return dashboard.GroupView{}, fmt.Errorf("group %s: %w", groupID, apperrors.ErrNotFound)
	}
	return view, nil
}
