package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/siteterminal/internal/domain/user"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts in the local store",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		admin, _ := cmd.Flags().GetBool("admin")

		container, err := openContainer(cmd)
		if err != nil {
			return err
		}
		defer container.Close()

		role := user.RoleUser
		if admin {
			role = user.RoleAdmin
		}
		u, err := container.AuthService.CreateUser(context.Background(), email, password, name, role)
		if err != nil {
			return err
		}
		logger.Infow("user created", "user_id", u.ID(), "role", u.Role())
		fmt.Fprintf(cmd.OutOrStdout(), "%s Created %s (%s) id=%s\n", colorSuccess("✓"), u.Email(), u.Role(), u.ID())
		return nil
	},
}

var userPromoteCmd = &cobra.Command{
	Use:   "promote <email>",
	Short: "Grant the ADMIN role to an existing account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer(cmd)
		if err != nil {
			return err
		}
		defer container.Close()

		u, err := container.AuthService.Promote(context.Background(), args[0])
		if err != nil {
			return err
		}
		logger.Infow("user promoted", "user_id", u.ID())
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s is now %s\n", colorSuccess("✓"), u.Email(), u.Role())
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts with their command counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := openContainer(cmd)
		if err != nil {
			return err
		}
		defer container.Close()

		users, err := container.AuthService.ListUsers(context.Background())
		if err != nil {
			return err
		}
		printUsers(cmd.OutOrStdout(), users)
		return nil
	},
}

func printUsers(w io.Writer, users []user.Summary) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-32s  %-6s  %8s  %s\n", "ID", "EMAIL", "ROLE", "COMMANDS", "CREATED")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, u := range users {
		role := string(u.Role)
		if u.Role == user.RoleAdmin {
			role = colorWarn(role)
		}
		fmt.Fprintf(w, "%-36s  %-32s  %-6s  %8d  %s\n", u.ID, u.Email, role, u.LogCount, u.CreatedAt.Format("2006-01-02"))
	}
}

func init() {
	userCreateCmd.Flags().String("email", "", "Account email")
	userCreateCmd.Flags().String("password", "", "Account password (at least 8 characters)")
	userCreateCmd.Flags().String("name", "", "Display name")
	userCreateCmd.Flags().Bool("admin", false, "Create the account with the ADMIN role")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userPromoteCmd)
	userCmd.AddCommand(userListCmd)
}
