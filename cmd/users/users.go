// Package users provides CLI commands for managing user accounts.
// There is no self-service signup; an operator provisions accounts.
package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for user management.
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
	Long:  `Commands for creating, listing, and disabling user accounts.`,
}

func init() {
	UsersCmd.AddCommand(createCmd)
	UsersCmd.AddCommand(listCmd)
	UsersCmd.AddCommand(disableCmd)
}
