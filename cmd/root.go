package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelhub-io/modelhub/cmd/users"
	"github.com/modelhub-io/modelhub/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hubapi",
	Short: "Coordination server for collaborative verification models",
	Long: `hubapi coordinates concurrent work on verification-model projects.
It manages sessions, per-project access rights, the edit lock lease, and
the query-invalidation cascade that keeps verification results honest.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Server base URL for checker callbacks (env: SERVER_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")

	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
