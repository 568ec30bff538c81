package users

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/repository"
)

var disableCmd = &cobra.Command{
	Use:   "disable <user-id>",
	Short: "Disable a user account",
	Long: `Disables the account and ends all of its sessions. Edit locks held
by those sessions are freed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID := args[0]

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ctx := cmd.Context()
		db, err := bunx.Open(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		if err := repository.NewBunUserRepository(db).Disable(ctx, userID); err != nil {
			return fmt.Errorf("failed to disable user: %w", err)
		}

		ended, err := repository.NewBunSessionRepository(db).DeleteByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to end sessions: %w", err)
		}
		if len(ended) > 0 {
			freed, err := repository.NewBunProjectRepository(db).ReleaseLocksBySessions(ctx, ended)
			if err != nil {
				return fmt.Errorf("failed to release locks: %w", err)
			}
			log.Printf("Ended %d session(s), freed %d lock(s)", len(ended), freed)
		}

		fmt.Printf("User %s disabled\n", userID)
		return nil
	},
}
