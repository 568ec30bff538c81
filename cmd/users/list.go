package users

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		list, err := repository.NewBunUserRepository(db).List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tEMAIL\tSTATUS")
		for i := range list {
			status := "active"
			if list[i].Disabled() {
				status = "disabled"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", list[i].ID, list[i].Username, list[i].Email, status)
		}
		return w.Flush()
	},
}
