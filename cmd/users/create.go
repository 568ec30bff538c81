package users

import (
	"bufio"
	"fmt"
	"net/mail"
	"os"

	"github.com/spf13/cobra"

	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/config"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/db/models"
	"github.com/modelhub-io/modelhub/internal/repository"
)

var (
	emailFlag    string
	usernameFlag string
	passwordFlag string
	stdinFlag    bool
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if usernameFlag == "" {
			return fmt.Errorf("--username flag is required")
		}
		if _, err := mail.ParseAddress(emailFlag); err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("Enter password: ")
			if scanner.Scan() {
				password = scanner.Text()
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			return err
		}

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

		user := &models.User{
			ID:           bunx.NewUUIDv7(),
			Email:        emailFlag,
			Username:     usernameFlag,
			PasswordHash: hash,
		}
		if err := repository.NewBunUserRepository(db).Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Println("User created successfully!")
		fmt.Println("----------------------------------------")
		fmt.Printf("User ID:  %s\n", user.ID)
		fmt.Printf("Email:    %s\n", user.Email)
		fmt.Printf("Username: %s\n", user.Username)
		fmt.Println("----------------------------------------")
		return nil
	},
}

func init() {
	createCmd.Flags().StringVar(&emailFlag, "email", "", "Email address (required)")
	createCmd.Flags().StringVar(&usernameFlag, "username", "", "Username (required)")
	createCmd.Flags().StringVar(&passwordFlag, "password", "", "Password")
	createCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin")
}
