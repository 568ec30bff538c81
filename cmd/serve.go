package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modelhub-io/modelhub/internal/auth"
	"github.com/modelhub-io/modelhub/internal/db/bunx"
	"github.com/modelhub-io/modelhub/internal/repository"
	"github.com/modelhub-io/modelhub/internal/server"
	"github.com/modelhub-io/modelhub/internal/services/access"
	"github.com/modelhub-io/modelhub/internal/services/checker"
	"github.com/modelhub-io/modelhub/internal/services/project"
	"github.com/modelhub-io/modelhub/internal/services/query"
	"github.com/modelhub-io/modelhub/internal/services/session"
	"github.com/modelhub-io/modelhub/internal/services/validation"
	"github.com/modelhub-io/modelhub/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coordination server",
	Long:  `Starts the HTTP API server together with the session sweeper.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := bunx.Open(ctx, cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		userRepo := repository.NewBunUserRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)
		projectRepo := repository.NewBunProjectRepository(db)
		accessRepo := repository.NewBunAccessRepository(db)
		queryRepo := repository.NewBunQueryRepository(db)

		enforcer, err := auth.InitEnforcer()
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("configure server metrics: %w", err)
		}
		coordMetrics, err := telemetry.NewCoordinatorMetrics()
		if err != nil {
			return fmt.Errorf("configure coordinator metrics: %w", err)
		}

		docValidator, err := validation.NewDocumentValidator(cfg.ModelSchemaPath)
		if err != nil {
			return fmt.Errorf("load model schema: %w", err)
		}

		accessSvc := access.NewService(accessRepo, userRepo, enforcer)
		sessionSvc := session.NewService(userRepo, sessionRepo, projectRepo, cfg.Session).
			WithMetrics(coordMetrics)
		projectSvc, err := project.NewService(projectRepo, accessSvc, docValidator, cfg.Lock)
		if err != nil {
			return fmt.Errorf("create project service: %w", err)
		}
		projectSvc.WithMetrics(coordMetrics)

		checkerClient := checker.NewClient(cfg.Checker)
		if checkerClient == nil {
			log.Printf("Checker integration disabled (CHECKER_URL not set); queries cannot run")
		}
		querySvc := query.NewService(queryRepo, projectRepo, accessSvc,
			checkerClient, cfg.Checker, cfg.ServerURL).
			WithMetrics(coordMetrics)

		// The sweeper expires idle sessions and frees the locks they held.
		sweepCtx, cancelSweep := context.WithCancel(ctx)
		defer cancelSweep()
		go sessionSvc.RunSweeper(sweepCtx)

		router := server.NewRouter(server.RouterOptions{
			Sessions:      sessionSvc,
			Projects:      projectSvc,
			Queries:       querySvc,
			CheckerSecret: []byte(cfg.Checker.SharedSecret),
			Metrics:       serverMetrics,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			log.Printf("Server URL: %s", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			cancelSweep()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
