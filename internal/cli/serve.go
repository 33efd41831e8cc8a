package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xiyo/replica-builder/internal/config"
	"github.com/xiyo/replica-builder/internal/logger"
	"github.com/xiyo/replica-builder/internal/server"
)

type serveFlags struct {
	port int
}

// newServeCommand creates the serve subcommand
func newServeCommand() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the replica builder HTTP server",
		Long:  `Start the HTTP server that accepts site build requests, dispatches the provisioning workflow and streams build status to clients.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags)
		},
	}

	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "Port to run the HTTP server on (overrides REPLICA_HTTP_PORT)")

	return cmd
}

// runServe starts the HTTP server and blocks until shutdown
func runServe(ctx context.Context, flags *serveFlags) error {
	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if flags.port != 0 {
		cfg.Server.Port = flags.port
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Cancel the server context on interrupt; Start shuts down gracefully
	// when its context ends
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	logger.Infof("Starting replica builder HTTP server on port %d", cfg.Server.Port)
	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
