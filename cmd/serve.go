package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facemark/internal/config"
	"github.com/kozaktomas/facemark/internal/embedder"
	"github.com/kozaktomas/facemark/internal/engine"
	"github.com/kozaktomas/facemark/internal/store/postgres"
	"github.com/kozaktomas/facemark/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the attendance web server",
	Long: `Start the Facemark web server.
The server exposes the session and attendance API used by classroom
kiosks and the admin frontend. Timers for sessions that were active
before a restart are restored on startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	st := postgres.New(pool)
	eng := engine.New(st, engine.Config{
		Threshold:  cfg.Matching.Threshold,
		CacheTTL:   cfg.Matching.CacheTTL,
		HNSWCutoff: cfg.Matching.HNSWCutoff,
	})

	ctx := context.Background()
	if err := eng.Sessions.RestoreTimers(ctx); err != nil {
		return fmt.Errorf("restoring session timers: %w", err)
	}

	emb := embedder.New(cfg.Embedder.URL, cfg.Embedder.Model, cfg.Embedder.Timeout)
	fmt.Printf("Using embedding model %s (dim %d, threshold %.2f)\n",
		emb.Model(), cfg.EmbeddingDim(), cfg.Matching.Threshold)

	server := web.NewServer(cfg, eng, emb, st, emb)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Facemark on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
