package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facemark/internal/config"
	"github.com/kozaktomas/facemark/internal/store/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Long: `Create the Facemark tables and the pgvector extension.
The embedding column dimensionality follows the configured model, so run
this against a fresh database after changing EMBEDDER_MODEL.`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	dim := cfg.EmbeddingDim()
	if err := pool.MigrateWithDim(context.Background(), dim); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	fmt.Printf("Schema ready (embedding dimension %d)\n", dim)
	return nil
}
