package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facemark/internal/config"
	"github.com/kozaktomas/facemark/internal/embedder"
	"github.com/kozaktomas/facemark/internal/store"
	"github.com/kozaktomas/facemark/internal/store/postgres"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Manage enrolled students",
}

var rosterEnrollCmd = &cobra.Command{
	Use:   "enroll <image>...",
	Short: "Enroll a student from one or more face photos",
	Long: `Enroll a student by computing face embeddings for the given photos.
Multiple photos improve matching; their embeddings are averaged at
match time. The embedding server must be running.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRosterEnroll,
}

var rosterFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find enrolled students by name",
	Long: `Find enrolled students by name. Matching is case-insensitive and
ignores diacritics.`,
	Args: cobra.ExactArgs(1),
	RunE: runRosterFind,
}

var rosterAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check enrolled embeddings against the configured model",
	Long: `Audit enrolled embeddings. Flags identities whose embedding
dimensionality does not match the configured model - typically leftovers
from an earlier model that would never match and should be re-enrolled.`,
	RunE: runRosterAudit,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterEnrollCmd)
	rosterCmd.AddCommand(rosterFindCmd)
	rosterCmd.AddCommand(rosterAuditCmd)

	rosterEnrollCmd.Flags().String("name", "", "Student name (required)")
	rosterEnrollCmd.Flags().String("department", "", "Department")
	rosterEnrollCmd.Flags().String("year", "", "Year")
	rosterEnrollCmd.Flags().String("division", "", "Division")
	rosterEnrollCmd.MarkFlagRequired("name")
}

func runRosterEnroll(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()
	st := postgres.New(pool)

	emb := embedder.New(cfg.Embedder.URL, cfg.Embedder.Model, cfg.Embedder.Timeout)
	ctx := context.Background()
	if err := emb.Health(ctx); err != nil {
		return err
	}

	identity := &store.Identity{
		ID:   uuid.NewString(),
		Name: mustGetString(cmd, "name"),
		Scope: store.Scope{
			Department: mustGetString(cmd, "department"),
			Year:       mustGetString(cmd, "year"),
			Division:   mustGetString(cmd, "division"),
		},
		Dim: cfg.EmbeddingDim(),
	}

	bar := progressbar.Default(int64(len(args)), "Computing embeddings")
	for _, path := range args {
		imageData, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		embedding, err := emb.ComputeFaceEmbedding(ctx, imageData)
		if err != nil {
			return fmt.Errorf("embedding %s: %w", path, err)
		}
		if len(embedding) != identity.Dim {
			return fmt.Errorf("embedding %s: got dimension %d, model %s expects %d",
				path, len(embedding), emb.Model(), identity.Dim)
		}
		identity.Embeddings = append(identity.Embeddings, embedding)
		bar.Add(1)
	}

	if err := st.InsertIdentity(ctx, identity); err != nil {
		return fmt.Errorf("inserting identity: %w", err)
	}

	fmt.Printf("Enrolled %s (%s) with %d embeddings\n",
		identity.Name, identity.Scope.Key(), len(identity.Embeddings))
	return nil
}

func runRosterFind(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	identities, err := postgres.New(pool).FindIdentitiesByName(context.Background(), args[0])
	if err != nil {
		return err
	}

	if len(identities) == 0 {
		fmt.Printf("No students matching %q\n", args[0])
		return nil
	}
	for _, identity := range identities {
		fmt.Printf("%s  %s  (%s, dim %d)\n",
			identity.ID, identity.Name, identity.Scope.Key(), identity.Dim)
	}
	return nil
}

func runRosterAudit(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	defer pool.Close()

	ctx := context.Background()
	identities, err := postgres.New(pool).QueryIdentities(ctx, store.Scope{})
	if err != nil {
		return err
	}

	wantDim := cfg.EmbeddingDim()
	bar := progressbar.Default(int64(len(identities)), "Auditing embeddings")

	var bad int
	for _, identity := range identities {
		mismatched := 0
		for _, embedding := range identity.Embeddings {
			if len(embedding) != wantDim {
				mismatched++
			}
		}
		if mismatched > 0 {
			bad++
			fmt.Printf("\n%s (%s): %d of %d embeddings do not match dimension %d\n",
				identity.Name, identity.ID, mismatched, len(identity.Embeddings), wantDim)
		}
		bar.Add(1)
	}

	fmt.Printf("\nAudited %d students, %d need re-enrollment for model %s\n",
		len(identities), bad, cfg.Embedder.Model)
	return nil
}
