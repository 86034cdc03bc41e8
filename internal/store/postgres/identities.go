package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/facemark/internal/store"
)

// QueryIdentities returns identities matching the scope filters that have
// at least one stored embedding. A zero scope returns all identities.
func (s *Store) QueryIdentities(ctx context.Context, scope store.Scope) ([]store.Identity, error) {
	query := `
		SELECT i.id, i.name, i.department, i.year, i.division, i.dim, i.created_at
		FROM identities i
		WHERE EXISTS (SELECT 1 FROM identity_embeddings e WHERE e.identity_id = i.id)
	`
	args := []any{}
	if scope.Department != "" {
		args = append(args, scope.Department)
		query += fmt.Sprintf(" AND i.department = $%d", len(args))
	}
	if scope.Year != "" {
		args = append(args, scope.Year)
		query += fmt.Sprintf(" AND i.year = $%d", len(args))
	}
	if scope.Division != "" {
		args = append(args, scope.Division)
		query += fmt.Sprintf(" AND i.division = $%d", len(args))
	}
	query += " ORDER BY i.id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	var identities []store.Identity
	index := make(map[string]int)
	for rows.Next() {
		var id store.Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.Scope.Department, &id.Scope.Year, &id.Scope.Division, &id.Dim, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		index[id.ID] = len(identities)
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	if len(identities) == 0 {
		return nil, nil
	}

	if err := s.loadEmbeddings(ctx, identities, index); err != nil {
		return nil, err
	}
	return identities, nil
}

// loadEmbeddings attaches all stored embedding vectors to the given identities.
func (s *Store) loadEmbeddings(ctx context.Context, identities []store.Identity, index map[string]int) error {
	rows, err := s.pool.Query(ctx, `
		SELECT identity_id, embedding
		FROM identity_embeddings
		ORDER BY identity_id, id
	`)
	if err != nil {
		return fmt.Errorf("query identity embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var identityID string
		var vec pgvector.Vector
		if err := rows.Scan(&identityID, &vec); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		i, ok := index[identityID]
		if !ok {
			continue
		}
		identities[i].Embeddings = append(identities[i].Embeddings, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating embeddings: %w", err)
	}
	return nil
}

// InsertIdentity registers an identity with its enrollment embeddings.
// Used by registration tooling and tests; the engine itself only reads.
func (s *Store) InsertIdentity(ctx context.Context, identity *store.Identity) error {
	tx, err := s.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identities (id, name, name_normalized, department, year, division, dim, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`, identity.ID, identity.Name, store.NormalizeName(identity.Name),
		identity.Scope.Department, identity.Scope.Year, identity.Scope.Division, identity.Dim)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}

	for _, emb := range identity.Embeddings {
		vec := pgvector.NewVector(emb)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO identity_embeddings (identity_id, embedding) VALUES ($1, $2::vector)
		`, identity.ID, vec); err != nil {
			return fmt.Errorf("insert embedding for %s: %w", identity.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FindIdentitiesByName returns identities whose normalized name contains the
// normalized needle. Diacritics and case are ignored.
func (s *Store) FindIdentitiesByName(ctx context.Context, name string) ([]store.Identity, error) {
	normalized := store.NormalizeName(name)
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, department, year, division, dim, created_at
		FROM identities
		WHERE name_normalized LIKE '%' || $1 || '%'
		ORDER BY name_normalized
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("find identities by name: %w", err)
	}
	defer rows.Close()

	var identities []store.Identity
	for rows.Next() {
		var id store.Identity
		if err := rows.Scan(&id.ID, &id.Name, &id.Scope.Department, &id.Scope.Year, &id.Scope.Division, &id.Dim, &id.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		identities = append(identities, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating identities: %w", err)
	}
	return identities, nil
}
