package postgres

import (
	"context"
	"fmt"
)

// EmbeddingDim is the fixed dimension for identity embeddings
// (512 for Facenet512/ArcFace class models).
const EmbeddingDim = 512

// Migrate runs database migrations.
func (p *Pool) Migrate(ctx context.Context) error {
	return p.MigrateWithDim(ctx, EmbeddingDim)
}

// MigrateWithDim runs migrations with a custom embedding dimension.
func (p *Pool) MigrateWithDim(ctx context.Context, embeddingDim int) error {
	// Create pgvector extension
	if _, err := p.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createIdentities := `
		CREATE TABLE IF NOT EXISTS identities (
			id               VARCHAR(64) PRIMARY KEY,
			name             VARCHAR(255) NOT NULL,
			name_normalized  VARCHAR(255) NOT NULL,
			department       VARCHAR(50) NOT NULL DEFAULT '',
			year             VARCHAR(20) NOT NULL DEFAULT '',
			division         VARCHAR(10) NOT NULL DEFAULT '',
			dim              INTEGER NOT NULL,
			created_at       TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`
	if _, err := p.Exec(ctx, createIdentities); err != nil {
		return fmt.Errorf("failed to create identities table: %w", err)
	}

	// One row per enrollment sample; identities may register several.
	createEmbeddings := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS identity_embeddings (
			id           BIGSERIAL PRIMARY KEY,
			identity_id  VARCHAR(64) NOT NULL REFERENCES identities(id) ON DELETE CASCADE,
			embedding    vector(%d) NOT NULL,
			created_at   TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`, embeddingDim)
	if _, err := p.Exec(ctx, createEmbeddings); err != nil {
		return fmt.Errorf("failed to create identity_embeddings table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS identity_embeddings_identity_idx ON identity_embeddings(identity_id)
	`); err != nil {
		return fmt.Errorf("failed to create identity_embeddings index: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS identities_scope_idx ON identities(department, year, division)
	`); err != nil {
		return fmt.Errorf("failed to create identities scope index: %w", err)
	}

	createSessions := `
		CREATE TABLE IF NOT EXISTS attendance_sessions (
			id               VARCHAR(64) PRIMARY KEY,
			subject          VARCHAR(50) NOT NULL,
			department       VARCHAR(50) NOT NULL DEFAULT '',
			year             VARCHAR(20) NOT NULL DEFAULT '',
			division         VARCHAR(10) NOT NULL DEFAULT '',
			date             VARCHAR(32) NOT NULL DEFAULT '',
			duration_minutes INTEGER NOT NULL,
			created_at       TIMESTAMP WITH TIME ZONE NOT NULL,
			ends_at          TIMESTAMP WITH TIME ZONE NOT NULL,
			ended_at         TIMESTAMP WITH TIME ZONE,
			status           VARCHAR(16) NOT NULL DEFAULT 'active'
		)
	`
	if _, err := p.Exec(ctx, createSessions); err != nil {
		return fmt.Errorf("failed to create attendance_sessions table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS attendance_sessions_status_idx ON attendance_sessions(status)
	`); err != nil {
		return fmt.Errorf("failed to create attendance_sessions status index: %w", err)
	}

	createRoster := `
		CREATE TABLE IF NOT EXISTS session_roster (
			session_id   VARCHAR(64) NOT NULL REFERENCES attendance_sessions(id) ON DELETE CASCADE,
			identity_id  VARCHAR(64) NOT NULL,
			name         VARCHAR(255) NOT NULL,
			PRIMARY KEY (session_id, identity_id)
		)
	`
	if _, err := p.Exec(ctx, createRoster); err != nil {
		return fmt.Errorf("failed to create session_roster table: %w", err)
	}

	// The unique constraint on (session_id, identity_id) is the last-resort
	// arbiter for concurrent marking; the engine maps its violation to a
	// duplicate outcome.
	createAttendance := `
		CREATE TABLE IF NOT EXISTS attendance_records (
			id           VARCHAR(64) PRIMARY KEY,
			session_id   VARCHAR(64) NOT NULL REFERENCES attendance_sessions(id) ON DELETE CASCADE,
			identity_id  VARCHAR(64) NOT NULL,
			name         VARCHAR(255) NOT NULL,
			status       VARCHAR(16) NOT NULL DEFAULT 'present',
			confidence   DOUBLE PRECISION NOT NULL,
			marked_at    TIMESTAMP WITH TIME ZONE NOT NULL,
			UNIQUE (session_id, identity_id)
		)
	`
	if _, err := p.Exec(ctx, createAttendance); err != nil {
		return fmt.Errorf("failed to create attendance_records table: %w", err)
	}

	if _, err := p.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS attendance_records_session_idx ON attendance_records(session_id)
	`); err != nil {
		return fmt.Errorf("failed to create attendance_records session index: %w", err)
	}

	return nil
}
