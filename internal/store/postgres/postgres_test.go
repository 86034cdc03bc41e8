//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/facemark/internal/config"
	"github.com/kozaktomas/facemark/internal/store"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dbURL := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	cfg := &config.DatabaseConfig{
		URL:          dbURL,
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	pool, err := NewPool(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		pool.Close()
		container.Terminate(ctx)
	}
	return New(pool), cleanup
}

func testEmbedding(seed float32) []float32 {
	emb := make([]float32, EmbeddingDim)
	for i := range emb {
		emb[i] = seed
	}
	return emb
}

func TestIdentityRoundTrip(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	defer cleanup()
	ctx := context.Background()

	identity := &store.Identity{
		ID:   "stu-001",
		Name: "Jan Novák",
		Scope: store.Scope{
			Department: "CS",
			Year:       "2",
			Division:   "A",
		},
		Embeddings: [][]float32{testEmbedding(0.1), testEmbedding(0.3)},
		Dim:        EmbeddingDim,
	}
	if err := st.InsertIdentity(ctx, identity); err != nil {
		t.Fatalf("InsertIdentity failed: %v", err)
	}

	// Scoped query finds it.
	ids, err := st.QueryIdentities(ctx, store.Scope{Department: "CS"})
	if err != nil {
		t.Fatalf("QueryIdentities failed: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 identity, got %d", len(ids))
	}
	if len(ids[0].Embeddings) != 2 {
		t.Errorf("expected 2 embeddings, got %d", len(ids[0].Embeddings))
	}
	if len(ids[0].Embeddings[0]) != EmbeddingDim {
		t.Errorf("expected dim %d, got %d", EmbeddingDim, len(ids[0].Embeddings[0]))
	}

	// Mismatched scope finds nothing.
	ids, err = st.QueryIdentities(ctx, store.Scope{Department: "EE"})
	if err != nil {
		t.Fatalf("QueryIdentities failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected 0 identities for EE scope, got %d", len(ids))
	}

	// Diacritic-insensitive name lookup.
	found, err := st.FindIdentitiesByName(ctx, "novak")
	if err != nil {
		t.Fatalf("FindIdentitiesByName failed: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected 1 identity for name 'novak', got %d", len(found))
	}
}

func TestSessionLifecycle(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	session := &store.Session{
		ID:              "sess-001",
		Subject:         "Databases",
		Scope:           store.Scope{Department: "CS", Year: "2", Division: "A"},
		Date:            "2025-01-15",
		DurationMinutes: 20,
		CreatedAt:       now,
		EndsAt:          now.Add(20 * time.Minute),
		Status:          store.SessionActive,
		Roster: []store.RosterEntry{
			{IdentityID: "stu-001", Name: "Jan Novák"},
			{IdentityID: "stu-002", Name: "Eva Malá"},
		},
	}
	if err := st.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	got, err := st.GetSession(ctx, "sess-001")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != store.SessionActive {
		t.Errorf("expected active status, got %s", got.Status)
	}
	if len(got.Roster) != 2 {
		t.Errorf("expected roster of 2, got %d", len(got.Roster))
	}

	if _, err := st.GetSession(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown session, got %v", err)
	}

	// active -> ended transition succeeds once.
	endedAt := now.Add(5 * time.Minute)
	changed, err := st.UpdateSessionStatus(ctx, "sess-001", store.SessionActive, store.SessionEnded, &endedAt)
	if err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}
	if !changed {
		t.Fatal("expected transition to be applied")
	}

	// A second close attempt (stale timer path) is a no-op.
	changed, err = st.UpdateSessionStatus(ctx, "sess-001", store.SessionActive, store.SessionEnded, &endedAt)
	if err != nil {
		t.Fatalf("UpdateSessionStatus failed: %v", err)
	}
	if changed {
		t.Error("expected repeated transition to be a no-op")
	}

	got, err = st.GetSession(ctx, "sess-001")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != store.SessionEnded {
		t.Errorf("expected ended status, got %s", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("expected ended_at to be set")
	}

	// Unknown session surfaces ErrNotFound.
	if _, err := st.UpdateSessionStatus(ctx, "missing", store.SessionActive, store.SessionEnded, nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAttendanceUniqueConstraint(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC()
	session := &store.Session{
		ID:              "sess-002",
		Subject:         "Networks",
		DurationMinutes: 30,
		CreatedAt:       now,
		EndsAt:          now.Add(30 * time.Minute),
		Status:          store.SessionActive,
	}
	if err := st.InsertSession(ctx, session); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	record := &store.AttendanceRecord{
		ID:         "rec-001",
		SessionID:  "sess-002",
		IdentityID: "stu-001",
		Name:       "Jan Novák",
		Status:     store.AttendancePresent,
		Confidence: 87.5,
		MarkedAt:   now,
	}
	if err := st.InsertAttendance(ctx, record); err != nil {
		t.Fatalf("first InsertAttendance failed: %v", err)
	}

	dup := *record
	dup.ID = "rec-002"
	if err := st.InsertAttendance(ctx, &dup); !errors.Is(err, store.ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate insert, got %v", err)
	}

	records, err := st.QueryAttendance(ctx, "sess-002")
	if err != nil {
		t.Fatalf("QueryAttendance failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected exactly 1 record, got %d", len(records))
	}
}
