// Package testutil provides shared fixtures for tests that need a database,
// a rule file or a fully wired engine.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Veraticus/autobooks/internal/engine"
	"github.com/Veraticus/autobooks/internal/rules"
	"github.com/Veraticus/autobooks/internal/scoring"
	"github.com/Veraticus/autobooks/internal/similarity"
	"github.com/Veraticus/autobooks/internal/storage"
	"github.com/philippgille/chromem-go"
)

// SetupTestDB creates a migrated in-memory database that is closed when the test ends.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	db, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// SetupRules opens an empty rule store in a temporary directory.
func SetupRules(t *testing.T) *rules.Store {
	t.Helper()

	store, err := rules.Open(filepath.Join(t.TempDir(), "rules.json"))
	if err != nil {
		t.Fatalf("failed to open rule store: %v", err)
	}
	return store
}

// Stack is an engine wired to real stores.
type Stack struct {
	Engine  *engine.Engine
	DB      *storage.SQLiteStorage
	Rules   *rules.Store
	Gateway *similarity.ChromemGateway
}

// SetupStack wires an engine to an in-memory database, a temporary rule file
// and an in-memory similarity index.
func SetupStack(t *testing.T) *Stack {
	t.Helper()

	db := SetupTestDB(t)
	store := SetupRules(t)

	scorer, err := scoring.NewScorer(scoring.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}
	gateway, err := similarity.NewChromemGateway(chromem.NewDB(), similarity.NewHashEmbedder(0), nil)
	if err != nil {
		t.Fatalf("failed to create similarity gateway: %v", err)
	}

	eng, err := engine.New(engine.Deps{
		Rules:   store,
		Scorer:  scorer,
		Pending: db,
		Gateway: gateway,
		Ledger:  db,
	}, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	return &Stack{Engine: eng, DB: db, Rules: store, Gateway: gateway}
}
