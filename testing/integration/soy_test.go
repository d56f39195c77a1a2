//go:build integration

package integration_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/matriz-ai/matriz"
)

func getTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	return db
}

func newTestNode(t *testing.T, core *matriz.Core, traceID string) *matriz.Node {
	t.Helper()

	node, err := core.NewNode(context.Background(), matriz.NodeSpec{
		Type:    matriz.NodeComputation,
		State:   matriz.NodeState{Confidence: 0.9, Salience: 0.5},
		TraceID: traceID,
	})
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	return node
}

func TestSoyArchive_SaveNode(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	archive, err := matriz.NewSoyArchive(db)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}

	ctx := context.Background()
	core := matriz.NewCore("integration", []string{"testing"}, "tenant-integration")
	node := newTestNode(t, core, "trace-save")

	if err := archive.SaveNode(ctx, node); err != nil {
		t.Fatalf("failed to save node: %v", err)
	}

	loaded, err := archive.NodesByTrace(ctx, "trace-save")
	if err != nil {
		t.Fatalf("failed to load nodes: %v", err)
	}
	if len(loaded) == 0 {
		t.Fatal("expected at least one node back")
	}
	found := false
	for _, n := range loaded {
		if n.ID == node.ID {
			found = true
			if n.Type != matriz.NodeComputation {
				t.Errorf("expected COMPUTATION, got %s", n.Type)
			}
		}
	}
	if !found {
		t.Errorf("saved node %s not returned by trace query", node.ID)
	}

	// Clean up.
	if _, err := archive.DeleteBefore(ctx, time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("failed to clean up: %v", err)
	}
}

func TestSoyArchive_NodesByTenant(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	archive, err := matriz.NewSoyArchive(db)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}

	ctx := context.Background()
	core := matriz.NewCore("integration", []string{"testing"}, "tenant-by-tenant")
	for i := 0; i < 3; i++ {
		if err := archive.SaveNode(ctx, newTestNode(t, core, "trace-tenant")); err != nil {
			t.Fatalf("failed to save node: %v", err)
		}
	}
	defer func() { _, _ = archive.DeleteBefore(ctx, time.Now().Add(time.Minute)) }()

	loaded, err := archive.NodesByTenant(ctx, "tenant-by-tenant", 2)
	if err != nil {
		t.Fatalf("failed to load nodes: %v", err)
	}
	if len(loaded) != 2 {
		t.Errorf("expected the limit to apply, got %d nodes", len(loaded))
	}
	for _, n := range loaded {
		if n.Provenance.Tenant != "tenant-by-tenant" {
			t.Errorf("unexpected tenant %q", n.Provenance.Tenant)
		}
	}
}

func TestSoyArchive_DeleteBefore(t *testing.T) {
	db := getTestDB(t)
	defer db.Close()

	archive, err := matriz.NewSoyArchive(db)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}

	ctx := context.Background()
	core := matriz.NewCore("integration", []string{"testing"}, "tenant-retention")
	node := newTestNode(t, core, "trace-retention")
	if err := archive.SaveNode(ctx, node); err != nil {
		t.Fatalf("failed to save node: %v", err)
	}

	removed, err := archive.DeleteBefore(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("failed to delete: %v", err)
	}
	if removed == 0 {
		t.Error("expected at least one node removed")
	}

	loaded, err := archive.NodesByTrace(ctx, "trace-retention")
	if err != nil {
		t.Fatalf("failed to load nodes: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected an empty trace after retention, got %d", len(loaded))
	}
}
