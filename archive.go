package matriz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/astql/postgres"
	"github.com/zoobzio/pipz"
	"github.com/zoobzio/soy"
)

// Archive is the optional external store for audit nodes and execution
// traces. The in-process graph and histories stay the source of truth for a
// running pipeline; the archive exists so the trail survives the process and
// so old nodes can be retired by age, which nothing in-process ever does.
type Archive interface {
	// SaveNode persists one audit node.
	SaveNode(ctx context.Context, node *Node) error

	// SaveTrace persists one execution trace.
	SaveTrace(ctx context.Context, trace *ExecutionTrace) error

	// NodesByTrace loads the nodes recorded under a trace ID, oldest first.
	NodesByTrace(ctx context.Context, traceID string) ([]*Node, error)

	// NodesByTenant loads a tenant's most recent nodes, newest first.
	NodesByTenant(ctx context.Context, tenant string, limit int) ([]*Node, error)

	// DeleteBefore removes nodes created before the cutoff and returns how
	// many were removed. This is the retention knob.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// nodeRow is the flat persistence shape for a node. The full record rides in
// the payload column; the indexed columns exist for retrieval and retention.
type nodeRow struct {
	ID        string `db:"id" type:"uuid" constraints:"primarykey"`
	Type      string `db:"type" type:"text" constraints:"notnull"`
	Tenant    string `db:"tenant" type:"text" constraints:"notnull"`
	Producer  string `db:"producer" type:"text" constraints:"notnull"`
	TraceID   string `db:"trace_id" type:"text"`
	CreatedTS int64  `db:"created_ts" type:"bigint" constraints:"notnull"`
	Payload   string `db:"payload" type:"jsonb" constraints:"notnull"`
}

// traceRow is the flat persistence shape for an execution trace.
type traceRow struct {
	TraceID   string    `db:"trace_id" type:"text" constraints:"primarykey"`
	NodeName  string    `db:"node_name" type:"text" constraints:"notnull"`
	Timestamp time.Time `db:"timestamp" type:"timestamp" constraints:"notnull"`
	Payload   string    `db:"payload" type:"jsonb" constraints:"notnull"`
}

// SoyArchive implements Archive using soy over Postgres.
type SoyArchive struct {
	nodes  *soy.Soy[nodeRow]
	traces *soy.Soy[traceRow]
	db     *sqlx.DB
}

// NewSoyArchive creates a soy-backed Archive.
func NewSoyArchive(db *sqlx.DB) (*SoyArchive, error) {
	renderer := postgres.New()

	nodes, err := soy.New[nodeRow](db, "matriz_nodes", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize nodes table: %w", err)
	}

	traces, err := soy.New[traceRow](db, "matriz_traces", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize traces table: %w", err)
	}

	return &SoyArchive{nodes: nodes, traces: traces, db: db}, nil
}

// SaveNode persists one audit node.
func (a *SoyArchive) SaveNode(ctx context.Context, node *Node) error {
	if node == nil {
		return fmt.Errorf("nil node")
	}
	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to encode node: %w", err)
	}
	_, err = a.nodes.Insert().Exec(ctx, &nodeRow{
		ID:        node.ID,
		Type:      string(node.Type),
		Tenant:    node.Provenance.Tenant,
		Producer:  node.Provenance.Producer,
		TraceID:   node.Provenance.TraceID,
		CreatedTS: node.Timestamps.CreatedTS,
		Payload:   string(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to insert node: %w", err)
	}
	return nil
}

// SaveTrace persists one execution trace keyed by its first node's trace ID.
func (a *SoyArchive) SaveTrace(ctx context.Context, trace *ExecutionTrace) error {
	if trace == nil {
		return fmt.Errorf("nil trace")
	}
	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	_, err = a.traces.Insert().Exec(ctx, &traceRow{
		TraceID:   trace.Node.Provenance.TraceID,
		NodeName:  trace.NodeName,
		Timestamp: trace.Timestamp,
		Payload:   string(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	return nil
}

// NodesByTrace loads the nodes recorded under a trace ID, oldest first.
func (a *SoyArchive) NodesByTrace(ctx context.Context, traceID string) ([]*Node, error) {
	rows, err := a.nodes.Query().
		Where("trace_id", "=", "trace_id").
		OrderBy("created_ts", "asc").
		Exec(ctx, map[string]any{"trace_id": traceID})
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes by trace: %w", err)
	}
	return decodeNodeRows(rows)
}

// NodesByTenant loads a tenant's most recent nodes, newest first.
func (a *SoyArchive) NodesByTenant(ctx context.Context, tenant string, limit int) ([]*Node, error) {
	rows, err := a.nodes.Query().
		Where("tenant", "=", "tenant").
		OrderBy("created_ts", "desc").
		Limit(limit).
		Exec(ctx, map[string]any{"tenant": tenant})
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes by tenant: %w", err)
	}
	return decodeNodeRows(rows)
}

// DeleteBefore removes nodes created before the cutoff.
func (a *SoyArchive) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := a.nodes.Remove().
		Where("created_ts", "<", "cutoff").
		Exec(ctx, map[string]any{"cutoff": cutoff.UnixMilli()})
	if err != nil {
		return 0, fmt.Errorf("failed to delete nodes: %w", err)
	}
	return removed, nil
}

// Close closes the underlying database connection.
func (a *SoyArchive) Close() error {
	return a.db.Close()
}

// ArchiveSink drains audit nodes into an Archive through a pipz pipeline:
// each save retries with exponential backoff so a briefly unavailable store
// does not drop audit records.
type ArchiveSink struct {
	pipeline pipz.Chainable[*Node]
}

// NewArchiveSink builds a sink over the given archive. attempts and
// baseDelay control the backoff around each save.
func NewArchiveSink(archive Archive, attempts int, baseDelay time.Duration) *ArchiveSink {
	save := Do("archive-save", func(ctx context.Context, n *Node) (*Node, error) {
		return n, archive.SaveNode(ctx, n)
	})
	return &ArchiveSink{
		pipeline: Backoff("archive-backoff", save, attempts, baseDelay),
	}
}

// Drain persists nodes in order, stopping at the first node whose save still
// fails after backoff.
func (s *ArchiveSink) Drain(ctx context.Context, nodes []*Node) error {
	for _, node := range nodes {
		if _, err := s.pipeline.Process(ctx, node); err != nil {
			return fmt.Errorf("failed to archive node %s: %w", node.ID, err)
		}
	}
	return nil
}

func decodeNodeRows(rows []*nodeRow) ([]*Node, error) {
	nodes := make([]*Node, 0, len(rows))
	for _, row := range rows {
		var node Node
		if err := json.Unmarshal([]byte(row.Payload), &node); err != nil {
			return nil, fmt.Errorf("failed to decode node %s: %w", row.ID, err)
		}
		nodes = append(nodes, &node)
	}
	return nodes, nil
}
