package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/store"
)

// beadColumns is the column list used for SELECT statements on the beads table.
const beadColumns = `id, type, title, status, priority, assignee, created_at, updated_at`

// executor is the read side of *sql.DB and *sql.Tx.
type executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryGraphBeads returns the limit most recently updated beads.
func queryGraphBeads(ctx context.Context, db executor, limit int) ([]*model.Bead, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+beadColumns+" FROM beads ORDER BY updated_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("list beads: %w", err)
	}
	defer rows.Close()

	var beads []*model.Bead
	for rows.Next() {
		b, err := scanBead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan beads: %w", err)
		}
		beads = append(beads, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan beads: %w", err)
	}
	return beads, nil
}

func queryGetGraph(ctx context.Context, db executor, limit int) (*model.GraphResponse, error) {
	if limit <= 0 {
		limit = store.DefaultGraphLimit
	}

	beads, err := queryGraphBeads(ctx, db, limit)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	// Build a set of bead IDs for edge filtering.
	ids := make([]string, len(beads))
	idSet := make(map[string]struct{}, len(beads))
	for i, b := range beads {
		ids[i] = b.ID
		idSet[b.ID] = struct{}{}
	}

	var edges []*model.GraphEdge
	if len(beads) > 0 {
		// Fetch labels for the selected beads in one query.
		labelRows, err := db.QueryContext(ctx,
			`SELECT bead_id, label FROM labels WHERE bead_id = ANY($1) ORDER BY bead_id, label`, pq.Array(ids))
		if err != nil {
			return nil, fmt.Errorf("graph: fetch labels: %w", err)
		}
		defer labelRows.Close()

		labelMap := make(map[string][]string)
		for labelRows.Next() {
			var beadID, label string
			if err := labelRows.Scan(&beadID, &label); err != nil {
				return nil, fmt.Errorf("graph: scan label: %w", err)
			}
			labelMap[beadID] = append(labelMap[beadID], label)
		}
		if err := labelRows.Err(); err != nil {
			return nil, fmt.Errorf("graph: label rows: %w", err)
		}
		for _, b := range beads {
			if labels, ok := labelMap[b.ID]; ok {
				b.Labels = labels
			}
		}

		// Fetch all dependencies of the selected beads in one query (not per-bead N+1).
		depRows, err := db.QueryContext(ctx, `
			SELECT bead_id, depends_on_id, type
			FROM deps WHERE bead_id = ANY($1)`, pq.Array(ids))
		if err != nil {
			return nil, fmt.Errorf("graph: fetch deps: %w", err)
		}
		defer depRows.Close()

		depMap := make(map[string][]*model.Dependency)
		for depRows.Next() {
			d, err := scanDependency(depRows)
			if err != nil {
				return nil, fmt.Errorf("graph: scan dep: %w", err)
			}
			depMap[d.BeadID] = append(depMap[d.BeadID], d)

			// Only include edges where both endpoints are in the node set.
			if _, ok := idSet[d.DependsOnID]; !ok {
				continue
			}
			edges = append(edges, d.Edge())
		}
		if err := depRows.Err(); err != nil {
			return nil, fmt.Errorf("graph: dep rows: %w", err)
		}
		for _, b := range beads {
			if deps, ok := depMap[b.ID]; ok {
				b.Dependencies = deps
			}
		}
	}

	stats, err := queryGetStats(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	if beads == nil {
		beads = []*model.Bead{}
	}
	if edges == nil {
		edges = []*model.GraphEdge{}
	}

	return &model.GraphResponse{
		Nodes: beads,
		Edges: edges,
		Stats: stats,
	}, nil
}

func queryGetStats(ctx context.Context, db executor) (*model.GraphStats, error) {
	stats := &model.GraphStats{}
	err := db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'open' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'in_progress' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'deferred' THEN 1 ELSE 0 END), 0)
		FROM beads`).Scan(
		&stats.TotalOpen,
		&stats.TotalInProgress,
		&stats.TotalBlocked,
		&stats.TotalClosed,
		&stats.TotalDeferred,
	)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}
