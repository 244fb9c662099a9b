// Package store defines read access to the beads database.
package store

import (
	"context"

	"github.com/alfredjeanlab/beadgraph/internal/model"
)

// DefaultGraphLimit bounds the number of beads loaded into one graph.
const DefaultGraphLimit = 500

// Store is the read-only view of a beads database the graph viewer needs.
type Store interface {
	// GetGraph returns up to limit beads, most recently updated first,
	// with the dependencies between them and aggregate stats.
	GetGraph(ctx context.Context, limit int) (*model.GraphResponse, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
