// Package client provides a transport-agnostic interface for the parts of
// the beads service the graph viewer reads, and an HTTP/JSON implementation
// that talks to the beads REST API.
package client

import (
	"context"

	"github.com/alfredjeanlab/beadgraph/internal/model"
)

// BeadsClient is the interface the viewer uses to read from a beads
// server. It is implemented by HTTPClient.
type BeadsClient interface {
	// GetGraph returns up to limit beads with their dependency edges.
	// A limit of zero lets the server pick its default.
	GetGraph(ctx context.Context, limit int) (*model.GraphResponse, error)

	// StreamEvents follows the server's event stream, calling fn for each
	// event until ctx is cancelled, the server closes the stream, or fn
	// returns an error.
	StreamEvents(ctx context.Context, req *StreamRequest, fn func(*StreamEvent) error) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// StreamRequest selects which events to follow.
type StreamRequest struct {
	// Topics are NATS-style patterns ("beads.bead.*"); empty means all.
	Topics []string
	// LastEventID resumes after the given event when the server still
	// buffers it.
	LastEventID string
}

// StreamEvent is one server-sent event.
type StreamEvent struct {
	ID    string
	Topic string
	Data  []byte
}
