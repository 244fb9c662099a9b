// Package events carries graph change notifications in and out of the
// viewer. The beads server publishes bead and dependency events on NATS
// subjects under "beads."; the viewer consumes those and publishes its own
// events under "beads.graph.".
package events

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event topic constants
const (
	// TopicAll matches every beads event.
	TopicAll = "beads.>"

	// Beads server events that can change the rendered graph.
	TopicBeadCreated       = "beads.bead.created"
	TopicBeadUpdated       = "beads.bead.updated"
	TopicBeadClosed        = "beads.bead.closed"
	TopicBeadDeleted       = "beads.bead.deleted"
	TopicDependencyAdded   = "beads.dependency.added"
	TopicDependencyRemoved = "beads.dependency.removed"
	TopicLabelAdded        = "beads.label.added"
	TopicLabelRemoved      = "beads.label.removed"

	// Viewer events
	TopicGraphUpdated = "beads.graph.updated"
	TopicIssueClicked = "beads.graph.issue_clicked"
)

// GraphTopics are the topic patterns whose events can change the graph.
var GraphTopics = []string{"beads.bead.*", "beads.dependency.*", "beads.label.*"}

// AffectsGraph reports whether an event on topic may change the graph.
// The viewer's own beads.graph.* events never do.
func AffectsGraph(topic string) bool {
	for _, prefix := range []string{"beads.bead.", "beads.dependency.", "beads.label."} {
		if strings.HasPrefix(topic, prefix) {
			return true
		}
	}
	return false
}

// Event types

// GraphUpdated is published after a refresh produced a new layout.
type GraphUpdated struct {
	Key    string    `json:"key"`
	Nodes  int       `json:"nodes"`
	Edges  int       `json:"edges"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
	At     time.Time `json:"at"`
}

// IssueClicked is published when a node click reaches the viewer.
type IssueClicked struct {
	IssueID   string    `json:"issue_id"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
}

// Message is a raw event received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Publisher emits events onto the bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives raw messages from the bus. The cancel function
// returned by Subscribe unsubscribes and closes the channel.
type Subscriber interface {
	Subscribe(topic string) (<-chan Message, func(), error)
	Close() error
}

// NoopPublisher drops every event. It stands in when no NATS URL is set.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (NoopPublisher) Close() error { return nil }

// MultiPublisher fans every event out to several publishers.
type MultiPublisher []Publisher

// Publish delivers to every publisher and joins their errors.
func (m MultiPublisher) Publish(ctx context.Context, topic string, event any) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (m MultiPublisher) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
