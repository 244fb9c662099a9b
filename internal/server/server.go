// Package server exposes the graph viewer over HTTP, WebSocket, SSE and
// gRPC health checks.
package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/beadgraph/internal/events"
	"github.com/alfredjeanlab/beadgraph/internal/source"
	"github.com/alfredjeanlab/beadgraph/internal/viewer"
)

// ServiceName is the gRPC health service name reporting graph freshness.
const ServiceName = "kg.Viewer"

// Server wires a viewer, its sessions and the event fan-out to the
// transports.
type Server struct {
	viewer    *viewer.Viewer
	sessions  *viewer.Sessions
	publisher events.Publisher
	sseHub    *sseHub
	health    *health.Server
}

// New returns a server for v. Issue clicks and graph updates are sent to
// pub as well as to SSE clients; pub may be nil.
func New(v *viewer.Viewer, pub events.Publisher) *Server {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	s := &Server{
		viewer: v,
		sseHub: newSSEHub(sseRingBufferSize),
		health: health.NewServer(),
	}
	s.publisher = events.MultiPublisher{pub, hubPublisher{s.sseHub}}
	s.sessions = viewer.NewSessions(v, s.publisher)

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	if v.Snapshot().Version > 0 {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	}
	v.OnUpdate(func(snap *viewer.Snapshot) {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		s.broadcastEvent(events.TopicGraphUpdated, snap.Event())
	})
	return s
}

// Sessions returns the session registry.
func (s *Server) Sessions() *viewer.Sessions { return s.sessions }

// Viewer returns the viewer being served.
func (s *Server) Viewer() *viewer.Viewer { return s.viewer }

// Refresh reloads the graph and sets the health service from the outcome.
// A refresh that changes nothing still marks the service as serving again.
func (s *Server) Refresh(ctx context.Context) (*viewer.Snapshot, error) {
	snap, err := s.viewer.Refresh(ctx)
	if err != nil {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		return nil, err
	}
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return snap, nil
}

// Watch refreshes the graph whenever w reports a change, keeping the
// health status in step with the outcome.
func (s *Server) Watch(ctx context.Context, w source.Watcher) error {
	return w.Watch(ctx, func(ctx context.Context) error {
		_, err := s.Refresh(ctx)
		return err
	})
}

// Close closes every session and marks the health service as shutting
// down.
func (s *Server) Close() {
	s.health.Shutdown()
	s.sessions.Stop()
}

// broadcastEvent fans an event out to SSE clients.
func (s *Server) broadcastEvent(topic string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, payload)
}

// hubPublisher delivers published events to SSE clients.
type hubPublisher struct {
	hub *sseHub
}

func (p hubPublisher) Publish(_ context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.hub.broadcast(topic, payload)
	return nil
}

func (hubPublisher) Close() error { return nil }
