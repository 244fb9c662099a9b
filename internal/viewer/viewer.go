// Package viewer keeps the current laid out dependency graph and the
// per-client viewport sessions that look at it.
//
// The Viewer loads issues from a source, applies the configured filter,
// lays them out and publishes the result as an immutable Snapshot. A failed
// refresh leaves the previous snapshot in place.
package viewer

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/alfredjeanlab/beadgraph/internal/events"
	"github.com/alfredjeanlab/beadgraph/internal/filter"
	"github.com/alfredjeanlab/beadgraph/internal/graph"
	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/render"
	"github.com/alfredjeanlab/beadgraph/internal/source"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

// Snapshot is one immutable view of the graph. Callers must not modify it.
type Snapshot struct {
	Graph     *model.GraphResponse `json:"graph"`
	Relations []model.Relation     `json:"relations"`
	Layout    *graph.Layout        `json:"layout"`
	Key       string               `json:"key"`
	Version   uint64               `json:"version"`
	LoadedAt  time.Time            `json:"loaded_at"`
}

// Issues returns the snapshot's issues.
func (s *Snapshot) Issues() []*model.Bead {
	if s == nil || s.Graph == nil {
		return nil
	}
	return s.Graph.Nodes
}

// Scene pairs the snapshot with a viewport for rendering.
func (s *Snapshot) Scene(view viewport.State, width, height float64) render.Scene {
	sc := render.Scene{View: view, Width: width, Height: height}
	if s != nil {
		sc.Issues = s.Issues()
		sc.Layout = s.Layout
	}
	return sc
}

// FittedScene is Scene with the viewport fitted to the layout.
func (s *Snapshot) FittedScene(width, height float64) render.Scene {
	if width <= 0 {
		width = render.DefaultWidth
	}
	if height <= 0 {
		height = render.DefaultHeight
	}
	c := viewport.New()
	c.Resize(width, height)
	if s != nil {
		c.SetLayout(s.Layout)
	}
	return s.Scene(c.State(), width, height)
}

// Event describes the snapshot as a graph.updated event.
func (s *Snapshot) Event() events.GraphUpdated {
	ev := events.GraphUpdated{Key: s.Key, At: s.LoadedAt}
	if s.Layout != nil {
		ev.Nodes = len(s.Layout.Nodes)
		ev.Edges = len(s.Layout.Edges)
		ev.Width = s.Layout.Width
		ev.Height = s.Layout.Height
	}
	return ev
}

// LayoutFor lays out issues and their blocking relations, reusing a cached
// layout when the same input was seen before. Every issue becomes a
// default-sized node.
func LayoutFor(cache *graph.Cache, issues []*model.Bead, relations []model.Relation) (*graph.Layout, string) {
	nodes := make([]graph.Node, 0, len(issues))
	for _, b := range issues {
		if b == nil {
			continue
		}
		nodes = append(nodes, graph.Node{
			ID:     b.ID,
			Width:  graph.DefaultNodeWidth,
			Height: graph.DefaultNodeHeight,
		})
	}
	edges := make([]graph.Edge, len(relations))
	for i, r := range relations {
		edges[i] = graph.Edge{Source: r.Source, Target: r.Target}
	}
	if cache == nil {
		return graph.ComputeLayout(nodes, edges), graph.Key(nodes, edges)
	}
	return cache.Layout(nodes, edges)
}

// contentKey hashes what a rendered graph shows: the layout key plus each
// issue's id, title, status, priority and type.
func contentKey(layoutKey string, issues []*model.Bead) string {
	h := blake3.New()
	var buf [8]byte
	writeString := func(s string) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
		h.Write(buf[:])
		h.Write([]byte(s))
	}

	writeString(layoutKey)
	for _, b := range issues {
		if b == nil {
			continue
		}
		writeString(b.ID)
		writeString(b.Title)
		writeString(string(b.Status))
		writeString(string(b.Type))
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(b.Priority)))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Option configures a Viewer.
type Option func(*Viewer)

// WithFilter restricts the graph to issues matching f.
func WithFilter(f *filter.Filter) Option {
	return func(v *Viewer) { v.filter = f }
}

// WithPublisher sets where graph.updated events go.
func WithPublisher(p events.Publisher) Option {
	return func(v *Viewer) { v.pub = p }
}

// WithCache sets the layout cache.
func WithCache(c *graph.Cache) Option {
	return func(v *Viewer) { v.cache = c }
}

// Viewer owns the current graph snapshot.
type Viewer struct {
	src    source.Source
	filter *filter.Filter
	cache  *graph.Cache
	pub    events.Publisher

	refreshMu sync.Mutex // serializes refreshes

	mu        sync.RWMutex
	snap      *Snapshot
	content   string // contentKey of snap; empty before the first load
	lastErr   error
	listeners []func(*Snapshot)
}

// New returns a viewer reading from src. It holds an empty snapshot until
// the first successful Refresh.
func New(src source.Source, opts ...Option) *Viewer {
	v := &Viewer{
		src: src,
		pub: events.NoopPublisher{},
	}
	for _, o := range opts {
		o(v)
	}
	if v.cache == nil {
		v.cache = graph.NewCache(graph.DefaultCacheSize)
	}
	l, key := LayoutFor(v.cache, nil, nil)
	v.snap = &Snapshot{
		Graph:     &model.GraphResponse{Nodes: []*model.Bead{}, Edges: []*model.GraphEdge{}, Stats: &model.GraphStats{}},
		Relations: []model.Relation{},
		Layout:    l,
		Key:       key,
	}
	return v
}

// Snapshot returns the current snapshot. It is never nil.
func (v *Viewer) Snapshot() *Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snap
}

// LastError returns the error of the most recent refresh, or nil if it
// succeeded.
func (v *Viewer) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

// Source returns the viewer's source.
func (v *Viewer) Source() source.Source { return v.src }

// Filter returns the active filter, or nil.
func (v *Viewer) Filter() *filter.Filter { return v.filter }

// OnUpdate registers fn to run after every refresh that changes the graph.
// fn runs on the refreshing goroutine.
func (v *Viewer) OnUpdate(fn func(*Snapshot)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.listeners = append(v.listeners, fn)
}

// Refresh reloads the graph and publishes a new snapshot. If nothing drawn
// on the graph changed, the current snapshot is kept and returned with its
// version unchanged, and no update is published. On failure the previous
// snapshot stays current and the error is returned.
func (v *Viewer) Refresh(ctx context.Context) (*Snapshot, error) {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	snap, err := v.load(ctx)

	v.mu.Lock()
	v.lastErr = err
	if err != nil {
		v.mu.Unlock()
		return nil, err
	}
	content := contentKey(snap.Key, snap.Issues())
	if content == v.content {
		current := v.snap
		v.mu.Unlock()
		slog.Debug("viewer: graph unchanged", "version", current.Version, "key", current.Key)
		return current, nil
	}
	v.content = content
	snap.Version = v.snap.Version + 1
	v.snap = snap
	listeners := append([]func(*Snapshot){}, v.listeners...)
	v.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}

	if err := v.pub.Publish(ctx, events.TopicGraphUpdated, snap.Event()); err != nil {
		slog.Warn("failed to publish graph update", "err", err)
	}
	return snap, nil
}

func (v *Viewer) load(ctx context.Context) (*Snapshot, error) {
	g, err := v.src.Load(ctx)
	if err != nil {
		return nil, err
	}
	g, err = v.filter.Apply(g)
	if err != nil {
		return nil, fmt.Errorf("applying filter: %w", err)
	}
	rels := g.BlockingRelations()
	l, key := LayoutFor(v.cache, g.Nodes, rels)
	return &Snapshot{
		Graph:     g,
		Relations: rels,
		Layout:    l,
		Key:       key,
		LoadedAt:  time.Now().UTC(),
	}, nil
}

// Watch refreshes whenever w reports a change, until ctx is cancelled.
func (v *Viewer) Watch(ctx context.Context, w source.Watcher) error {
	return w.Watch(ctx, func(ctx context.Context) error {
		_, err := v.Refresh(ctx)
		return err
	})
}
