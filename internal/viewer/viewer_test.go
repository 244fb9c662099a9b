package viewer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/beadgraph/internal/events"
	"github.com/alfredjeanlab/beadgraph/internal/filter"
	"github.com/alfredjeanlab/beadgraph/internal/graph"
	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/source"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

// chainGraph is A blocks B blocks C, in the beads server's edge direction.
func chainGraph() *model.GraphResponse {
	return &model.GraphResponse{
		Nodes: []*model.Bead{
			{ID: "A", Title: "Design", Status: model.StatusClosed, Priority: 1},
			{ID: "B", Title: "Build", Status: model.StatusInProgress, Priority: 2},
			{ID: "C", Title: "Ship", Status: model.StatusOpen, Priority: 3},
		},
		Edges: []*model.GraphEdge{
			{Source: "B", Target: "A", Type: "blocks"},
			{Source: "C", Target: "B", Type: "blocks"},
			{Source: "C", Target: "A", Type: "related"},
		},
	}
}

type flakySource struct {
	mu    sync.Mutex
	graph *model.GraphResponse
	err   error
	loads int
}

func (f *flakySource) Load(context.Context) (*model.GraphResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	return f.graph, f.err
}

func (f *flakySource) set(g *model.GraphResponse, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graph, f.err = g, err
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Close() error { return nil }

type recorder struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (r *recorder) Publish(_ context.Context, topic string, ev any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) clicks() []events.IssueClicked {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.IssueClicked
	for _, ev := range r.events {
		if c, ok := ev.(events.IssueClicked); ok {
			out = append(out, c)
		}
	}
	return out
}

func TestLayoutFor_Chain(t *testing.T) {
	g := chainGraph()
	l, key := LayoutFor(nil, g.Nodes, g.BlockingRelations())

	want := map[string]graph.Point{"A": {X: 20, Y: 20}, "B": {X: 20, Y: 172}, "C": {X: 20, Y: 324}}
	for id, p := range want {
		if got, ok := l.NodePosition(id); !ok || got != p {
			t.Errorf("%s at %v, want %v", id, got, p)
		}
	}
	if len(l.Edges) != 2 {
		t.Errorf("expected 2 blocking edges, got %d", len(l.Edges))
	}
	if key == "" {
		t.Error("empty key")
	}
}

func TestLayoutFor_UsesCache(t *testing.T) {
	cache := graph.NewCache(4)
	g := chainGraph()
	l1, k1 := LayoutFor(cache, g.Nodes, g.BlockingRelations())
	l2, k2 := LayoutFor(cache, g.Nodes, g.BlockingRelations())
	if l1 != l2 || k1 != k2 {
		t.Error("identical input should return the cached layout")
	}
	if hits, misses := cache.Stats(); hits != 1 || misses != 1 {
		t.Errorf("hits=%d misses=%d", hits, misses)
	}
}

func TestViewer_InitialSnapshotIsEmpty(t *testing.T) {
	v := New(source.NewStatic(nil))
	snap := v.Snapshot()
	if snap == nil || !snap.Layout.Empty() || snap.Version != 0 {
		t.Fatalf("unexpected initial snapshot %+v", snap)
	}
}

func TestViewer_Refresh(t *testing.T) {
	rec := &recorder{}
	v := New(source.NewStatic(chainGraph()), WithPublisher(rec))

	var updates []*Snapshot
	v.OnUpdate(func(s *Snapshot) { updates = append(updates, s) })

	snap, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Version != 1 || v.Snapshot() != snap {
		t.Errorf("snapshot not published")
	}
	if len(snap.Relations) != 2 || snap.Relations[0] != (model.Relation{Source: "A", Target: "B"}) {
		t.Errorf("unexpected relations %+v", snap.Relations)
	}
	if len(updates) != 1 {
		t.Errorf("OnUpdate called %d times", len(updates))
	}
	if len(rec.topics) != 1 || rec.topics[0] != events.TopicGraphUpdated {
		t.Fatalf("unexpected events %v", rec.topics)
	}
	ev := rec.events[0].(events.GraphUpdated)
	if ev.Nodes != 3 || ev.Edges != 2 || ev.Key != snap.Key {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestViewer_RefreshFailureKeepsLastSnapshot(t *testing.T) {
	src := &flakySource{graph: chainGraph()}
	v := New(src)

	good, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	boom := errors.New("beads server unavailable")
	src.set(nil, boom)
	if _, err := v.Refresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
	if v.Snapshot() != good {
		t.Error("failed refresh replaced the snapshot")
	}
	if !errors.Is(v.LastError(), boom) {
		t.Errorf("LastError = %v", v.LastError())
	}

	src.set(chainGraph(), nil)
	next, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next != good || next.Version != 1 || v.LastError() != nil {
		t.Errorf("version=%d lastErr=%v", next.Version, v.LastError())
	}
}

func TestViewer_RefreshUnchangedKeepsVersion(t *testing.T) {
	rec := &recorder{}
	src := &flakySource{graph: chainGraph()}
	v := New(src, WithPublisher(rec))
	var updates int
	v.OnUpdate(func(*Snapshot) { updates++ })

	first, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	again, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again != first || again.Version != 1 {
		t.Errorf("unchanged refresh published version %d", again.Version)
	}
	if updates != 1 || len(rec.topics) != 1 {
		t.Errorf("updates=%d publishes=%d, want 1 each", updates, len(rec.topics))
	}

	// A title change keeps the layout key but is drawn, so it is an update.
	g := chainGraph()
	g.Nodes[1].Title = "Build it"
	src.set(g, nil)
	changed, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if changed.Version != 2 || changed.Key != first.Key {
		t.Errorf("version=%d key changed=%v", changed.Version, changed.Key != first.Key)
	}
	if updates != 2 || len(rec.topics) != 2 {
		t.Errorf("updates=%d publishes=%d, want 2 each", updates, len(rec.topics))
	}

	// Fields that are not drawn do not count.
	g = chainGraph()
	g.Nodes[1].Title = "Build it"
	g.Nodes[1].Assignee = "alice"
	src.set(g, nil)
	if snap, err := v.Refresh(context.Background()); err != nil || snap.Version != 2 {
		t.Errorf("assignee change bumped version: %v %v", snap, err)
	}
}

func TestViewer_Filter(t *testing.T) {
	f, err := filter.Compile(`status != "closed"`)
	if err != nil {
		t.Fatal(err)
	}
	v := New(source.NewStatic(chainGraph()), WithFilter(f))
	snap, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(snap.Issues()) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(snap.Issues()))
	}
	if _, ok := snap.Layout.NodePosition("A"); ok {
		t.Error("closed issue A should be filtered out")
	}
	if len(snap.Relations) != 1 {
		t.Errorf("expected only B->C to remain, got %+v", snap.Relations)
	}
}

func TestViewer_Watch(t *testing.T) {
	src := &flakySource{graph: chainGraph()}
	v := New(src)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Watch(ctx, source.NewPollWatcher(5*time.Millisecond)) }()

	waitVersion := func(want uint64) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for v.Snapshot().Version < want {
			if time.Now().After(deadline) {
				t.Fatalf("watcher did not reach version %d", want)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	waitVersion(1)
	g := chainGraph()
	g.Nodes[2].Status = model.StatusClosed
	src.set(g, nil)
	waitVersion(2)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
}

func TestSnapshot_FittedScene(t *testing.T) {
	v := New(source.NewStatic(chainGraph()))
	snap, err := v.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	sc := snap.FittedScene(800, 600)
	if sc.View != (viewport.State{Zoom: 1, PanX: 270, PanY: 92}) {
		t.Errorf("unexpected fitted view %+v", sc.View)
	}
	if len(sc.Issues) != 3 || sc.Layout != snap.Layout {
		t.Error("scene does not carry the snapshot")
	}

	var empty *Snapshot
	if sc := empty.FittedScene(0, 0); sc.Width != 1200 || sc.Layout != nil {
		t.Errorf("unexpected scene for nil snapshot %+v", sc)
	}
}

func TestSession_RenderSVG(t *testing.T) {
	v := New(source.NewStatic(chainGraph()))
	if _, err := v.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	reg := NewSessions(v, nil)
	s, err := reg.Create(800, 600)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.RenderSVG(&buf, v.Snapshot()); err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}
	if !strings.Contains(buf.String(), `transform="translate(270 92)"`) {
		t.Errorf("session viewport not applied:\n%s", buf.String())
	}
}
