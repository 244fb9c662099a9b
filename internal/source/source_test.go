package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alfredjeanlab/beadgraph/internal/client"
	"github.com/alfredjeanlab/beadgraph/internal/model"
)

type fakeClient struct {
	graph   *model.GraphResponse
	err     error
	limit   int
	closed  bool
	streams []func(ctx context.Context, req *client.StreamRequest, fn func(*client.StreamEvent) error) error
	reqs    chan *client.StreamRequest
}

func (f *fakeClient) GetGraph(_ context.Context, limit int) (*model.GraphResponse, error) {
	f.limit = limit
	return f.graph, f.err
}

func (f *fakeClient) StreamEvents(ctx context.Context, req *client.StreamRequest, fn func(*client.StreamEvent) error) error {
	if f.reqs != nil {
		f.reqs <- req
	}
	if len(f.streams) == 0 {
		<-ctx.Done()
		return nil
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return s(ctx, req, fn)
}

func (f *fakeClient) Health(context.Context) (string, error) { return "ok", nil }

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type fakeStore struct {
	graph *model.GraphResponse
	limit int
}

func (f *fakeStore) GetGraph(_ context.Context, limit int) (*model.GraphResponse, error) {
	f.limit = limit
	return f.graph, nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) Close() error { return nil }

func TestHTTPSource(t *testing.T) {
	fc := &fakeClient{graph: &model.GraphResponse{
		Nodes: []*model.Bead{{ID: "kd-1", Status: model.StatusOpen}, nil, {ID: ""}},
		Edges: []*model.GraphEdge{nil, {Source: "kd-1", Target: "kd-2"}},
	}}
	src := NewHTTP(fc, 50)

	g, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fc.limit != 50 {
		t.Errorf("limit = %d, want 50", fc.limit)
	}
	if len(g.Nodes) != 1 || len(g.Edges) != 1 {
		t.Fatalf("nil entries not dropped: %d nodes, %d edges", len(g.Nodes), len(g.Edges))
	}
	if g.Stats == nil || g.Stats.TotalOpen != 1 {
		t.Errorf("stats not computed: %+v", g.Stats)
	}
	if src.Name() != "http" {
		t.Errorf("Name = %q", src.Name())
	}
	if err := src.Close(); err != nil || !fc.closed {
		t.Errorf("Close did not close the client")
	}
}

func TestHTTPSource_Error(t *testing.T) {
	boom := &client.APIError{StatusCode: 503, Message: "down"}
	src := NewHTTP(&fakeClient{err: boom}, 0)
	_, err := src.Load(context.Background())
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Fatalf("expected wrapped APIError, got %v", err)
	}
}

func TestStoreSource_DefaultLimit(t *testing.T) {
	fs := &fakeStore{graph: &model.GraphResponse{Nodes: []*model.Bead{{ID: "a"}}}}
	src := NewStore(fs, 0)
	g, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if fs.limit != 500 {
		t.Errorf("limit = %d, want 500", fs.limit)
	}
	if len(g.Nodes) != 1 {
		t.Errorf("got %d nodes", len(g.Nodes))
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(jsonPath, []byte(`{
		"nodes": [{"id": "A", "title": "first", "status": "open", "priority": 1}, {"id": "B", "status": "blocked"}],
		"edges": [{"source": "B", "target": "A", "type": "blocks"}]
	}`), 0o644); err != nil {
		t.Fatal(err)
	}

	yamlPath := filepath.Join(dir, "graph.yaml")
	if err := os.WriteFile(yamlPath, []byte(`
nodes:
  - id: A
    title: first
    status: open
    priority: 1
  - id: B
    status: blocked
edges:
  - source: B
    target: A
    type: blocks
`), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{jsonPath, yamlPath} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			g, err := NewFile(path).Load(context.Background())
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(g.Nodes) != 2 || g.Nodes[0].Title != "first" || g.Nodes[0].Priority != 1 {
				t.Fatalf("unexpected nodes: %+v", g.Nodes)
			}
			rels := g.BlockingRelations()
			if len(rels) != 1 || rels[0] != (model.Relation{Source: "A", Target: "B"}) {
				t.Errorf("unexpected relations: %+v", rels)
			}
			if g.Stats.TotalBlocked != 1 {
				t.Errorf("stats not computed: %+v", g.Stats)
			}
		})
	}
}

func TestFileSource_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := NewFile(filepath.Join(dir, "missing.json")).Load(context.Background()); err == nil {
		t.Error("expected error for a missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFile(bad).Load(context.Background()); err == nil {
		t.Error("expected error for malformed json")
	}
}

func TestStaticSource_NilGraph(t *testing.T) {
	g, err := NewStatic(nil).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if g.Nodes == nil || g.Edges == nil || len(g.Nodes) != 0 {
		t.Errorf("expected an empty non-nil graph, got %+v", g)
	}
}
