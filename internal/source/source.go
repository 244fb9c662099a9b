// Package source loads the issue graph the viewer draws and watches for
// changes to it.
//
// A Source returns the current issues and their dependency edges. The
// beads server's HTTP API, its Postgres database and a JSON or YAML file
// are supported. A Watcher calls back whenever the graph may have changed.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/beadgraph/internal/client"
	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/store"
)

// Source loads a graph snapshot.
type Source interface {
	Load(ctx context.Context) (*model.GraphResponse, error)
	Name() string
	Close() error
}

// HTTPSource reads the graph from a beads server.
type HTTPSource struct {
	client client.BeadsClient
	limit  int
}

// NewHTTP returns a source backed by c. A limit of zero lets the server
// choose.
func NewHTTP(c client.BeadsClient, limit int) *HTTPSource {
	return &HTTPSource{client: c, limit: limit}
}

func (s *HTTPSource) Load(ctx context.Context) (*model.GraphResponse, error) {
	g, err := s.client.GetGraph(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("loading graph from beads server: %w", err)
	}
	return normalize(g), nil
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) Close() error { return s.client.Close() }

// Client exposes the underlying beads client for watchers that follow its
// event stream.
func (s *HTTPSource) Client() client.BeadsClient { return s.client }

// StoreSource reads the graph straight from the beads database.
type StoreSource struct {
	store store.Store
	limit int
}

// NewStore returns a source backed by st.
func NewStore(st store.Store, limit int) *StoreSource {
	if limit <= 0 {
		limit = store.DefaultGraphLimit
	}
	return &StoreSource{store: st, limit: limit}
}

func (s *StoreSource) Load(ctx context.Context) (*model.GraphResponse, error) {
	g, err := s.store.GetGraph(ctx, s.limit)
	if err != nil {
		return nil, fmt.Errorf("loading graph from database: %w", err)
	}
	return normalize(g), nil
}

func (s *StoreSource) Name() string { return "postgres" }

func (s *StoreSource) Close() error { return s.store.Close() }

// FileSource reads a graph from a JSON or YAML file in the shape of the
// beads server's graph response. The file is re-read on every load.
type FileSource struct {
	path string
}

// NewFile returns a source reading path.
func NewFile(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Load(ctx context.Context) (*model.GraphResponse, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading graph file: %w", err)
	}
	g, err := Decode(data, filepath.Ext(s.path))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}
	return g, nil
}

func (s *FileSource) Name() string { return "file" }

func (s *FileSource) Close() error { return nil }

// Path returns the file being read.
func (s *FileSource) Path() string { return s.path }

// Decode parses a graph response. ext selects YAML for ".yaml" and ".yml";
// anything else is parsed as JSON. YAML documents use the same field names
// as the JSON API.
func Decode(data []byte, ext string) (*model.GraphResponse, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		var err error
		if data, err = json.Marshal(doc); err != nil {
			return nil, err
		}
	}
	var g model.GraphResponse
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return normalize(&g), nil
}

// StaticSource always returns the same graph.
type StaticSource struct {
	graph *model.GraphResponse
}

// NewStatic returns a source serving g.
func NewStatic(g *model.GraphResponse) *StaticSource {
	return &StaticSource{graph: normalize(g)}
}

func (s *StaticSource) Load(context.Context) (*model.GraphResponse, error) {
	return s.graph, nil
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Close() error { return nil }

// normalize drops nil entries and fills in stats.
func normalize(g *model.GraphResponse) *model.GraphResponse {
	if g == nil {
		return &model.GraphResponse{Nodes: []*model.Bead{}, Edges: []*model.GraphEdge{}, Stats: &model.GraphStats{}}
	}
	nodes := make([]*model.Bead, 0, len(g.Nodes))
	for _, b := range g.Nodes {
		if b != nil && b.ID != "" {
			nodes = append(nodes, b)
		}
	}
	edges := make([]*model.GraphEdge, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e != nil {
			edges = append(edges, e)
		}
	}
	stats := g.Stats
	if stats == nil {
		stats = model.ComputeStats(nodes)
	}
	return &model.GraphResponse{Nodes: nodes, Edges: edges, Stats: stats}
}
