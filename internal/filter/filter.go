// Package filter selects which issues appear in the graph using
// expr-lang expressions such as
//
//	status != "closed" && priority <= 2
//	"frontend" in labels
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/alfredjeanlab/beadgraph/internal/model"
)

// Env is the environment an expression is evaluated against, one issue at
// a time.
type Env struct {
	ID       string   `expr:"id"`
	Type     string   `expr:"type"`
	Title    string   `expr:"title"`
	Status   string   `expr:"status"`
	Priority int      `expr:"priority"`
	Assignee string   `expr:"assignee"`
	Labels   []string `expr:"labels"`
}

func envFor(b *model.Bead) Env {
	return Env{
		ID:       b.ID,
		Type:     string(b.Type),
		Title:    b.Title,
		Status:   string(b.Status),
		Priority: b.Priority,
		Assignee: b.Assignee,
		Labels:   b.Labels,
	}
}

// Filter is a compiled issue filter. A nil *Filter matches everything.
// Filters are safe for concurrent use.
type Filter struct {
	src string
	prg *vm.Program
}

// Compile parses src. An empty expression yields a nil filter.
func Compile(src string) (*Filter, error) {
	if src == "" {
		return nil, nil
	}
	prg, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", src, err)
	}
	return &Filter{src: src, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

// Match reports whether b passes the filter.
func (f *Filter) Match(b *model.Bead) (bool, error) {
	if f == nil {
		return true, nil
	}
	if b == nil {
		return false, nil
	}
	out, err := expr.Run(f.prg, envFor(b))
	if err != nil {
		return false, fmt.Errorf("evaluating filter on %s: %w", b.ID, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns a copy of g holding only matching nodes, the edges between
// them, and recomputed stats.
func (f *Filter) Apply(g *model.GraphResponse) (*model.GraphResponse, error) {
	if g == nil {
		return &model.GraphResponse{Nodes: []*model.Bead{}, Edges: []*model.GraphEdge{}}, nil
	}
	if f == nil {
		return g, nil
	}

	out := &model.GraphResponse{
		Nodes: make([]*model.Bead, 0, len(g.Nodes)),
		Edges: make([]*model.GraphEdge, 0, len(g.Edges)),
	}
	kept := make(map[string]bool, len(g.Nodes))
	for _, b := range g.Nodes {
		ok, err := f.Match(b)
		if err != nil {
			return nil, err
		}
		if ok {
			out.Nodes = append(out.Nodes, b)
			kept[b.ID] = true
		}
	}
	for _, e := range g.Edges {
		if e != nil && kept[e.Source] && kept[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}
	out.Stats = model.ComputeStats(out.Nodes)
	return out, nil
}
