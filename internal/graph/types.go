// Package graph lays out the beads dependency graph.
//
// ComputeLayout assigns every node an absolute position in graph-space
// (unscaled, origin top-left) and routes every edge as a polyline. The
// result is immutable: callers recompute it whenever the node or edge set
// changes rather than mutating it in place.
package graph

// Default node box size in graph-space pixels.
const (
	DefaultNodeWidth  = 220.0
	DefaultNodeHeight = 72.0
)

// Point is a position in graph-space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is a fixed-size box representing one issue.
type Node struct {
	ID     string  `json:"id"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Edge is a directed "blocks" relation: Source blocks Target.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// RoutedEdge is an edge with its polyline route.
type RoutedEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Points []Point `json:"points"`
}

// Layout is the output of ComputeLayout.
type Layout struct {
	// Nodes maps node id to the top-left corner of its box.
	Nodes map[string]Point `json:"nodes"`
	// Edges holds one route per input edge whose endpoints both exist,
	// in input order.
	Edges  []RoutedEdge `json:"edges"`
	Width  float64      `json:"width"`
	Height float64      `json:"height"`

	sizes map[string]Node
	order []string
}

// NodePosition returns the top-left corner of the node's box.
// The second result is false for ids that are not part of the layout.
func (l *Layout) NodePosition(id string) (Point, bool) {
	if l == nil {
		return Point{}, false
	}
	p, ok := l.Nodes[id]
	return p, ok
}

// NodeSize returns the size the node was laid out with.
func (l *Layout) NodeSize(id string) (width, height float64, ok bool) {
	if l == nil {
		return 0, 0, false
	}
	n, ok := l.sizes[id]
	if !ok {
		return 0, 0, false
	}
	return n.Width, n.Height, true
}

// Empty reports whether the layout has no nodes.
func (l *Layout) Empty() bool {
	return l == nil || len(l.Nodes) == 0
}

// NodeAt returns the id of the node whose box contains the graph-space
// point p. When boxes overlap the node listed last in the input wins,
// matching paint order.
func (l *Layout) NodeAt(p Point) (string, bool) {
	if l == nil {
		return "", false
	}
	for i := len(l.order) - 1; i >= 0; i-- {
		id := l.order[i]
		pos := l.Nodes[id]
		n := l.sizes[id]
		if p.X >= pos.X && p.X <= pos.X+n.Width && p.Y >= pos.Y && p.Y <= pos.Y+n.Height {
			return id, true
		}
	}
	return "", false
}

// Order returns node ids in input order.
func (l *Layout) Order() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
