package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Layout spacing defaults, in graph-space pixels.
const (
	DefaultRankSep = 80.0
	DefaultNodeSep = 40.0
	DefaultMargin  = 20.0

	// pointsPerInch converts pixel sizes to graphviz inches.
	pointsPerInch = 72.0

	// snapTolerance pulls spline ends within this distance onto the
	// node border they touch.
	snapTolerance = 1.0

	// selfLoopReach is how far a fallback self-loop bulges out of its node.
	selfLoopReach = 24.0
)

type options struct {
	rankSep float64
	nodeSep float64
	margin  float64
}

// Option configures ComputeLayout.
type Option func(*options)

// WithRankSep sets the vertical gap between ranks.
func WithRankSep(v float64) Option { return func(o *options) { o.rankSep = v } }

// WithNodeSep sets the horizontal gap between nodes in a rank.
func WithNodeSep(v float64) Option { return func(o *options) { o.nodeSep = v } }

// WithMargin sets the empty border around the laid out graph.
func WithMargin(v float64) Option { return func(o *options) { o.margin = v } }

func buildOptions(opts []Option) options {
	o := options{
		rankSep: DefaultRankSep,
		nodeSep: DefaultNodeSep,
		margin:  DefaultMargin,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// engine is the shared graphviz instance. A Graphviz value is not safe for
// concurrent use, so layouts run one at a time.
var engine struct {
	mu sync.Mutex
	gv *graphviz.Graphviz
}

// placement is a finished layout before it is copied into a Layout.
type placement struct {
	nodes  map[string]Point
	routes [][]Point
	width  float64
	height float64
}

// ComputeLayout produces a layered top-down layout with graphviz dot:
// blockers sit above the issues they block.
//
// The function is total. Nodes with duplicate ids keep the first
// occurrence. Edges referencing unknown ids are dropped from the result.
// Duplicate edges and self-loops are kept and routed individually. If
// graphviz fails the nodes are placed on a grid instead.
func ComputeLayout(nodes []Node, edges []Edge, opts ...Option) *Layout {
	o := buildOptions(opts)

	l := &Layout{
		Nodes: make(map[string]Point, len(nodes)),
		Edges: []RoutedEdge{},
		sizes: make(map[string]Node, len(nodes)),
	}

	var ns []Node
	for _, n := range nodes {
		if _, dup := l.sizes[n.ID]; dup {
			continue
		}
		if n.Width <= 0 {
			n.Width = DefaultNodeWidth
		}
		if n.Height <= 0 {
			n.Height = DefaultNodeHeight
		}
		ns = append(ns, n)
		l.sizes[n.ID] = n
		l.order = append(l.order, n.ID)
	}
	if len(ns) == 0 {
		return l
	}

	var valid []Edge
	for _, e := range edges {
		_, ok1 := l.sizes[e.Source]
		_, ok2 := l.sizes[e.Target]
		if ok1 && ok2 {
			valid = append(valid, e)
		}
	}

	p, err := dotLayout(context.Background(), ns, valid, o)
	if err != nil {
		slog.Warn("graphviz layout failed; placing nodes on a grid", "nodes", len(ns), "edges", len(valid), "err", err)
		p = gridLayout(ns, valid, o)
	}

	l.Nodes = p.nodes
	l.Width = p.width
	l.Height = p.height
	for i, e := range valid {
		l.Edges = append(l.Edges, RoutedEdge{Source: e.Source, Target: e.Target, Points: p.routes[i]})
	}
	return l
}

// dotLayout runs graphviz dot over the graph and reads the positions back
// from its JSON output.
func dotLayout(ctx context.Context, ns []Node, edges []Edge, o options) (*placement, error) {
	engine.mu.Lock()
	defer engine.mu.Unlock()

	if engine.gv == nil {
		gv, err := graphviz.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("graph: create graphviz: %w", err)
		}
		gv.SetLayout(graphviz.DOT)
		engine.gv = gv
	}
	gv := engine.gv

	g, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("graph: create graph: %w", err)
	}
	defer g.Close()

	g.SetRankDir(cgraph.TBRank)
	g.SetRankSeparator(o.rankSep / pointsPerInch)
	g.SetNodeSeparator(o.nodeSep / pointsPerInch)

	gvNodes := make(map[string]*cgraph.Node, len(ns))
	for _, n := range ns {
		gn, err := g.CreateNodeByName(n.ID)
		if err != nil {
			return nil, fmt.Errorf("graph: create node %s: %w", n.ID, err)
		}
		gn.SetShape(cgraph.BoxShape)
		gn.SetLabel("")
		gn.SetWidth(n.Width / pointsPerInch)
		gn.SetHeight(n.Height / pointsPerInch)
		gvNodes[n.ID] = gn
	}
	// Named edges keep duplicates distinct.
	for i, e := range edges {
		if _, err := g.CreateEdgeByName("e"+strconv.Itoa(i), gvNodes[e.Source], gvNodes[e.Target]); err != nil {
			return nil, fmt.Errorf("graph: create edge %s->%s: %w", e.Source, e.Target, err)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.Format("json"), &buf); err != nil {
		return nil, fmt.Errorf("graph: render layout: %w", err)
	}
	var out dotOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("graph: decode layout: %w", err)
	}
	return out.placement(ns, edges, o)
}

// dotOutput is the part of graphviz's JSON output the layout needs.
// Coordinates are in points with the origin at the bottom left.
type dotOutput struct {
	BB      string `json:"bb"`
	Objects []struct {
		GVID int    `json:"_gvid"`
		Name string `json:"name"`
		Pos  string `json:"pos"`
	} `json:"objects"`
	Edges []struct {
		Tail int    `json:"tail"`
		Head int    `json:"head"`
		Pos  string `json:"pos"`
	} `json:"edges"`
}

func (d *dotOutput) placement(ns []Node, edges []Edge, o options) (*placement, error) {
	bb, err := parseFloats(d.BB, 4)
	if err != nil {
		return nil, fmt.Errorf("graph: bounding box %q: %w", d.BB, err)
	}
	llx, ury := bb[0], bb[3]
	toLayout := func(p Point) Point {
		return Point{X: round2(p.X - llx + o.margin), Y: round2(ury - p.Y + o.margin)}
	}

	names := make(map[int]string, len(d.Objects))
	centres := make(map[string]Point, len(d.Objects))
	for _, obj := range d.Objects {
		if obj.Pos == "" {
			continue
		}
		c, err := parsePoint(obj.Pos)
		if err != nil {
			return nil, fmt.Errorf("graph: position of %s: %w", obj.Name, err)
		}
		names[obj.GVID] = obj.Name
		centres[obj.Name] = toLayout(c)
	}

	p := &placement{
		nodes:  make(map[string]Point, len(ns)),
		routes: make([][]Point, len(edges)),
		width:  round2(bb[2] - bb[0] + 2*o.margin),
		height: round2(bb[3] - bb[1] + 2*o.margin),
	}
	sizes := make(map[string]Node, len(ns))
	for _, n := range ns {
		c, ok := centres[n.ID]
		if !ok {
			return nil, fmt.Errorf("graph: node %s was not placed", n.ID)
		}
		p.nodes[n.ID] = Point{X: round2(c.X - n.Width/2), Y: round2(c.Y - n.Height/2)}
		sizes[n.ID] = n
	}

	// Parallel edges are interchangeable, so splines are handed out per
	// (tail, head) pair in output order.
	splines := make(map[[2]string][]string)
	for _, e := range d.Edges {
		key := [2]string{names[e.Tail], names[e.Head]}
		splines[key] = append(splines[key], e.Pos)
	}
	for i, e := range edges {
		src, dst := sizes[e.Source], sizes[e.Target]
		key := [2]string{e.Source, e.Target}
		var pts []Point
		if queue := splines[key]; len(queue) > 0 {
			splines[key] = queue[1:]
			pts, _ = parseSpline(queue[0])
		}
		if len(pts) < 2 {
			p.routes[i] = straightRoute(src, dst, p.nodes[src.ID], p.nodes[dst.ID])
			continue
		}
		for j := range pts {
			pts[j] = toLayout(pts[j])
		}
		pts[0] = snapToBox(pts[0], p.nodes[src.ID], src)
		pts[len(pts)-1] = snapToBox(pts[len(pts)-1], p.nodes[dst.ID], dst)
		p.routes[i] = simplify(pts)
	}
	return p, nil
}

// parseSpline reads a graphviz edge pos attribute: an optional "s,x,y"
// start, an optional "e,x,y" arrow tip and the bezier control points.
// Only the first spline of a multi-spline edge is used.
func parseSpline(pos string) ([]Point, error) {
	if i := strings.IndexByte(pos, ';'); i >= 0 {
		pos = pos[:i]
	}
	var (
		start, end *Point
		ctrl       []Point
	)
	for _, tok := range strings.Fields(pos) {
		switch {
		case strings.HasPrefix(tok, "s,"):
			pt, err := parsePoint(tok[2:])
			if err != nil {
				return nil, err
			}
			start = &pt
		case strings.HasPrefix(tok, "e,"):
			pt, err := parsePoint(tok[2:])
			if err != nil {
				return nil, err
			}
			end = &pt
		default:
			pt, err := parsePoint(tok)
			if err != nil {
				return nil, err
			}
			ctrl = append(ctrl, pt)
		}
	}
	var pts []Point
	if start != nil {
		pts = append(pts, *start)
	}
	pts = append(pts, ctrl...)
	if end != nil {
		pts = append(pts, *end)
	}
	return pts, nil
}

func parsePoint(s string) (Point, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return Point{}, err
	}
	return Point{X: v[0], Y: v[1]}, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) < n {
		return nil, fmt.Errorf("expected %d coordinates, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i := range n {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// snapToBox moves a point lying within snapTolerance of the box's border
// or vertical centre line exactly onto it.
func snapToBox(p, pos Point, n Node) Point {
	snap := func(v float64, targets ...float64) float64 {
		for _, t := range targets {
			if math.Abs(v-t) < snapTolerance {
				return t
			}
		}
		return v
	}
	p.X = snap(p.X, pos.X+n.Width/2, pos.X, pos.X+n.Width)
	p.Y = snap(p.Y, pos.Y, pos.Y+n.Height)
	return p
}

// simplify drops interior points that lie on the line through their
// neighbours, so straight splines become a single segment.
func simplify(pts []Point) []Point {
	if len(pts) <= 2 {
		return pts
	}
	out := []Point{pts[0]}
	for i := 1; i < len(pts)-1; i++ {
		a, b, c := out[len(out)-1], pts[i], pts[i+1]
		if collinear(a, b, c) {
			continue
		}
		out = append(out, b)
	}
	return append(out, pts[len(pts)-1])
}

func collinear(a, b, c Point) bool {
	ab := math.Hypot(c.X-a.X, c.Y-a.Y)
	if ab == 0 {
		return b == a
	}
	cross := (c.X-a.X)*(b.Y-a.Y) - (c.Y-a.Y)*(b.X-a.X)
	if math.Abs(cross)/ab > 0.5 {
		return false
	}
	// b must also lie between a and c.
	dot := (b.X-a.X)*(c.X-a.X) + (b.Y-a.Y)*(c.Y-a.Y)
	return dot >= 0 && dot <= ab*ab
}

// gridLayout places nodes row by row in input order on a square-ish grid
// with straight edges.
func gridLayout(ns []Node, edges []Edge, o options) *placement {
	cols := int(math.Ceil(math.Sqrt(float64(len(ns)))))
	cellW, cellH := 0.0, 0.0
	for _, n := range ns {
		cellW = math.Max(cellW, n.Width)
		cellH = math.Max(cellH, n.Height)
	}
	rows := (len(ns) + cols - 1) / cols

	p := &placement{
		nodes:  make(map[string]Point, len(ns)),
		routes: make([][]Point, len(edges)),
		width:  float64(cols)*cellW + float64(cols-1)*o.nodeSep + 2*o.margin,
		height: float64(rows)*cellH + float64(rows-1)*o.rankSep + 2*o.margin,
	}
	sizes := make(map[string]Node, len(ns))
	for i, n := range ns {
		col, row := i%cols, i/cols
		p.nodes[n.ID] = Point{
			X: o.margin + float64(col)*(cellW+o.nodeSep),
			Y: o.margin + float64(row)*(cellH+o.rankSep),
		}
		sizes[n.ID] = n
	}
	for i, e := range edges {
		src, dst := sizes[e.Source], sizes[e.Target]
		p.routes[i] = straightRoute(src, dst, p.nodes[src.ID], p.nodes[dst.ID])
	}
	return p
}

// straightRoute joins two boxes with one segment between facing sides.
// A self-loop bulges out of the node's right side.
func straightRoute(src, dst Node, sp, dp Point) []Point {
	if src.ID == dst.ID {
		right := sp.X + src.Width
		top := sp.Y + src.Height*0.3
		bottom := sp.Y + src.Height*0.7
		return []Point{
			{X: right, Y: top},
			{X: right + selfLoopReach, Y: top},
			{X: right + selfLoopReach, Y: bottom},
			{X: right, Y: bottom},
		}
	}
	switch {
	case dp.Y >= sp.Y+src.Height:
		return []Point{{X: sp.X + src.Width/2, Y: sp.Y + src.Height}, {X: dp.X + dst.Width/2, Y: dp.Y}}
	case sp.Y >= dp.Y+dst.Height:
		return []Point{{X: sp.X + src.Width/2, Y: sp.Y}, {X: dp.X + dst.Width/2, Y: dp.Y + dst.Height}}
	case dp.X >= sp.X:
		return []Point{{X: sp.X + src.Width, Y: sp.Y + src.Height/2}, {X: dp.X, Y: dp.Y + dst.Height/2}}
	}
	return []Point{{X: sp.X, Y: sp.Y + src.Height/2}, {X: dp.X + dst.Width, Y: dp.Y + dst.Height/2}}
}
