// Package render paints a laid out dependency graph.
//
// SVG output bakes the zoom factor into every coordinate, size and stroke
// width, and applies the pan as a single translate on the wrapper group.
// Text therefore stays crisp at fractional zoom levels.
package render

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/alfredjeanlab/beadgraph/internal/graph"
	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

// Default canvas size used when a scene does not carry one.
const (
	DefaultWidth  = 1200.0
	DefaultHeight = 800.0
)

// EmptyMessage is shown instead of a canvas when there is nothing to draw.
const EmptyMessage = "No issues to display"

const (
	edgeStroke    = 1.5
	nodeStroke    = 1.5
	nodeRadius    = 6.0
	nodePadding   = 10.0
	titleFontSize = 13.0
	metaFontSize  = 11.0
	badgeFontSize = 10.0
	badgeHeight   = 16.0
	// Rough advance widths used to size badges and truncate titles.
	badgeCharWidth = 6.5
	titleCharWidth = 7.2

	edgeColor  = "#94a3b8"
	titleColor = "#111827"
	metaColor  = "#6b7280"
	background = "#f8fafc"
)

// Scene is everything needed to paint one frame.
type Scene struct {
	Issues []*model.Bead
	Layout *graph.Layout
	View   viewport.State
	Width  float64
	Height float64
}

func (s Scene) size() (float64, float64) {
	w, h := s.Width, s.Height
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

type svgDoc struct {
	XMLName    xml.Name  `xml:"svg"`
	Xmlns      string    `xml:"xmlns,attr"`
	Width      string    `xml:"width,attr"`
	Height     string    `xml:"height,attr"`
	ViewBox    string    `xml:"viewBox,attr"`
	Zoom       string    `xml:"data-zoom,attr"`
	Defs       *svgDefs  `xml:"defs,omitempty"`
	Background svgRect   `xml:"rect"`
	Empty      *svgText  `xml:"text,omitempty"`
	Layer      *svgGroup `xml:"g,omitempty"`
}

type svgDefs struct {
	Marker svgMarker `xml:"marker"`
}

type svgMarker struct {
	ID           string  `xml:"id,attr"`
	ViewBox      string  `xml:"viewBox,attr"`
	RefX         string  `xml:"refX,attr"`
	RefY         string  `xml:"refY,attr"`
	MarkerWidth  string  `xml:"markerWidth,attr"`
	MarkerHeight string  `xml:"markerHeight,attr"`
	Orient       string  `xml:"orient,attr"`
	Path         svgPath `xml:"path"`
}

type svgGroup struct {
	Class     string      `xml:"class,attr,omitempty"`
	ID        string      `xml:"data-id,attr,omitempty"`
	Transform string      `xml:"transform,attr,omitempty"`
	Title     string      `xml:"title,omitempty"`
	Rects     []svgRect   `xml:"rect"`
	Paths     []svgPath   `xml:"path"`
	Texts     []svgText   `xml:"text"`
	Groups    []*svgGroup `xml:"g"`
}

type svgRect struct {
	Class       string `xml:"class,attr,omitempty"`
	X           string `xml:"x,attr,omitempty"`
	Y           string `xml:"y,attr,omitempty"`
	Width       string `xml:"width,attr"`
	Height      string `xml:"height,attr"`
	Rx          string `xml:"rx,attr,omitempty"`
	Fill        string `xml:"fill,attr,omitempty"`
	Stroke      string `xml:"stroke,attr,omitempty"`
	StrokeWidth string `xml:"stroke-width,attr,omitempty"`
}

type svgPath struct {
	Class       string `xml:"class,attr,omitempty"`
	Source      string `xml:"data-source,attr,omitempty"`
	Target      string `xml:"data-target,attr,omitempty"`
	D           string `xml:"d,attr"`
	Fill        string `xml:"fill,attr,omitempty"`
	Stroke      string `xml:"stroke,attr,omitempty"`
	StrokeWidth string `xml:"stroke-width,attr,omitempty"`
	MarkerEnd   string `xml:"marker-end,attr,omitempty"`
}

type svgText struct {
	Class      string `xml:"class,attr,omitempty"`
	X          string `xml:"x,attr"`
	Y          string `xml:"y,attr"`
	FontSize   string `xml:"font-size,attr,omitempty"`
	FontWeight string `xml:"font-weight,attr,omitempty"`
	Anchor     string `xml:"text-anchor,attr,omitempty"`
	Fill       string `xml:"fill,attr,omitempty"`
	Text       string `xml:",chardata"`
}

func num(v float64) string { return graph.FormatCoord(v) }

// SVG writes the scene as a standalone SVG document.
func SVG(w io.Writer, s Scene) error {
	width, height := s.size()
	zoom := graph.Clamp(s.View.Zoom, viewport.MinZoom, viewport.MaxZoom)

	doc := svgDoc{
		Xmlns:   "http://www.w3.org/2000/svg",
		Width:   num(width),
		Height:  num(height),
		ViewBox: "0 0 " + num(width) + " " + num(height),
		Zoom:    strconv.FormatFloat(zoom, 'f', -1, 64),
		Background: svgRect{
			Class:  "kg-bg",
			Width:  "100%",
			Height: "100%",
			Fill:   background,
		},
	}

	if s.Layout.Empty() {
		doc.Empty = &svgText{
			Class:    "kg-empty",
			X:        num(width / 2),
			Y:        num(height / 2),
			FontSize: num(16),
			Anchor:   "middle",
			Fill:     metaColor,
			Text:     EmptyMessage,
		}
		return encode(w, doc)
	}

	doc.Defs = &svgDefs{Marker: svgMarker{
		ID:           "kg-arrow",
		ViewBox:      "0 0 10 10",
		RefX:         "10",
		RefY:         "5",
		MarkerWidth:  "6",
		MarkerHeight: "6",
		Orient:       "auto-start-reverse",
		Path:         svgPath{D: "M 0,0 L 10,5 L 0,10 z", Fill: edgeColor},
	}}

	beads := make(map[string]*model.Bead, len(s.Issues))
	for _, b := range s.Issues {
		if b != nil {
			beads[b.ID] = b
		}
	}

	doc.Layer = &svgGroup{
		Class:     "kg-layer",
		Transform: "translate(" + num(s.View.PanX) + " " + num(s.View.PanY) + ")",
		Groups: []*svgGroup{
			edgeGroup(s.Layout, zoom),
			nodeGroup(s.Layout, beads, zoom),
		},
	}
	return encode(w, doc)
}

func encode(w io.Writer, doc svgDoc) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding svg: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding svg: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func edgeGroup(l *graph.Layout, zoom float64) *svgGroup {
	g := &svgGroup{Class: "kg-edges"}
	for _, e := range l.Edges {
		if _, ok := l.NodePosition(e.Source); !ok {
			continue
		}
		if _, ok := l.NodePosition(e.Target); !ok {
			continue
		}
		d := graph.EdgePath(graph.ScalePoints(e.Points, zoom))
		if d == "" {
			continue
		}
		g.Paths = append(g.Paths, svgPath{
			Class:       "kg-edge",
			Source:      e.Source,
			Target:      e.Target,
			D:           d,
			Fill:        "none",
			Stroke:      edgeColor,
			StrokeWidth: num(edgeStroke * zoom),
			MarkerEnd:   "url(#kg-arrow)",
		})
	}
	return g
}

func nodeGroup(l *graph.Layout, beads map[string]*model.Bead, zoom float64) *svgGroup {
	g := &svgGroup{Class: "kg-nodes"}
	for _, id := range l.Order() {
		pos, ok := l.NodePosition(id)
		if !ok {
			continue
		}
		w, h, _ := l.NodeSize(id)
		g.Groups = append(g.Groups, node(id, beads[id], pos, w, h, zoom))
	}
	return g
}

// node draws one issue box in local coordinates under a translate to its
// scaled position.
func node(id string, b *model.Bead, pos graph.Point, w, h, zoom float64) *svgGroup {
	var (
		status   model.Status
		typ      model.BeadType
		title    string
		priority = -1
	)
	if b != nil {
		status, typ, title, priority = b.Status, b.Type, b.Title, b.Priority
	}
	fill, stroke := StatusColors(status)
	z := func(v float64) string { return num(v * zoom) }

	g := &svgGroup{
		Class:     "kg-node kg-status-" + statusClass(status),
		ID:        id,
		Transform: "translate(" + num(pos.X*zoom) + " " + num(pos.Y*zoom) + ")",
		Title:     tooltip(id, title),
		Rects: []svgRect{{
			Width:       z(w),
			Height:      z(h),
			Rx:          z(nodeRadius),
			Fill:        fill,
			Stroke:      stroke,
			StrokeWidth: z(nodeStroke),
		}},
	}

	idX := nodePadding
	if label := typ.Badge(); label != "" {
		bw := float64(len(label))*badgeCharWidth + 10
		g.Groups = append(g.Groups, &svgGroup{
			Class: "kg-badge kg-type-" + typ.String(),
			Rects: []svgRect{{
				X:      z(nodePadding),
				Y:      z(8),
				Width:  z(bw),
				Height: z(badgeHeight),
				Rx:     z(3),
				Fill:   TypeColor(typ),
			}},
			Texts: []svgText{{
				X:          z(nodePadding + bw/2),
				Y:          z(8 + 12),
				FontSize:   z(badgeFontSize),
				FontWeight: "bold",
				Anchor:     "middle",
				Fill:       "#ffffff",
				Text:       label,
			}},
		})
		idX += bw + 6
	}

	g.Texts = append(g.Texts, svgText{
		Class:    "kg-id",
		X:        z(idX),
		Y:        z(20),
		FontSize: z(metaFontSize),
		Fill:     metaColor,
		Text:     id,
	})
	if priority >= 0 {
		g.Texts = append(g.Texts, svgText{
			Class:      "kg-priority",
			X:          z(w - nodePadding),
			Y:          z(20),
			FontSize:   z(metaFontSize),
			FontWeight: "bold",
			Anchor:     "end",
			Fill:       PriorityColor(priority),
			Text:       "P" + strconv.Itoa(priority),
		})
	}
	if title != "" {
		g.Texts = append(g.Texts, svgText{
			Class:    "kg-title",
			X:        z(nodePadding),
			Y:        z(h/2 + 10),
			FontSize: z(titleFontSize),
			Fill:     titleColor,
			Text:     Truncate(title, int((w-2*nodePadding)/titleCharWidth)),
		})
	}
	if status != "" {
		g.Texts = append(g.Texts, svgText{
			Class:    "kg-status",
			X:        z(nodePadding),
			Y:        z(h - 8),
			FontSize: z(badgeFontSize),
			Fill:     stroke,
			Text:     status.String(),
		})
	}
	return g
}

func tooltip(id, title string) string {
	if title == "" {
		return id
	}
	return id + ": " + title
}

func statusClass(s model.Status) string {
	if s == "" {
		return "unknown"
	}
	return s.String()
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func Truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	if max == 1 {
		return string(r[:1])
	}
	return string(r[:max-1]) + "…"
}
