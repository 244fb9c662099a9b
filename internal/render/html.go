package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/alfredjeanlab/beadgraph/internal/model"
)

// DefaultPageTitle is the HTML title used when none is given.
const DefaultPageTitle = "beads dependency graph"

// HTML writes a self-contained interactive page for the scene. Node
// positions come from the scene's layout; the chart itself only handles
// roaming.
func HTML(w io.Writer, s Scene, title string) error {
	if title == "" {
		title = DefaultPageTitle
	}
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(graphChart(s, title))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering html: %w", err)
	}
	return nil
}

func graphChart(s Scene, title string) *charts.Graph {
	nodes, links := echartsData(s)

	t := opts.Title{Title: title}
	if len(nodes) == 0 {
		t.Subtitle = EmptyMessage
	}

	g := charts.NewGraph()
	g.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: title,
			Height:    "100vh",
			Width:     "100vw",
		}),
		charts.WithTitleOpts(t),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(false),
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show: opts.Bool(true),
		}),
	)
	g.AddSeries(
		"issues",
		nodes,
		links,
		charts.WithGraphChartOpts(opts.GraphChart{
			Layout:     "none",
			Roam:       opts.Bool(true),
			EdgeSymbol: []string{"none", "arrow"},
		}),
	)
	return g
}

// echartsData converts the scene's layout to chart nodes centred on their
// boxes, and its edges to links. Orphan edges are skipped.
func echartsData(s Scene) ([]opts.GraphNode, []opts.GraphLink) {
	if s.Layout.Empty() {
		return []opts.GraphNode{}, []opts.GraphLink{}
	}
	beads := make(map[string]model.Status, len(s.Issues))
	for _, b := range s.Issues {
		if b != nil {
			beads[b.ID] = b.Status
		}
	}

	var nodes []opts.GraphNode
	for _, id := range s.Layout.Order() {
		pos, ok := s.Layout.NodePosition(id)
		if !ok {
			continue
		}
		w, h, _ := s.Layout.NodeSize(id)
		fill, stroke := StatusColors(beads[id])
		nodes = append(nodes, opts.GraphNode{
			Name:       id,
			X:          float32(pos.X + w/2),
			Y:          float32(pos.Y + h/2),
			Symbol:     "roundRect",
			SymbolSize: []float32{float32(w), float32(h)},
			ItemStyle: &opts.ItemStyle{
				Color:       fill,
				BorderColor: stroke,
			},
		})
	}

	links := []opts.GraphLink{}
	for _, e := range s.Layout.Edges {
		if _, ok := s.Layout.NodePosition(e.Source); !ok {
			continue
		}
		if _, ok := s.Layout.NodePosition(e.Target); !ok {
			continue
		}
		links = append(links, opts.GraphLink{Source: e.Source, Target: e.Target})
	}
	return nodes, links
}
