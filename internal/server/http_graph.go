package server

import (
	"bytes"
	"log/slog"
	"net/http"
	"time"

	"github.com/alfredjeanlab/beadgraph/internal/graph"
	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/render"
	"github.com/alfredjeanlab/beadgraph/internal/viewer"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

type graphResponse struct {
	Nodes     []*model.Bead      `json:"nodes"`
	Edges     []*model.GraphEdge `json:"edges"`
	Relations []model.Relation   `json:"relations"`
	Stats     *model.GraphStats  `json:"stats,omitempty"`
	Filter    string             `json:"filter,omitempty"`
	Version   uint64             `json:"version"`
	LoadedAt  time.Time          `json:"loaded_at"`
}

func (s *Server) graphResponse(snap *viewer.Snapshot) graphResponse {
	return graphResponse{
		Nodes:     snap.Graph.Nodes,
		Edges:     snap.Graph.Edges,
		Relations: snap.Relations,
		Stats:     snap.Graph.Stats,
		Filter:    s.viewer.Filter().String(),
		Version:   snap.Version,
		LoadedAt:  snap.LoadedAt,
	}
}

// handleGetGraph handles GET /v1/graph.
func (s *Server) handleGetGraph(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.graphResponse(s.viewer.Snapshot()))
}

type layoutResponse struct {
	Key     string        `json:"key"`
	Version uint64        `json:"version"`
	Layout  *graph.Layout `json:"layout"`
}

// handleGetLayout handles GET /v1/graph/layout.
func (s *Server) handleGetLayout(w http.ResponseWriter, _ *http.Request) {
	snap := s.viewer.Snapshot()
	writeJSON(w, http.StatusOK, layoutResponse{Key: snap.Key, Version: snap.Version, Layout: snap.Layout})
}

// sceneFromQuery builds a scene from width, height, zoom, pan_x and pan_y
// query parameters. Without zoom the view is fitted to the graph.
func sceneFromQuery(r *http.Request, snap *viewer.Snapshot) (render.Scene, error) {
	width, _, err := queryFloat(r, "width")
	if err != nil {
		return render.Scene{}, err
	}
	height, _, err := queryFloat(r, "height")
	if err != nil {
		return render.Scene{}, err
	}
	if width < 0 || height < 0 {
		return render.Scene{}, inputError("width and height must not be negative")
	}

	zoom, hasZoom, err := queryFloat(r, "zoom")
	if err != nil {
		return render.Scene{}, err
	}
	if !hasZoom {
		return snap.FittedScene(width, height), nil
	}
	panX, _, err := queryFloat(r, "pan_x")
	if err != nil {
		return render.Scene{}, err
	}
	panY, _, err := queryFloat(r, "pan_y")
	if err != nil {
		return render.Scene{}, err
	}
	c := viewport.New()
	c.SetState(viewport.State{Zoom: zoom, PanX: panX, PanY: panY})
	return snap.Scene(c.State(), width, height), nil
}

// handleGraphSVG handles GET /v1/graph/svg.
func (s *Server) handleGraphSVG(w http.ResponseWriter, r *http.Request) {
	sc, err := sceneFromQuery(r, s.viewer.Snapshot())
	if err != nil {
		writeErr(w, err)
		return
	}
	var buf bytes.Buffer
	if err := render.SVG(&buf, sc); err != nil {
		writeErr(w, err)
		return
	}
	writeSVG(w, buf.Bytes())
}

// handleGraphHTML handles GET /v1/graph/html.
func (s *Server) handleGraphHTML(w http.ResponseWriter, r *http.Request) {
	snap := s.viewer.Snapshot()
	var buf bytes.Buffer
	if err := render.HTML(&buf, snap.Scene(viewport.State{Zoom: 1}, 0, 0), r.URL.Query().Get("title")); err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleRefresh handles POST /v1/graph/refresh. A source failure leaves
// the previous graph in place and answers 502.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := s.Refresh(r.Context())
	if err != nil {
		slog.Warn("manual refresh failed", "err", err)
		writeError(w, http.StatusBadGateway, "refresh failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.graphResponse(snap))
}

func writeSVG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
