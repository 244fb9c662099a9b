package server

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/beadgraph/internal/viewer"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

type createSessionRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// handleCreateSession handles POST /v1/sessions.
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if req.Width < 0 || req.Height < 0 {
		writeError(w, http.StatusBadRequest, "width and height must not be negative")
		return
	}
	sess, err := s.sessions.Create(req.Width, req.Height)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

// handleListSessions handles GET /v1/sessions.
func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.sessions.List()})
}

// handleGetSession handles GET /v1/sessions/{id}.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// handleDeleteSession handles DELETE /v1/sessions/{id}.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionInput handles POST /v1/sessions/{id}/input.
func (s *Server) handleSessionInput(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var ev viewport.Event
	if err := decodeJSON(r, &ev); err != nil {
		writeErr(w, err)
		return
	}
	res, err := applyInput(sess, ev)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// applyInput feeds one event to a session, turning rejected events into
// input errors.
func applyInput(sess *viewer.Session, ev viewport.Event) (viewport.Result, error) {
	if ev.Type == "" {
		return viewport.Result{}, inputError("event type is required")
	}
	res, err := sess.Apply(ev)
	if err != nil && !errors.Is(err, viewer.ErrSessionNotFound) {
		return viewport.Result{}, inputError(err.Error())
	}
	return res, err
}

// handleSessionSVG handles GET /v1/sessions/{id}/svg.
func (s *Server) handleSessionSVG(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var buf bytes.Buffer
	if err := sess.RenderSVG(&buf, s.viewer.Snapshot()); err != nil {
		writeErr(w, err)
		return
	}
	writeSVG(w, buf.Bytes())
}
