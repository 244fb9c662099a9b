package server

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzhttp"

	"github.com/alfredjeanlab/beadgraph/internal/viewer"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header. Rendered and JSON graph
// responses are gzip-compressed for clients that accept it; streaming
// routes are not.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	gz := func(h http.HandlerFunc) http.Handler { return gzhttp.GzipHandler(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /v1/graph", gz(s.handleGetGraph))
	mux.Handle("GET /v1/graph/layout", gz(s.handleGetLayout))
	mux.Handle("GET /v1/graph/svg", gz(s.handleGraphSVG))
	mux.Handle("GET /v1/graph/html", gz(s.handleGraphHTML))
	mux.HandleFunc("POST /v1/graph/refresh", s.handleRefresh)
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("POST /v1/sessions/{id}/input", s.handleSessionInput)
	mux.Handle("GET /v1/sessions/{id}/svg", gz(s.handleSessionSVG))
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleSessionWS)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return RecoveryMiddleware(LoggingMiddleware(AuthMiddleware(authToken, mux)))
}

type healthResponse struct {
	Status    string `json:"status"`
	Source    string `json:"source"`
	Version   uint64 `json:"version"`
	Nodes     int    `json:"nodes"`
	Sessions  int    `json:"sessions"`
	LastError string `json:"last_error,omitempty"`
}

// handleHealth handles GET /v1/health. The viewer stays healthy while it
// serves a stale graph; the last refresh error is reported alongside.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.viewer.Snapshot()
	resp := healthResponse{
		Status:   "ok",
		Version:  snap.Version,
		Nodes:    len(snap.Issues()),
		Sessions: s.sessions.Len(),
	}
	if src := s.viewer.Source(); src != nil {
		resp.Source = src.Name()
	}
	if err := s.viewer.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// inputError indicates invalid user input.
// Transport layers map this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeErr maps err to a status code: 400 for bad input, 404 for unknown
// sessions, 500 otherwise.
func writeErr(w http.ResponseWriter, err error) {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, viewer.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return inputError("invalid JSON body: " + err.Error())
	}
	return nil
}

// queryFloat parses a float query parameter, reporting whether it was set.
func queryFloat(r *http.Request, name string) (float64, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, inputError("invalid " + name + ": " + v)
	}
	return f, true, nil
}
