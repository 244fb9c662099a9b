package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/beadgraph/internal/events"
	"github.com/alfredjeanlab/beadgraph/internal/idgen"
	"github.com/alfredjeanlab/beadgraph/internal/render"
	"github.com/alfredjeanlab/beadgraph/internal/viewport"
)

// ErrSessionNotFound is returned for unknown or closed session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is one client's viewport onto the shared graph. A session is
// safe for concurrent use; input events are applied one at a time.
type Session struct {
	id      string
	created time.Time
	onClick func(sessionID, issueID string)

	mu        sync.Mutex
	router    *viewport.Router
	layoutKey string
	version   uint64
	lastSeen  time.Time
	events    int64
	closed    bool
}

// Info describes a session.
type Info struct {
	ID        string            `json:"id"`
	Viewport  viewport.Snapshot `json:"viewport"`
	LayoutKey string            `json:"layout_key"`
	CreatedAt time.Time         `json:"created_at"`
	LastSeen  time.Time         `json:"last_seen"`
	IdleSecs  float64           `json:"idle_secs"`
	Events    int64             `json:"events"`
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Apply feeds one input event to the session's viewport. A node click is
// published after the session is unlocked.
func (s *Session) Apply(ev viewport.Event) (viewport.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return viewport.Result{}, ErrSessionNotFound
	}
	s.lastSeen = time.Now()
	s.events++
	res, err := s.router.Handle(ev)
	s.mu.Unlock()

	if err == nil && res.Clicked != "" && s.onClick != nil {
		s.onClick(s.id, res.Clicked)
	}
	return res, err
}

// Info returns a description of the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:        s.id,
		Viewport:  s.router.Controller().Snapshot(),
		LayoutKey: s.layoutKey,
		CreatedAt: s.created,
		LastSeen:  s.lastSeen,
		IdleSecs:  time.Since(s.lastSeen).Seconds(),
		Events:    s.events,
	}
}

// Viewport returns the current viewport.
func (s *Session) Viewport() viewport.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Controller().Snapshot()
}

// RenderSVG draws snap through the session's viewport.
func (s *Session) RenderSVG(w io.Writer, snap *Snapshot) error {
	vp := s.Viewport()
	return render.SVG(w, snap.Scene(vp.State, vp.Width, vp.Height))
}

// setLayout moves the session to snap. Snapshots older than the one already
// applied are ignored.
func (s *Session) setLayout(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || snap.Version < s.version {
		return
	}
	s.version = snap.Version
	if s.layoutKey == snap.Key {
		return
	}
	s.layoutKey = snap.Key
	s.router.Controller().SetLayout(snap.Layout)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.router.Close()
}

func (s *Session) idle(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// ReaperConfig configures the background idle-session reaper.
type ReaperConfig struct {
	// IdleTimeout is how long a session may go without input before it is
	// closed. Default: 30 minutes.
	IdleTimeout time.Duration

	// SweepInterval is how often the reaper scans for idle sessions.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnReap is called for each closed session, outside the lock.
	OnReap func(id string)
}

// Sessions is the registry of live viewer sessions.
type Sessions struct {
	viewer *Viewer
	pub    events.Publisher

	mu       sync.RWMutex
	sessions map[string]*Session

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewSessions returns a registry whose sessions follow v's snapshots. Node
// click-through is published on pub.
func NewSessions(v *Viewer, pub events.Publisher) *Sessions {
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	s := &Sessions{
		viewer:   v,
		pub:      pub,
		sessions: make(map[string]*Session),
	}
	v.OnUpdate(s.updateLayouts)
	return s
}

// Create opens a session with a width x height viewport. The viewport
// fits itself to the graph as soon as both a size and a non-empty layout
// are known.
func (r *Sessions) Create(width, height float64) (*Session, error) {
	if width < 0 || height < 0 {
		return nil, fmt.Errorf("invalid viewport size %gx%g", width, height)
	}
	id, err := idgen.New(idgen.Session)
	if err != nil {
		return nil, fmt.Errorf("generating session id: %w", err)
	}
	now := time.Now()
	s := &Session{id: id, created: now, lastSeen: now, onClick: r.publishClick}
	s.router = viewport.NewRouter()
	s.router.Controller().Resize(width, height)

	// Registered before the snapshot is read, so a refresh in between
	// reaches the session through updateLayouts.
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	s.setLayout(r.viewer.Snapshot())

	slog.Info("viewer: session opened", "session", id, "width", width, "height", height)
	return s, nil
}

func (r *Sessions) publishClick(sessionID, issueID string) {
	ev := events.IssueClicked{IssueID: issueID, SessionID: sessionID, At: time.Now().UTC()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.pub.Publish(ctx, events.TopicIssueClicked, ev); err != nil {
		slog.Warn("failed to publish issue click", "issue", issueID, "err", err)
	}
}

// Get returns the session with the given id.
func (r *Sessions) Get(id string) (*Session, error) {
	if !idgen.Valid(idgen.Session, id) {
		return nil, ErrSessionNotFound
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close removes and closes a session, releasing any drag in progress.
func (r *Sessions) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.close()
	slog.Info("viewer: session closed", "session", id)
	return nil
}

// List returns every session, most recently active first.
func (r *Sessions) List() []Info {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, len(all))
	for i, s := range all {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].LastSeen.After(infos[j].LastSeen)
	})
	return infos
}

// Len returns the number of open sessions.
func (r *Sessions) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Sessions) updateLayouts(snap *Snapshot) {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.setLayout(snap)
	}
}

// StartReaper launches a background goroutine that closes idle sessions.
// Call Stop to shut it down.
func (r *Sessions) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	r.reaperStop = make(chan struct{})
	r.reaperDone = make(chan struct{})

	go r.reapLoop(cfg)
	slog.Info("viewer: reaper started",
		"idle_timeout", cfg.IdleTimeout,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper and closes every session.
func (r *Sessions) Stop() {
	if r.reaperStop != nil {
		close(r.reaperStop)
		<-r.reaperDone
		r.reaperStop = nil
		r.reaperDone = nil
	}
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}

func (r *Sessions) reapLoop(cfg *ReaperConfig) {
	defer close(r.reaperDone)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.reaperStop:
			return
		case <-ticker.C:
			r.sweep(cfg, time.Now())
		}
	}
}

func (r *Sessions) sweep(cfg *ReaperConfig, now time.Time) {
	var idle []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idle(now) > cfg.IdleTimeout {
			delete(r.sessions, id)
			idle = append(idle, s)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.close()
		slog.Info("viewer: reaper closed idle session",
			"session", s.id,
			"timeout", cfg.IdleTimeout)
		if cfg.OnReap != nil {
			cfg.OnReap(s.id)
		}
	}
}
