// Package snapshot exports the viewer's current graph on a schedule.
package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alfredjeanlab/beadgraph/internal/idgen"
	"github.com/alfredjeanlab/beadgraph/internal/render"
	"github.com/alfredjeanlab/beadgraph/internal/viewer"
)

// Format is the document type of an exported snapshot.
type Format string

const (
	FormatSVG  Format = "svg"
	FormatHTML Format = "html"
)

// ParseFormat accepts "svg" or "html"; empty means svg.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatSVG:
		return FormatSVG, nil
	case FormatHTML:
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown snapshot format %q", s)
}

// ContentType returns the MIME type of documents in format f.
func (f Format) ContentType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "image/svg+xml"
}

// Artifact is one rendered snapshot.
type Artifact struct {
	ID        string
	Format    Format
	Version   uint64
	LayoutKey string
	Nodes     int
	At        time.Time
	Data      []byte
}

// Destination is a place snapshots are written to (S3, git, a file).
type Destination interface {
	Write(ctx context.Context, a *Artifact) error
}

// Provider supplies the graph to export. *viewer.Viewer satisfies it.
type Provider interface {
	Snapshot() *viewer.Snapshot
}

// Options configure a Scheduler.
type Options struct {
	// Schedule is a cron expression or descriptor such as "@every 10m".
	Schedule string
	Format   Format
	// Width and Height size the fitted canvas.
	Width  float64
	Height float64
	// Title is used for HTML exports.
	Title string
}

// ErrNoGraph is returned when the provider has not loaded a graph yet.
var ErrNoGraph = errors.New("no graph loaded")

// Render draws snap fitted to the canvas in the given format.
func Render(snap *viewer.Snapshot, f Format, width, height float64, title string) (*Artifact, error) {
	if snap == nil || snap.Version == 0 {
		return nil, ErrNoGraph
	}
	id, err := idgen.New(idgen.Snapshot)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	scene := snap.FittedScene(width, height)
	switch f {
	case FormatHTML:
		err = render.HTML(&buf, scene, title)
	default:
		f = FormatSVG
		err = render.SVG(&buf, scene)
	}
	if err != nil {
		return nil, err
	}
	a := &Artifact{
		ID:        id,
		Format:    f,
		Version:   snap.Version,
		LayoutKey: snap.Key,
		At:        time.Now().UTC(),
		Data:      buf.Bytes(),
	}
	if snap.Layout != nil {
		a.Nodes = len(snap.Layout.Nodes)
	}
	return a, nil
}

// Scheduler renders the provider's graph on a cron schedule and writes it
// to every destination. A graph version that was already exported is
// skipped.
type Scheduler struct {
	provider     Provider
	destinations []Destination
	opts         Options
	logger       *slog.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	lastVersion uint64
}

// NewScheduler validates the schedule and returns a stopped scheduler.
func NewScheduler(p Provider, destinations []Destination, opts Options, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		provider:     p,
		destinations: destinations,
		opts:         opts,
		logger:       logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	cl := cronLogger{logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(opts.Schedule, func() { s.runOnce(s.ctx) }); err != nil {
		return nil, fmt.Errorf("parse snapshot schedule %q: %w", opts.Schedule, err)
	}
	return s, nil
}

// Start exports once immediately, then on every scheduled tick.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce(s.ctx)
	}()
	s.cron.Start()
}

// Stop stops the schedule, cancels in-flight writes and waits for them to
// return.
func (s *Scheduler) Stop() {
	stopped := s.cron.Stop()
	s.cancel()
	<-stopped.Done()
	s.wg.Wait()
}

// runOnce renders the current graph and writes it everywhere. It reports
// whether an export happened.
func (s *Scheduler) runOnce(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.provider.Snapshot()
	if snap == nil || snap.Version == 0 {
		s.logger.Debug("snapshot skipped: no graph loaded")
		return false
	}
	if snap.Version == s.lastVersion {
		return false
	}

	a, err := Render(snap, s.opts.Format, s.opts.Width, s.opts.Height, s.opts.Title)
	if err != nil {
		s.logger.Error("snapshot render failed", "err", err)
		return false
	}

	failed := 0
	for i, dest := range s.destinations {
		if err := dest.Write(ctx, a); err != nil {
			failed++
			s.logger.Error("snapshot destination write failed", "destination", fmt.Sprintf("%d", i), "id", a.ID, "err", err)
		}
	}
	// Retry on the next tick when nothing received it.
	if failed == len(s.destinations) && failed > 0 {
		return false
	}
	s.lastVersion = snap.Version

	s.logger.Info("snapshot exported", "id", a.ID, "version", a.Version, "destinations", len(s.destinations)-failed, "bytes", len(a.Data))
	return true
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
