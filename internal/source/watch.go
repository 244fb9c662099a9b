package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/beadgraph/internal/client"
	"github.com/alfredjeanlab/beadgraph/internal/events"
)

// DefaultDebounce collapses bursts of change events into one refresh.
const DefaultDebounce = 200 * time.Millisecond

// RefreshFunc reloads the graph. Errors are logged by the watcher and do
// not stop it.
type RefreshFunc func(ctx context.Context) error

// Watcher calls refresh whenever the graph may have changed, until ctx is
// cancelled.
type Watcher interface {
	Watch(ctx context.Context, refresh RefreshFunc) error
}

// debouncer runs refresh once a burst of triggers goes quiet.
type debouncer struct {
	timer *time.Timer
	delay time.Duration
}

func newDebouncer(delay time.Duration) *debouncer {
	t := time.NewTimer(0)
	t.Stop()
	// Drain the timer channel in case it fired between NewTimer and Stop.
	select {
	case <-t.C:
	default:
	}
	return &debouncer{timer: t, delay: delay}
}

func (d *debouncer) trigger() { d.timer.Reset(d.delay) }

func (d *debouncer) now() { d.timer.Reset(0) }

func (d *debouncer) fired() <-chan time.Time { return d.timer.C }

func (d *debouncer) stop() { d.timer.Stop() }

func runRefresh(ctx context.Context, refresh RefreshFunc, via string) {
	if err := refresh(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("graph refresh failed", "via", via, "err", err)
	}
}

// NATSWatcher refreshes on beads bead, dependency and label events
// published on NATS, and immediately after a reconnect since events may
// have been missed while disconnected.
type NATSWatcher struct {
	URL      string
	Debounce time.Duration

	// subscribe is swapped in tests.
	subscribe func(url string, opts ...nats.Option) (events.Subscriber, error)
}

// NewNATSWatcher returns a watcher subscribed to url.
func NewNATSWatcher(url string) *NATSWatcher {
	return &NATSWatcher{URL: url, Debounce: DefaultDebounce}
}

func (w *NATSWatcher) Watch(ctx context.Context, refresh RefreshFunc) error {
	reconnectCh := make(chan struct{}, 1)

	connect := w.subscribe
	if connect == nil {
		connect = func(url string, opts ...nats.Option) (events.Subscriber, error) {
			return events.NewNATSSubscriber(url, opts...)
		}
	}
	sub, err := connect(w.URL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			slog.Info("nats: reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(events.TopicAll)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	d := newDebouncer(debounceOrDefault(w.Debounce))
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if events.AffectsGraph(msg.Subject) {
				d.trigger()
			}
		case <-reconnectCh:
			d.now()
		case <-d.fired():
			runRefresh(ctx, refresh, "nats")
		}
	}
}

// SSEWatcher follows the beads server's event stream. Dropped streams are
// reopened with exponential backoff, resuming from the last event seen.
type SSEWatcher struct {
	Client     client.BeadsClient
	Debounce   time.Duration
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// NewSSEWatcher returns a watcher following c's event stream.
func NewSSEWatcher(c client.BeadsClient) *SSEWatcher {
	return &SSEWatcher{
		Client:     c,
		Debounce:   DefaultDebounce,
		MinBackoff: time.Second,
		MaxBackoff: 30 * time.Second,
	}
}

// errStreamEnded marks a stream the server closed cleanly.
var errStreamEnded = errors.New("event stream ended")

func (w *SSEWatcher) Watch(ctx context.Context, refresh RefreshFunc) error {
	changes := make(chan struct{}, 1)
	reconnects := make(chan struct{}, 1)
	signal := func(ch chan struct{}) {
		select {
		case ch <- struct{}{}:
		default:
		}
	}

	streamDone := make(chan struct{})
	go func() {
		defer close(streamDone)
		w.follow(ctx, func() { signal(changes) }, func() { signal(reconnects) })
	}()

	d := newDebouncer(debounceOrDefault(w.Debounce))
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			<-streamDone
			return nil
		case <-changes:
			d.trigger()
		case <-reconnects:
			d.now()
		case <-d.fired():
			runRefresh(ctx, refresh, "sse")
		}
	}
}

// follow keeps a stream open until ctx is cancelled.
func (w *SSEWatcher) follow(ctx context.Context, changed, reconnected func()) {
	var (
		lastID  string
		backoff = w.MinBackoff
		first   = true
	)
	if backoff <= 0 {
		backoff = time.Second
	}
	maxBackoff := w.MaxBackoff
	if maxBackoff < backoff {
		maxBackoff = backoff
	}

	for ctx.Err() == nil {
		if !first {
			reconnected()
		}
		first = false

		req := &client.StreamRequest{Topics: events.GraphTopics, LastEventID: lastID}
		err := w.Client.StreamEvents(ctx, req, func(ev *client.StreamEvent) error {
			if ev.ID != "" {
				lastID = ev.ID
			}
			backoff = w.MinBackoff
			if backoff <= 0 {
				backoff = time.Second
			}
			if events.AffectsGraph(ev.Topic) {
				changed()
			}
			return nil
		})
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errStreamEnded
		}
		slog.Warn("sse: stream dropped, reconnecting", "err", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// PollWatcher refreshes on a fixed interval.
type PollWatcher struct {
	Interval time.Duration
}

// NewPollWatcher returns a watcher polling every interval.
func NewPollWatcher(interval time.Duration) *PollWatcher {
	return &PollWatcher{Interval: interval}
}

func (w *PollWatcher) Watch(ctx context.Context, refresh RefreshFunc) error {
	if w.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", w.Interval)
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			runRefresh(ctx, refresh, "poll")
		}
	}
}

func debounceOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultDebounce
	}
	return d
}
