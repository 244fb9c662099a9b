package viewport

import (
	"errors"
	"fmt"
	"sync"
)

// Document is a ListenerRegistry that fans document-level pointer events
// out to whoever is subscribed. Events arriving with no subscriber are
// dropped, exactly like a browser document with no listeners attached.
type Document struct {
	mu       sync.Mutex
	next     int
	handlers map[int]DocumentHandler
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{handlers: make(map[int]DocumentHandler)}
}

// Subscribe attaches h until the returned function is called.
func (d *Document) Subscribe(h DocumentHandler) func() {
	d.mu.Lock()
	id := d.next
	d.next++
	d.handlers[id] = h
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.handlers, id)
			d.mu.Unlock()
		})
	}
}

// Listeners returns the number of attached handlers.
func (d *Document) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}

func (d *Document) snapshot() []DocumentHandler {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DocumentHandler, 0, len(d.handlers))
	for _, h := range d.handlers {
		out = append(out, h)
	}
	return out
}

// MouseMove delivers a pointer move to every subscriber.
func (d *Document) MouseMove(x, y float64) {
	for _, h := range d.snapshot() {
		h.MouseMove(x, y)
	}
}

// MouseUp delivers a button release to every subscriber.
func (d *Document) MouseUp(x, y float64) {
	for _, h := range d.snapshot() {
		h.MouseUp(x, y)
	}
}

// Input event types.
const (
	EventWheel     = "wheel"
	EventMouseDown = "mousedown"
	EventMouseMove = "mousemove"
	EventMouseUp   = "mouseup"
	EventClick     = "click"
	EventZoomIn    = "zoom_in"
	EventZoomOut   = "zoom_out"
	EventFit       = "fit"
	EventResize    = "resize"
)

// ErrUnknownEvent is returned by Router.Handle for an unrecognised type.
var ErrUnknownEvent = errors.New("unknown input event")

// Event is one input event forwarded by a client.
type Event struct {
	Type   string  `json:"type"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	DeltaY float64 `json:"delta_y,omitempty"`
	Button int     `json:"button,omitempty"`
	// NodeID is the node the client found under the pointer, if any.
	NodeID string  `json:"node_id,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

// Result describes the effect of one event.
type Result struct {
	Snapshot
	// PreventDefault tells the client to suppress its default action
	// (page scroll for wheel events).
	PreventDefault bool `json:"prevent_default,omitempty"`
	// Clicked is the id of a node click that was not swallowed.
	Clicked string `json:"clicked,omitempty"`
	Changed bool   `json:"changed"`
}

// Router applies client input events to a controller. Container-level
// events go straight to the controller; mousemove and mouseup go through
// the router's Document so they only take effect while a drag has its
// listeners attached.
type Router struct {
	ctrl *Controller
	doc  *Document
}

// NewRouter returns a router over a new controller. The controller's
// listener registry is the router's document; opts may not override it.
func NewRouter(opts ...Option) *Router {
	doc := NewDocument()
	opts = append(opts, WithListenerRegistry(doc))
	return &Router{ctrl: New(opts...), doc: doc}
}

// Controller returns the routed controller.
func (r *Router) Controller() *Controller { return r.ctrl }

// Document returns the document the controller subscribes to.
func (r *Router) Document() *Document { return r.doc }

// Handle applies ev and returns the resulting state.
func (r *Router) Handle(ev Event) (Result, error) {
	c := r.ctrl
	before := c.Snapshot()
	var res Result

	switch ev.Type {
	case EventWheel:
		res.PreventDefault, _ = c.Wheel(ev.X, ev.Y, ev.DeltaY)
	case EventMouseDown:
		c.MouseDown(ev.X, ev.Y, ev.Button, ev.NodeID != "")
	case EventMouseMove:
		r.doc.MouseMove(ev.X, ev.Y)
	case EventMouseUp:
		r.doc.MouseUp(ev.X, ev.Y)
	case EventClick:
		id := ev.NodeID
		if id == "" {
			id, _ = c.NodeAtScreen(ev.X, ev.Y)
		}
		if id != "" && c.ClickNode(id) {
			res.Clicked = id
		}
	case EventZoomIn:
		c.ZoomIn()
	case EventZoomOut:
		c.ZoomOut()
	case EventFit:
		c.FitToView()
	case EventResize:
		if ev.Width < 0 || ev.Height < 0 {
			return Result{}, fmt.Errorf("resize %vx%v: negative size", ev.Width, ev.Height)
		}
		c.Resize(ev.Width, ev.Height)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	res.Snapshot = c.Snapshot()
	res.Changed = res.Snapshot != before
	return res, nil
}

// Close tears down any active drag.
func (r *Router) Close() { r.ctrl.Close() }
