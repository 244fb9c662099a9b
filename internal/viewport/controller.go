// Package viewport implements the pan/zoom controller of the dependency
// graph view.
//
// The controller is a headless state machine. It owns the zoom factor and
// pan offset, interprets wheel, drag and click input, and fits the graph
// to its container. All coordinates passed in are container-relative
// pixels; graph-space positions map to the screen as
// position*zoom + pan.
//
// A Controller is not safe for concurrent use. Callers that feed it from
// several goroutines must serialize access.
package viewport

import (
	"fmt"
	"math"

	"github.com/alfredjeanlab/beadgraph/internal/graph"
)

// Zoom limits and step factors.
const (
	MinZoom = 0.25
	MaxZoom = 2.0

	WheelZoomIn  = 1.1
	WheelZoomOut = 0.9

	// ButtonZoomStep is applied by ZoomIn (multiply) and ZoomOut (divide).
	ButtonZoomStep = 1.2

	// FitMargin is the empty border kept around the graph by FitToView.
	FitMargin = 60.0

	// MaxFitScale caps the fit scale so small graphs are not blown up.
	MaxFitScale = 1.0

	// DefaultDragThreshold is the pan distance, in pixels, beyond which a
	// node click arriving right after the drag is swallowed.
	DefaultDragThreshold = 3.0
)

// State is the viewport transform.
type State struct {
	Zoom float64 `json:"zoom"`
	PanX float64 `json:"pan_x"`
	PanY float64 `json:"pan_y"`
}

// DragState is captured on mouse-down and discarded on mouse-up.
type DragState struct {
	IsDragging bool    `json:"is_dragging"`
	DragStartX float64 `json:"drag_start_x"`
	DragStartY float64 `json:"drag_start_y"`
	PanStartX  float64 `json:"pan_start_x"`
	PanStartY  float64 `json:"pan_start_y"`
}

// Mode is the interaction state.
type Mode int

const (
	Idle Mode = iota
	Panning
)

func (m Mode) String() string {
	if m == Panning {
		return "panning"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*m = Idle
	case "panning":
		*m = Panning
	default:
		return fmt.Errorf("unknown mode %q", b)
	}
	return nil
}

// FitState records whether the one-shot automatic fit has happened.
type FitState int

const (
	NeverFitted FitState = iota
	Fitted
)

func (f FitState) String() string {
	if f == Fitted {
		return "fitted"
	}
	return "never_fitted"
}

// MarshalText implements encoding.TextMarshaler.
func (f FitState) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FitState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "never_fitted":
		*f = NeverFitted
	case "fitted":
		*f = Fitted
	default:
		return fmt.Errorf("unknown fit state %q", b)
	}
	return nil
}

// Mouse buttons, numbered like DOM MouseEvent.button.
const (
	ButtonLeft   = 0
	ButtonMiddle = 1
	ButtonRight  = 2
)

// DocumentHandler receives document-level pointer events while a drag is
// in progress.
type DocumentHandler interface {
	MouseMove(x, y float64)
	MouseUp(x, y float64)
}

// ListenerRegistry attaches document-level pointer handlers. The returned
// function detaches them and must be safe to call more than once.
type ListenerRegistry interface {
	Subscribe(h DocumentHandler) (unsubscribe func())
}

// Option configures a Controller.
type Option func(*Controller)

// WithIssueClick sets the callback invoked with the id of a clicked node.
func WithIssueClick(fn func(issueID string)) Option {
	return func(c *Controller) { c.onIssueClick = fn }
}

// WithListenerRegistry sets where document-level drag listeners are
// attached.
func WithListenerRegistry(r ListenerRegistry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithDragThreshold sets the click-suppression distance. Zero disables
// suppression.
func WithDragThreshold(px float64) Option {
	return func(c *Controller) { c.dragThreshold = px }
}

// Controller owns the viewport of one graph view.
type Controller struct {
	state State
	drag  DragState
	mode  Mode
	fit   FitState

	layout        *graph.Layout
	width, height float64

	registry     ListenerRegistry
	unsubscribe  func()
	onIssueClick func(string)

	dragThreshold float64
	dragDistance  float64
	suppressClick bool
}

// New returns a controller at zoom 1 with no pan.
func New(opts ...Option) *Controller {
	c := &Controller{
		state:         State{Zoom: 1},
		dragThreshold: DefaultDragThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current transform.
func (c *Controller) State() State { return c.state }

// Mode returns Idle or Panning.
func (c *Controller) Mode() Mode { return c.mode }

// Drag returns the in-progress drag, zero when idle.
func (c *Controller) Drag() DragState { return c.drag }

// FitState reports whether the automatic fit has run.
func (c *Controller) FitState() FitState { return c.fit }

// Layout returns the layout currently shown.
func (c *Controller) Layout() *graph.Layout { return c.layout }

// Size returns the container size.
func (c *Controller) Size() (width, height float64) { return c.width, c.height }

// SetState replaces the transform, clamping the zoom.
func (c *Controller) SetState(s State) {
	s.Zoom = graph.Clamp(s.Zoom, MinZoom, MaxZoom)
	c.state = s
}

// Resize records the container's rendered size. A pending automatic fit
// runs once both a size and a non-empty layout are known.
func (c *Controller) Resize(width, height float64) {
	c.width, c.height = width, height
	c.maybeAutoFit()
}

// SetLayout replaces the layout. The first non-empty layout triggers the
// automatic fit; later layouts leave the user's pan and zoom alone.
func (c *Controller) SetLayout(l *graph.Layout) {
	c.layout = l
	c.maybeAutoFit()
}

// ResetAutoFit re-arms the automatic fit.
func (c *Controller) ResetAutoFit() {
	c.fit = NeverFitted
	c.maybeAutoFit()
}

func (c *Controller) maybeAutoFit() {
	if c.fit == Fitted {
		return
	}
	if c.FitToView() {
		c.fit = Fitted
	}
}

// FitToView scales and centres the whole graph inside the container with
// FitMargin pixels of margin. It reports false, leaving the state alone,
// when there is no layout or no container size yet.
func (c *Controller) FitToView() bool {
	if c.layout.Empty() || c.width <= 0 || c.height <= 0 {
		return false
	}
	t := graph.FitTransform(c.layout.Width, c.layout.Height, c.width, c.height, FitMargin, MinZoom, MaxFitScale)
	c.state = State{
		Zoom: graph.Clamp(t.Scale, MinZoom, MaxZoom),
		PanX: t.TranslateX,
		PanY: t.TranslateY,
	}
	return true
}

// Wheel zooms toward the cursor at (x, y): 1.1x for deltaY < 0, 0.9x for
// deltaY > 0. It always reports that the page scroll must be prevented.
// The second result is false when the zoom did not change.
func (c *Controller) Wheel(x, y, deltaY float64) (preventDefault, changed bool) {
	c.suppressClick = false
	switch {
	case deltaY < 0:
		return true, c.zoomAround(x, y, c.state.Zoom*WheelZoomIn)
	case deltaY > 0:
		return true, c.zoomAround(x, y, c.state.Zoom*WheelZoomOut)
	}
	return true, false
}

// ZoomIn zooms toward the container centre by ButtonZoomStep.
func (c *Controller) ZoomIn() bool {
	return c.zoomAround(c.width/2, c.height/2, c.state.Zoom*ButtonZoomStep)
}

// ZoomOut zooms away from the container centre by ButtonZoomStep.
func (c *Controller) ZoomOut() bool {
	return c.zoomAround(c.width/2, c.height/2, c.state.Zoom/ButtonZoomStep)
}

// zoomAround changes the zoom so that the screen point (x, y) stays over
// the same graph-space point.
func (c *Controller) zoomAround(x, y, target float64) bool {
	old := c.state.Zoom
	next := graph.Clamp(target, MinZoom, MaxZoom)
	if next == old {
		return false
	}
	ratio := next / old
	c.state = State{
		Zoom: next,
		PanX: x - (x-c.state.PanX)*ratio,
		PanY: y - (y-c.state.PanY)*ratio,
	}
	return true
}

// MouseDown starts a pan when the left button goes down on the background.
// onNode is the caller's own hit result (for example a DOM ancestor
// lookup); the controller additionally hit-tests the layout. It reports
// whether a pan started.
func (c *Controller) MouseDown(x, y float64, button int, onNode bool) bool {
	c.suppressClick = false
	if button != ButtonLeft || c.mode == Panning {
		return false
	}
	if onNode {
		return false
	}
	if _, hit := c.NodeAtScreen(x, y); hit {
		return false
	}

	c.mode = Panning
	c.dragDistance = 0
	c.drag = DragState{
		IsDragging: true,
		DragStartX: x,
		DragStartY: y,
		PanStartX:  c.state.PanX,
		PanStartY:  c.state.PanY,
	}
	if c.registry != nil {
		c.unsubscribe = c.registry.Subscribe(c)
	}
	return true
}

// MouseMove pans by the distance from the drag start. It is a no-op while
// idle.
func (c *Controller) MouseMove(x, y float64) {
	if c.mode != Panning {
		return
	}
	dx := x - c.drag.DragStartX
	dy := y - c.drag.DragStartY
	c.state.PanX = c.drag.PanStartX + dx
	c.state.PanY = c.drag.PanStartY + dy
	c.dragDistance = math.Max(c.dragDistance, math.Hypot(dx, dy))
}

// MouseUp ends a pan wherever the pointer is.
func (c *Controller) MouseUp(x, y float64) {
	if c.mode != Panning {
		return
	}
	c.MouseMove(x, y)
	if c.dragThreshold > 0 && c.dragDistance > c.dragThreshold {
		c.suppressClick = true
	}
	c.endDrag()
}

func (c *Controller) endDrag() {
	c.mode = Idle
	c.drag = DragState{}
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
}

// ClickNode forwards a node click to the issue-click callback. Clicks
// during a pan, and the first click after a pan that moved further than
// the drag threshold, are swallowed. It reports whether the callback ran.
func (c *Controller) ClickNode(issueID string) bool {
	if c.suppressClick {
		c.suppressClick = false
		return false
	}
	if c.mode == Panning || issueID == "" {
		return false
	}
	if c.onIssueClick != nil {
		c.onIssueClick(issueID)
	}
	return true
}

// Close detaches any document listeners and abandons an active drag.
func (c *Controller) Close() {
	if c.mode == Panning {
		c.endDrag()
	}
}

// NodeAtScreen returns the node under a container-relative point.
func (c *Controller) NodeAtScreen(x, y float64) (string, bool) {
	if c.layout.Empty() {
		return "", false
	}
	return c.layout.NodeAt(c.ScreenToGraph(x, y))
}

// ScreenToGraph maps a container-relative point to graph-space.
func (c *Controller) ScreenToGraph(x, y float64) graph.Point {
	return graph.Point{
		X: (x - c.state.PanX) / c.state.Zoom,
		Y: (y - c.state.PanY) / c.state.Zoom,
	}
}

// GraphToScreen maps a graph-space point to container pixels.
func (c *Controller) GraphToScreen(p graph.Point) graph.Point {
	return graph.Point{
		X: p.X*c.state.Zoom + c.state.PanX,
		Y: p.Y*c.state.Zoom + c.state.PanY,
	}
}

// Snapshot is a copy of everything a client needs to redraw the viewport.
type Snapshot struct {
	State  State     `json:"state"`
	Mode   Mode      `json:"mode"`
	Fit    FitState  `json:"fit"`
	Drag   DragState `json:"drag"`
	Width  float64   `json:"width"`
	Height float64   `json:"height"`
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		State:  c.state,
		Mode:   c.mode,
		Fit:    c.fit,
		Drag:   c.drag,
		Width:  c.width,
		Height: c.height,
	}
}
