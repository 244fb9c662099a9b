package viewport

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_SubscribeUnsubscribe(t *testing.T) {
	d := NewDocument()
	c := New()
	unsub := d.Subscribe(c)
	assert.Equal(t, 1, d.Listeners())
	unsub()
	unsub()
	assert.Equal(t, 0, d.Listeners())
}

func TestRouter_DragAttachesListenersOnlyWhilePanning(t *testing.T) {
	r := NewRouter()
	r.Controller().SetLayout(chain())
	doc := r.Document()

	// Moves with no drag in progress reach nobody.
	_, err := r.Handle(Event{Type: EventMouseMove, X: 500, Y: 500})
	require.NoError(t, err)
	assert.Equal(t, State{Zoom: 1}, r.Controller().State())
	assert.Equal(t, 0, doc.Listeners())

	res, err := r.Handle(Event{Type: EventMouseDown, X: 400, Y: 400})
	require.NoError(t, err)
	assert.Equal(t, Panning, res.Mode)
	assert.Equal(t, 1, doc.Listeners())

	res, err = r.Handle(Event{Type: EventMouseMove, X: 430, Y: 390})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, State{Zoom: 1, PanX: 30, PanY: -10}, res.State)

	res, err = r.Handle(Event{Type: EventMouseUp, X: 450, Y: 420})
	require.NoError(t, err)
	assert.Equal(t, Idle, res.Mode)
	assert.Equal(t, State{Zoom: 1, PanX: 50, PanY: 20}, res.State)
	assert.Equal(t, 0, doc.Listeners())
}

func TestRouter_MouseDownOnNodeAttachesNothing(t *testing.T) {
	r := NewRouter()
	r.Controller().SetLayout(chain())

	res, err := r.Handle(Event{Type: EventMouseDown, X: 50, Y: 50})
	require.NoError(t, err)
	assert.Equal(t, Idle, res.Mode)
	assert.Equal(t, 0, r.Document().Listeners())

	res, err = r.Handle(Event{Type: EventMouseDown, X: 600, Y: 600, NodeID: "C"})
	require.NoError(t, err)
	assert.Equal(t, Idle, res.Mode)
	assert.False(t, res.Changed)
}

func TestRouter_CloseDetachesListeners(t *testing.T) {
	r := NewRouter()
	_, err := r.Handle(Event{Type: EventMouseDown, X: 1, Y: 1})
	require.NoError(t, err)
	require.Equal(t, 1, r.Document().Listeners())

	r.Close()
	assert.Equal(t, 0, r.Document().Listeners())
	assert.Equal(t, Idle, r.Controller().Mode())
}

func TestRouter_Wheel(t *testing.T) {
	r := NewRouter()
	res, err := r.Handle(Event{Type: EventWheel, X: 100, Y: 100, DeltaY: -120})
	require.NoError(t, err)
	assert.True(t, res.PreventDefault)
	assert.True(t, res.Changed)
	assert.InDelta(t, 1.1, res.State.Zoom, 1e-12)
}

func TestRouter_Click(t *testing.T) {
	var got []string
	r := NewRouter(WithIssueClick(func(id string) { got = append(got, id) }))
	r.Controller().SetLayout(chain())

	res, err := r.Handle(Event{Type: EventClick, X: 30, Y: 180})
	require.NoError(t, err)
	assert.Equal(t, "B", res.Clicked)

	res, err = r.Handle(Event{Type: EventClick, NodeID: "C"})
	require.NoError(t, err)
	assert.Equal(t, "C", res.Clicked)

	res, err = r.Handle(Event{Type: EventClick, X: 700, Y: 10})
	require.NoError(t, err)
	assert.Empty(t, res.Clicked, "background click")

	assert.Equal(t, []string{"B", "C"}, got)
}

func TestRouter_ResizeAndFit(t *testing.T) {
	r := NewRouter()
	r.Controller().SetLayout(chain())

	res, err := r.Handle(Event{Type: EventResize, Width: 800, Height: 600})
	require.NoError(t, err)
	assert.Equal(t, Fitted, res.Fit)
	assert.Equal(t, State{Zoom: 1, PanX: 270, PanY: 92}, res.State)

	_, err = r.Handle(Event{Type: EventZoomIn})
	require.NoError(t, err)
	res, err = r.Handle(Event{Type: EventFit})
	require.NoError(t, err)
	assert.Equal(t, State{Zoom: 1, PanX: 270, PanY: 92}, res.State)

	res, err = r.Handle(Event{Type: EventZoomOut})
	require.NoError(t, err)
	assert.InDelta(t, 1/ButtonZoomStep, res.State.Zoom, 1e-12)

	_, err = r.Handle(Event{Type: EventResize, Width: -1, Height: 10})
	assert.Error(t, err)
}

func TestRouter_UnknownEvent(t *testing.T) {
	r := NewRouter()
	_, err := r.Handle(Event{Type: "pinch"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEvent))
}
