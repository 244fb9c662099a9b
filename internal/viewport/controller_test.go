package viewport

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredjeanlab/beadgraph/internal/graph"
)

// chain lays out A -> B -> C with default sizes: A at (20,20), B at
// (20,172), C at (20,324), bounding box 260x416.
func chain() *graph.Layout {
	return graph.ComputeLayout(
		[]graph.Node{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		[]graph.Edge{{Source: "A", Target: "B"}, {Source: "B", Target: "C"}},
	)
}

func TestNew(t *testing.T) {
	c := New()
	assert.Equal(t, State{Zoom: 1}, c.State())
	assert.Equal(t, Idle, c.Mode())
	assert.Equal(t, NeverFitted, c.FitState())
	assert.False(t, c.Drag().IsDragging)
}

func TestWheel_Factors(t *testing.T) {
	c := New()
	prevent, changed := c.Wheel(0, 0, -100)
	assert.True(t, prevent)
	assert.True(t, changed)
	assert.InDelta(t, 1.1, c.State().Zoom, 1e-12)

	c = New()
	c.Wheel(0, 0, 3)
	assert.InDelta(t, 0.9, c.State().Zoom, 1e-12)

	c = New()
	prevent, changed = c.Wheel(10, 10, 0)
	assert.True(t, prevent, "scroll is always prevented")
	assert.False(t, changed)
	assert.Equal(t, State{Zoom: 1}, c.State())
}

func TestWheel_ZoomStaysInBounds(t *testing.T) {
	c := New()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		delta := -1.0
		if rng.Intn(2) == 0 {
			delta = 1
		}
		c.Wheel(rng.Float64()*800, rng.Float64()*600, delta)
		z := c.State().Zoom
		require.GreaterOrEqual(t, z, MinZoom)
		require.LessOrEqual(t, z, MaxZoom)
	}
}

func TestWheel_NoOpAtBound(t *testing.T) {
	c := New()
	for i := 0; i < 50; i++ {
		c.Wheel(100, 100, -1)
	}
	assert.Equal(t, MaxZoom, c.State().Zoom)

	before := c.State()
	_, changed := c.Wheel(300, 250, -1)
	assert.False(t, changed)
	assert.Equal(t, before, c.State(), "pan must not move when zoom is pinned")

	for i := 0; i < 50; i++ {
		c.Wheel(100, 100, 1)
	}
	assert.Equal(t, MinZoom, c.State().Zoom)
}

func TestWheel_PointUnderCursorStaysFixed(t *testing.T) {
	for _, tc := range []struct {
		name   string
		start  State
		x, y   float64
		deltaY float64
	}{
		{"ZoomIn", State{Zoom: 1.3, PanX: 40, PanY: -25}, 321, 187, -1},
		{"ZoomOut", State{Zoom: 0.7, PanX: -120, PanY: 33}, 12, 590, 1},
		{"AtOrigin", State{Zoom: 1}, 0, 0, -1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			c.SetState(tc.start)
			under := c.ScreenToGraph(tc.x, tc.y)

			_, changed := c.Wheel(tc.x, tc.y, tc.deltaY)
			require.True(t, changed)

			got := c.GraphToScreen(under)
			assert.InDelta(t, tc.x, got.X, 1e-9)
			assert.InDelta(t, tc.y, got.Y, 1e-9)
		})
	}
}

func TestZoomButtons_TowardCentre(t *testing.T) {
	c := New()
	c.Resize(800, 600)

	require.True(t, c.ZoomIn())
	s := c.State()
	assert.InDelta(t, 1.2, s.Zoom, 1e-12)
	assert.InDelta(t, -80, s.PanX, 1e-9)
	assert.InDelta(t, -60, s.PanY, 1e-9)

	require.True(t, c.ZoomOut())
	s = c.State()
	assert.InDelta(t, 1, s.Zoom, 1e-12)
	assert.InDelta(t, 0, s.PanX, 1e-9)
	assert.InDelta(t, 0, s.PanY, 1e-9)
}

func TestPan_AbsoluteFromDragStart(t *testing.T) {
	for _, tc := range []struct {
		name  string
		moves [][2]float64
	}{
		{"NoMoves", nil},
		{"OneMove", [][2]float64{{130, 90}}},
		{"ManyMoves", [][2]float64{{101, 100}, {400, -50}, {-20, 700}, {159, 71}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := New()
			c.SetState(State{Zoom: 1, PanX: 15, PanY: -5})

			require.True(t, c.MouseDown(100, 100, ButtonLeft, false))
			assert.Equal(t, Panning, c.Mode())
			assert.Equal(t, DragState{IsDragging: true, DragStartX: 100, DragStartY: 100, PanStartX: 15, PanStartY: -5}, c.Drag())

			for _, m := range tc.moves {
				c.MouseMove(m[0], m[1])
			}
			c.MouseUp(160, 70)

			assert.Equal(t, Idle, c.Mode())
			assert.Equal(t, DragState{}, c.Drag())
			assert.InDelta(t, 15+60, c.State().PanX, 1e-9)
			assert.InDelta(t, -5-30, c.State().PanY, 1e-9)
		})
	}
}

func TestMouseMove_IgnoredWhenIdle(t *testing.T) {
	c := New()
	c.MouseMove(500, 500)
	c.MouseUp(10, 10)
	assert.Equal(t, State{Zoom: 1}, c.State())
}

func TestMouseDown_OnNodeDoesNotPan(t *testing.T) {
	c := New()
	c.SetLayout(chain())

	// (50, 50) is inside node A at zoom 1, pan 0.
	assert.False(t, c.MouseDown(50, 50, ButtonLeft, false))
	assert.Equal(t, Idle, c.Mode())
	c.MouseMove(400, 400)
	assert.Equal(t, State{Zoom: 1}, c.State())

	// The caller's own hit result is honoured on background coordinates too.
	assert.False(t, c.MouseDown(600, 50, ButtonLeft, true))
	c.MouseMove(700, 80)
	assert.Equal(t, State{Zoom: 1}, c.State())
}

func TestMouseDown_HitTestFollowsTransform(t *testing.T) {
	c := New()
	c.SetLayout(chain())
	c.SetState(State{Zoom: 0.5, PanX: 100, PanY: 0})

	// Node A covers screen x in [110, 220] and y in [10, 46].
	assert.False(t, c.MouseDown(150, 20, ButtonLeft, false))
	assert.True(t, c.MouseDown(50, 20, ButtonLeft, false))
}

func TestMouseDown_OtherButtons(t *testing.T) {
	c := New()
	assert.False(t, c.MouseDown(0, 0, ButtonRight, false))
	assert.False(t, c.MouseDown(0, 0, ButtonMiddle, false))
	assert.Equal(t, Idle, c.Mode())
}

func TestFitToView_Example(t *testing.T) {
	// A single 400x300 box with no margin gives a 400x300 layout.
	l := graph.ComputeLayout(
		[]graph.Node{{ID: "A", Width: 400, Height: 300}},
		nil,
		graph.WithMargin(0),
	)
	require.InDelta(t, 400, l.Width, 1e-9)
	require.InDelta(t, 300, l.Height, 1e-9)

	c := New()
	c.SetLayout(l)
	c.Resize(800, 600)
	require.True(t, c.FitToView())

	s := c.State()
	assert.LessOrEqual(t, s.Zoom, MaxFitScale)
	assert.InDelta(t, 1, s.Zoom, 1e-12)
	assert.InDelta(t, 200, s.PanX, 1e-9)
	assert.InDelta(t, 150, s.PanY, 1e-9)

	// The fitted box sits inside the margins.
	topLeft := c.GraphToScreen(graph.Point{})
	bottomRight := c.GraphToScreen(graph.Point{X: l.Width, Y: l.Height})
	assert.GreaterOrEqual(t, topLeft.X, FitMargin)
	assert.GreaterOrEqual(t, topLeft.Y, FitMargin)
	assert.LessOrEqual(t, bottomRight.X, 800-FitMargin)
	assert.LessOrEqual(t, bottomRight.Y, 600-FitMargin)
}

func TestFitToView_Idempotent(t *testing.T) {
	c := New()
	c.SetLayout(chain())
	c.Resize(800, 600)
	c.Wheel(10, 10, -1)
	c.MouseDown(700, 500, ButtonLeft, false)
	c.MouseUp(650, 480)

	require.True(t, c.FitToView())
	first := c.State()
	require.True(t, c.FitToView())
	assert.Equal(t, first, c.State())
}

func TestFitToView_NeedsLayoutAndSize(t *testing.T) {
	c := New()
	assert.False(t, c.FitToView())

	c.Resize(800, 600)
	assert.False(t, c.FitToView())

	c.SetLayout(graph.ComputeLayout(nil, nil))
	assert.False(t, c.FitToView())
	assert.Equal(t, NeverFitted, c.FitState())
	assert.Equal(t, State{Zoom: 1}, c.State())
}

func TestAutoFit_Once(t *testing.T) {
	l := chain()
	c := New()

	c.SetLayout(l)
	assert.Equal(t, NeverFitted, c.FitState(), "no container size yet")

	c.Resize(800, 600)
	require.Equal(t, Fitted, c.FitState())
	assert.Equal(t, State{Zoom: 1, PanX: 270, PanY: 92}, c.State())

	c.Wheel(400, 300, 1)
	c.MouseDown(10, 10, ButtonLeft, false)
	c.MouseUp(40, 25)
	adjusted := c.State()

	c.SetLayout(l)
	assert.Equal(t, adjusted, c.State())
	c.SetLayout(chain())
	assert.Equal(t, adjusted, c.State())
	c.Resize(1024, 768)
	assert.Equal(t, adjusted, c.State())

	c.ResetAutoFit()
	assert.Equal(t, Fitted, c.FitState())
	assert.NotEqual(t, adjusted, c.State())
}

func TestSetState_ClampsZoom(t *testing.T) {
	c := New()
	c.SetState(State{Zoom: 10, PanX: 1, PanY: 2})
	assert.Equal(t, State{Zoom: MaxZoom, PanX: 1, PanY: 2}, c.State())
	c.SetState(State{Zoom: 0})
	assert.Equal(t, MinZoom, c.State().Zoom)
}

func TestClickNode(t *testing.T) {
	var clicked []string
	c := New(WithIssueClick(func(id string) { clicked = append(clicked, id) }))
	c.SetLayout(chain())

	assert.True(t, c.ClickNode("B"))
	assert.False(t, c.ClickNode(""))
	assert.Equal(t, []string{"B"}, clicked)
}

func TestClickNode_NoCallback(t *testing.T) {
	c := New()
	assert.True(t, c.ClickNode("A"))
}

func TestClickNode_SuppressedAfterDrag(t *testing.T) {
	var clicked []string
	c := New(WithIssueClick(func(id string) { clicked = append(clicked, id) }))
	c.SetLayout(chain())

	require.True(t, c.MouseDown(400, 400, ButtonLeft, false))
	assert.False(t, c.ClickNode("A"), "no clicks while panning")
	c.MouseMove(420, 400)
	c.MouseUp(20, 50)

	assert.False(t, c.ClickNode("A"), "release after a real drag is not a click")
	assert.True(t, c.ClickNode("A"), "suppression only covers one click")
	assert.Equal(t, []string{"A"}, clicked)
}

func TestClickNode_SmallJitterStillClicks(t *testing.T) {
	c := New()
	require.True(t, c.MouseDown(400, 400, ButtonLeft, false))
	c.MouseUp(402, 401)
	assert.True(t, c.ClickNode("A"))
}

func TestClickNode_SuppressionClearedByNextGesture(t *testing.T) {
	c := New()
	c.MouseDown(400, 400, ButtonLeft, false)
	c.MouseUp(500, 400)

	// A fresh press on a node starts a new gesture.
	c.MouseDown(50, 50, ButtonLeft, true)
	assert.True(t, c.ClickNode("A"))
}

func TestClickNode_ThresholdDisabled(t *testing.T) {
	c := New(WithDragThreshold(0))
	c.MouseDown(400, 400, ButtonLeft, false)
	c.MouseUp(900, 400)
	assert.True(t, c.ClickNode("A"))
}

func TestScreenGraphRoundTrip(t *testing.T) {
	c := New()
	c.SetState(State{Zoom: 0.8, PanX: -33, PanY: 71})
	p := graph.Point{X: 123.5, Y: -7}
	s := c.GraphToScreen(p)
	assert.InDelta(t, 123.5*0.8-33, s.X, 1e-9)
	back := c.ScreenToGraph(s.X, s.Y)
	assert.InDelta(t, p.X, back.X, 1e-9)
	assert.InDelta(t, p.Y, back.Y, 1e-9)
}

func TestSnapshot_JSON(t *testing.T) {
	c := New()
	c.Resize(800, 600)
	c.SetLayout(chain())
	require.True(t, c.MouseDown(400, 500, ButtonLeft, false))

	data, err := json.Marshal(c.Snapshot())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode":"panning"`)
	assert.Contains(t, string(data), `"fit":"fitted"`)

	var back Snapshot
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c.Snapshot(), back)

	var m Mode
	assert.Error(t, m.UnmarshalText([]byte("zooming")))
}
