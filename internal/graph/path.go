package graph

import (
	"math"
	"strconv"
	"strings"
)

// EdgePath joins polyline points into an SVG path string
// ("M x,y L x,y ..."). Fewer than two points yield an empty path.
func EdgePath(points []Point) string {
	if len(points) < 2 {
		return ""
	}
	var b strings.Builder
	for i, p := range points {
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(FormatCoord(p.X))
		b.WriteByte(',')
		b.WriteString(FormatCoord(p.Y))
	}
	return b.String()
}

// ScalePoints returns a copy of points multiplied by zoom.
func ScalePoints(points []Point, zoom float64) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{X: p.X * zoom, Y: p.Y * zoom}
	}
	return out
}

// FormatCoord prints a coordinate with at most two decimals.
func FormatCoord(v float64) string {
	v = math.Round(v*100) / 100
	if v == 0 {
		v = 0 // normalise -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
