package graph

// Transform is a uniform scale followed by a translation, mapping
// graph-space to viewport pixels: screen = point*Scale + Translate.
type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
}

// FitTransform picks the largest scale that fits a contentW x contentH
// graph inside a viewportW x viewportH viewport with margin pixels on every
// side, clamps it to [minScale, maxScale], and centres the scaled content.
//
// Degenerate sizes (empty content, viewport smaller than its margins) fall
// back to maxScale clamped to bounds, still centred.
func FitTransform(contentW, contentH, viewportW, viewportH, margin, minScale, maxScale float64) Transform {
	availW := viewportW - 2*margin
	availH := viewportH - 2*margin

	scale := maxScale
	if contentW > 0 && contentH > 0 && availW > 0 && availH > 0 {
		scale = min(availW/contentW, availH/contentH)
	}
	scale = Clamp(scale, minScale, maxScale)

	return Transform{
		Scale:      scale,
		TranslateX: (viewportW - contentW*scale) / 2,
		TranslateY: (viewportH - contentH*scale) / 2,
	}
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
