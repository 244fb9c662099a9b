package render

import "github.com/alfredjeanlab/beadgraph/internal/model"

// StatusColors returns the fill and stroke used for a node in the given
// status.
func StatusColors(s model.Status) (fill, stroke string) {
	switch s {
	case model.StatusOpen:
		return "#eff6ff", "#3b82f6"
	case model.StatusInProgress:
		return "#fefce8", "#ca8a04"
	case model.StatusBlocked:
		return "#fef2f2", "#ef4444"
	case model.StatusDeferred:
		return "#f5f3ff", "#8b5cf6"
	case model.StatusClosed:
		return "#f3f4f6", "#9ca3af"
	}
	return "#ffffff", "#6b7280"
}

// TypeColor returns the background of a type badge.
func TypeColor(t model.BeadType) string {
	switch t {
	case model.TypeBug:
		return "#dc2626"
	case model.TypeEpic:
		return "#7c3aed"
	case model.TypeFeature:
		return "#16a34a"
	case model.TypeTask:
		return "#2563eb"
	case model.TypeChore:
		return "#64748b"
	}
	return "#475569"
}

// PriorityColor returns the text colour of a priority badge. P0 is the most
// urgent.
func PriorityColor(p int) string {
	switch p {
	case 0:
		return "#dc2626"
	case 1:
		return "#ea580c"
	case 2:
		return "#ca8a04"
	case 3:
		return "#2563eb"
	}
	return "#6b7280"
}
