// Package ui styles kg's terminal output.
package ui

import (
	"fmt"

	"github.com/alfredjeanlab/beadgraph/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent  = 74  // blue
	colorCmd     = 250 // light gray
	colorMuted   = 245 // medium gray
	colorOpen    = 39  // bright blue
	colorWorking = 214 // amber
	colorBlocked = 203 // red
	colorDefer   = 141 // violet
	colorUrgent  = 196
	colorHigh    = 208
)

var noColor bool

func paint(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderStatus colours a status name the way the graph colours its nodes.
func RenderStatus(s model.Status) string {
	switch s {
	case model.StatusOpen:
		return paint(colorOpen, s.String())
	case model.StatusInProgress:
		return paint(colorWorking, s.String())
	case model.StatusBlocked:
		return paint(colorBlocked, s.String())
	case model.StatusDeferred:
		return paint(colorDefer, s.String())
	case model.StatusClosed:
		return paint(colorMuted, s.String())
	}
	return s.String()
}

// RenderPriority formats p as "P0".."P4"; P0 and P1 stand out.
func RenderPriority(p int) string {
	label := fmt.Sprintf("P%d", p)
	switch p {
	case 0:
		return paint(colorUrgent, label)
	case 1:
		return paint(colorHigh, label)
	}
	return label
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}

// SetColor enables or disables color output globally.
func SetColor(on bool) {
	noColor = !on
}
