// Package model holds the beads records the graph viewer consumes. The
// shapes mirror the beads server's JSON API; the viewer never writes them.
package model

import "time"

// BeadType categorizes the kind of bead.
// Bead types are extensible; the constants below are the issue types that
// get a dedicated badge in the rendered graph.
type BeadType string

const (
	TypeEpic    BeadType = "epic"
	TypeTask    BeadType = "task"
	TypeFeature BeadType = "feature"
	TypeChore   BeadType = "chore"
	TypeBug     BeadType = "bug"
)

// String returns the string representation of the bead type.
func (t BeadType) String() string {
	return string(t)
}

// Badge returns the short label drawn in a node's type badge.
// Unknown types fall back to their first letter, upper-cased.
func (t BeadType) Badge() string {
	switch t {
	case TypeEpic:
		return "EPIC"
	case TypeTask:
		return "TASK"
	case TypeFeature:
		return "FEAT"
	case TypeChore:
		return "CHORE"
	case TypeBug:
		return "BUG"
	}
	if t == "" {
		return ""
	}
	b := []byte(t[:1])
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

// Status represents the current state of a bead.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
	StatusBlocked    Status = "blocked"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// IsValid checks whether the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusDeferred, StatusClosed, StatusBlocked:
		return true
	}
	return false
}

// Bead is the subset of the beads work-item record the graph viewer uses.
type Bead struct {
	ID        string    `json:"id"`
	Type      BeadType  `json:"type"`
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Priority  int       `json:"priority"`
	Assignee  string    `json:"assignee,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relational data -- populated by the server's graph query.
	Labels       []string      `json:"labels,omitempty"`
	Dependencies []*Dependency `json:"dependencies,omitempty"`
}
