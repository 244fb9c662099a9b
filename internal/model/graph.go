package model

// GraphEdge is a dependency as the beads server reports it on GET /v1/graph:
// Source is the dependent bead, Target the bead it depends on.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// GraphStats holds aggregate bead counts by status.
type GraphStats struct {
	TotalOpen       int `json:"total_open"`
	TotalInProgress int `json:"total_in_progress"`
	TotalBlocked    int `json:"total_blocked"`
	TotalClosed     int `json:"total_closed"`
	TotalDeferred   int `json:"total_deferred"`
}

// GraphResponse is the response of the beads server's graph endpoint.
type GraphResponse struct {
	Nodes []*Bead      `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
	Stats *GraphStats  `json:"stats,omitempty"`
}

// Relation is a directed "blocks" relation: Source blocks Target.
type Relation struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// BlockingRelations converts the server's dependency edges into blocking
// relations. An edge with an empty type is treated as "blocks", matching the
// server's default. Duplicates and self-references are kept as-is.
func (g *GraphResponse) BlockingRelations() []Relation {
	if g == nil {
		return nil
	}
	rels := make([]Relation, 0, len(g.Edges))
	for _, e := range g.Edges {
		if e == nil {
			continue
		}
		if !DependencyType(e.Type).Blocking() {
			continue
		}
		rels = append(rels, Relation{Source: e.Target, Target: e.Source})
	}
	return rels
}

// ComputeStats counts nodes by status.
func ComputeStats(beads []*Bead) *GraphStats {
	stats := &GraphStats{}
	for _, b := range beads {
		switch b.Status {
		case StatusOpen:
			stats.TotalOpen++
		case StatusInProgress:
			stats.TotalInProgress++
		case StatusBlocked:
			stats.TotalBlocked++
		case StatusClosed:
			stats.TotalClosed++
		case StatusDeferred:
			stats.TotalDeferred++
		}
	}
	return stats
}
