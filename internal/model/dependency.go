package model

// DependencyType names the kind of link between two beads. Only blocking
// links are drawn as graph edges; the other kinds are carried through so
// filters and exports can see them.
type DependencyType string

const (
	DepBlocks      DependencyType = "blocks"
	DepParentChild DependencyType = "parent-child"
	DepRelated     DependencyType = "related"
	DepDuplicates  DependencyType = "duplicates"
	DepSupersedes  DependencyType = "supersedes"
)

// Blocking reports whether the link orders work. The beads server stores
// untyped dependencies as blocks.
func (d DependencyType) Blocking() bool {
	return d == "" || d == DepBlocks
}

// Dependency records that BeadID depends on DependsOnID.
type Dependency struct {
	BeadID      string         `json:"bead_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"type"`
}

// Edge returns the dependency as a graph edge, dependent bead first.
func (d *Dependency) Edge() *GraphEdge {
	t := d.Type
	if t == "" {
		t = DepBlocks
	}
	return &GraphEdge{Source: d.BeadID, Target: d.DependsOnID, Type: string(t)}
}
