package postgres

import (
	"database/sql"

	"github.com/alfredjeanlab/beadgraph/internal/model"
)

// scannable is satisfied by *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanBead reads one row laid out as beadColumns. Only the fields drawn on
// a graph node are selected.
func scanBead(row scannable) (*model.Bead, error) {
	var (
		b        model.Bead
		assignee sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Type, &b.Title, &b.Status, &b.Priority, &assignee, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Assignee = assignee.String
	return &b, nil
}

// scanDependency reads a (bead_id, depends_on_id, type) row. A NULL type
// is left empty and later read as blocks.
func scanDependency(row scannable) (*model.Dependency, error) {
	var (
		d   model.Dependency
		typ sql.NullString
	)
	if err := row.Scan(&d.BeadID, &d.DependsOnID, &typ); err != nil {
		return nil, err
	}
	d.Type = model.DependencyType(typ.String)
	return &d, nil
}
