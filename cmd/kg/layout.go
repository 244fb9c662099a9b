package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/beadgraph/internal/graph"
	"github.com/alfredjeanlab/beadgraph/internal/model"
	"github.com/alfredjeanlab/beadgraph/internal/render"
	"github.com/alfredjeanlab/beadgraph/internal/ui"
	"github.com/alfredjeanlab/beadgraph/internal/viewer"
)

var layoutCmd = &cobra.Command{
	Use:     "layout",
	Short:   "Print node positions of the laid out graph",
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			data, err := json.MarshalIndent(snap.Layout, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		printLayoutTable(os.Stdout, snap)
		return nil
	},
}

// layoutRow is one node of the layout table.
type layoutRow struct {
	id  string
	pos graph.Point
	b   *model.Bead
}

// layoutRows orders nodes top to bottom, then left to right.
func layoutRows(snap *viewer.Snapshot) []layoutRow {
	beads := make(map[string]*model.Bead)
	for _, b := range snap.Issues() {
		beads[b.ID] = b
	}
	var rows []layoutRow
	for _, id := range snap.Layout.Order() {
		pos, _ := snap.Layout.NodePosition(id)
		rows = append(rows, layoutRow{id: id, pos: pos, b: beads[id]})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].pos.Y != rows[j].pos.Y {
			return rows[i].pos.Y < rows[j].pos.Y
		}
		return rows[i].pos.X < rows[j].pos.X
	})
	return rows
}

func printLayoutTable(out io.Writer, snap *viewer.Snapshot) {
	if snap.Layout.Empty() {
		fmt.Fprintln(out, render.EmptyMessage)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tX\tY\tSTATUS\tPRI\tTITLE")
	for _, r := range layoutRows(snap) {
		status, pri, title := "", "", ""
		if r.b != nil {
			status = ui.RenderStatus(r.b.Status)
			pri = ui.RenderPriority(r.b.Priority)
			title = render.Truncate(r.b.Title, 50)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ui.RenderAccent(r.id), graph.FormatCoord(r.pos.X), graph.FormatCoord(r.pos.Y), status, pri, title)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d issues, %d edges, %sx%s\n",
		len(snap.Layout.Nodes), len(snap.Layout.Edges),
		graph.FormatCoord(snap.Layout.Width), graph.FormatCoord(snap.Layout.Height))
}
