package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alfredjeanlab/beadgraph/internal/render"
	"github.com/alfredjeanlab/beadgraph/internal/viewer"
)

var (
	renderFormat string
	renderOutput string
	renderWidth  float64
	renderHeight float64
	renderTitle  string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render the dependency graph as SVG, HTML, JSON or YAML",
	Long: `Load the graph once, lay it out and write it fitted to the canvas.

The format defaults to the output file's extension, or svg.`,
	GroupID: "views",
	RunE: func(cmd *cobra.Command, args []string) error {
		format := renderFormat
		if format == "" {
			format = strings.TrimPrefix(filepath.Ext(renderOutput), ".")
			if format == "yml" {
				format = "yaml"
			}
			if format == "" {
				format = "svg"
			}
		}

		snap, err := loadSnapshot(cmd.Context())
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := writeSnapshot(&buf, snap, format, renderWidth, renderHeight, renderTitle); err != nil {
			return err
		}
		if renderOutput == "" || renderOutput == "-" {
			_, err := os.Stdout.Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(renderOutput, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", renderOutput, err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s (%d issues)\n", renderOutput, len(snap.Issues()))
		return nil
	},
}

func init() {
	renderCmd.Flags().StringVar(&renderFormat, "format", "", "output format: svg, html, json or yaml")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "output file (default stdout)")
	renderCmd.Flags().Float64Var(&renderWidth, "width", render.DefaultWidth, "canvas width")
	renderCmd.Flags().Float64Var(&renderHeight, "height", render.DefaultHeight, "canvas height")
	renderCmd.Flags().StringVar(&renderTitle, "title", "", "page title for html output")
}

// loadSnapshot loads the configured source once and lays it out.
func loadSnapshot(ctx context.Context) (*viewer.Snapshot, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	src, err := openSource(cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	v := viewer.New(src, viewer.WithFilter(cfg.IssueFilter()))
	snap, err := v.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading graph from %s: %w", src.Name(), err)
	}
	return snap, nil
}

func writeSnapshot(w io.Writer, snap *viewer.Snapshot, format string, width, height float64, title string) error {
	switch format {
	case "svg":
		return render.SVG(w, snap.FittedScene(width, height))
	case "html":
		return render.HTML(w, snap.FittedScene(width, height), title)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case "yaml":
		// Round-trip through JSON so YAML keys match the JSON field names.
		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format %q (must be svg, html, json or yaml)", format)
}
