package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/beadgraph/internal/client"
	"github.com/alfredjeanlab/beadgraph/internal/config"
	"github.com/alfredjeanlab/beadgraph/internal/source"
	"github.com/alfredjeanlab/beadgraph/internal/store/postgres"
	"github.com/alfredjeanlab/beadgraph/internal/ui"
)

var (
	jsonOutput bool
	noColor    bool

	// Source overrides shared by every command that loads the graph.
	sourceFlag  string
	beadsURL    string
	beadsToken  string
	databaseURL string
	graphFile   string
	filterExpr  string
)

var rootCmd = &cobra.Command{
	Use:           "kg <command>",
	Short:         "Dependency graph viewer for beads",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&sourceFlag, "source", "", "graph source: http, postgres or file (default from KG_SOURCE)")
	rootCmd.PersistentFlags().StringVar(&beadsURL, "beads-url", "", "beads server URL (default from KG_BEADS_URL)")
	rootCmd.PersistentFlags().StringVar(&beadsToken, "beads-token", "", "beads server bearer token")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "beads Postgres URL (default from KG_DATABASE_URL)")
	rootCmd.PersistentFlags().StringVarP(&graphFile, "file", "f", "", "read the graph from a JSON or YAML file")
	rootCmd.PersistentFlags().StringVar(&filterExpr, "filter", "", `issue filter, e.g. 'status != "closed"'`)

	rootCmd.AddGroup(
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Views
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(layoutCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
}

// loadConfig reads KG_CONFIG and KG_* variables and applies the command
// line overrides on top.
func loadConfig() (*config.Config, error) {
	return config.Load(func(cfg *config.Config) {
		if beadsURL != "" {
			cfg.BeadsURL = beadsURL
		}
		if beadsToken != "" {
			cfg.BeadsToken = beadsToken
		}
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
			cfg.Source = config.SourcePostgres
		}
		if graphFile != "" {
			cfg.File = graphFile
			cfg.Source = config.SourceFile
		}
		if sourceFlag != "" {
			cfg.Source = sourceFlag
		}
		if filterExpr != "" {
			cfg.Filter = filterExpr
		}
	})
}

// openSource connects to the configured graph source.
func openSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source {
	case config.SourcePostgres:
		st, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return source.NewStore(st, cfg.GraphLimit), nil
	case config.SourceFile:
		return source.NewFile(cfg.File), nil
	case config.SourceHTTP:
		return source.NewHTTP(client.NewHTTPClient(cfg.BeadsURL, cfg.BeadsToken), cfg.GraphLimit), nil
	}
	return nil, fmt.Errorf("unknown source %q", cfg.Source)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
