package subcommands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgecore/edged/registry"
)

// GraphCmd is the parent command for exporting the resolved dependency
// graph without starting a daemon.
var GraphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the resolved dependency graph",
}

var graphTargets []string

var graphDotCmd = &cobra.Command{
	Use:   "dot",
	Short: "Print the dependency graph in Graphviz DOT format",
	RunE:  runGraphDot,
}

var graphJSONCmd = &cobra.Command{
	Use:   "json",
	Short: "Print the dependency graph edges as JSON",
	RunE:  runGraphJSON,
}

func init() {
	GraphCmd.AddCommand(graphDotCmd)
	GraphCmd.AddCommand(graphJSONCmd)
	GraphCmd.PersistentFlags().StringSliceVar(&graphTargets, "target", nil, "limit to these root components and their dependencies (default: every recipe found)")
}

func resolveGraph() (*registry.Registry, error) {
	src, err := newRecipeSource()
	if err != nil {
		return nil, err
	}
	cfg, err := newConfigStore()
	if err != nil {
		return nil, err
	}
	reg := newRegistry(src, cfg)

	targets := graphTargets
	if len(targets) == 0 {
		targets = src.Names()
	}
	reg.LocateAll(targets...)
	return reg, nil
}

func runGraphDot(cmd *cobra.Command, args []string) error {
	reg, err := resolveGraph()
	if err != nil {
		return err
	}
	fmt.Println(reg.Graph().ToDOT())
	return nil
}

type graphEdgeJSON struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Required string `json:"required_state"`
}

func runGraphJSON(cmd *cobra.Command, args []string) error {
	reg, err := resolveGraph()
	if err != nil {
		return err
	}
	edges := reg.Graph().AllEdges()
	out := make([]graphEdgeJSON, 0, len(edges))
	for _, e := range edges {
		out = append(out, graphEdgeJSON{From: e.From, To: e.To, Required: e.RequiredState.String()})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
