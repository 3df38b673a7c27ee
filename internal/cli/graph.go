package cli

import (
	"fmt"

	"github.com/gantry-io/gantry/internal/engine"
	"github.com/gantry-io/gantry/internal/ir"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph [document]",
	Short: "Output the dependency graph in DOT format",
	Long: `Generates a visual representation of the resource dependency graph
in Graphviz DOT format. Pipe the output to 'dot' to generate an image:

  gantry graph | dot -Tpng > graph.png`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func runGraph(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args)
	if err != nil {
		return err
	}

	// State entries satisfy references to resources outside the document.
	ctx := cmd.Context()
	store, closer, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()
	prior, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	external := map[ir.ID]*ir.Entry{}
	for id, entry := range prior {
		if doc.Resource(id) == nil {
			external[id] = entry
		}
	}

	g, err := engine.BuildGraph(doc, external)
	if err != nil {
		return fmt.Errorf("failed to build graph: %w", err)
	}

	fmt.Println("digraph gantry {")
	fmt.Println("  rankdir = \"BT\";")
	fmt.Println("  node [shape = rect];")
	fmt.Println()

	for _, addr := range g.Addrs() {
		fmt.Printf("  %q;\n", addr)
	}
	fmt.Println()

	for _, addr := range g.Addrs() {
		for _, dep := range g.Dependencies(addr) {
			fmt.Printf("  %q -> %q;\n", addr, dep)
		}
	}
	fmt.Println("}")

	return nil
}
