package cli

import (
	"fmt"

	"github.com/gantry-io/gantry/internal/engine"
	"github.com/gantry-io/gantry/internal/ir"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [document]",
	Short: "Validate a resource document",
	Long: `Checks the document for syntax errors, duplicate resources,
unresolvable references, and dependency cycles without touching state
or providers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args)
	if err != nil {
		return err
	}

	if _, err := engine.BuildGraph(doc, map[ir.ID]*ir.Entry{}); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("Document is valid. %d resource(s).\n", len(doc.Resources))
	return nil
}
