package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [document]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions Gantry will take
to reach the desired state defined in your document.

The plan shows:
  • Resources to be created
  • Resources to be updated (with diff)
  • Resources to be replaced or deleted`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	doc, err := loadDocument(args)
	if err != nil {
		return err
	}

	store, closer, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	prior, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	eng, err := buildEngine(buildRegistry(), store)
	if err != nil {
		return err
	}

	plan, _, err := eng.Plan(doc, prior)
	if err != nil {
		return err
	}

	renderPlan(plan)
	return nil
}
