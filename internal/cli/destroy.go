package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy all recorded infrastructure",
	Long: `Deletes every resource recorded in state, in reverse dependency
order. Resources that other resources depended on are deleted last.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
}

func runDestroy(cmd *cobra.Command, args []string) error {
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

	if len(prior) == 0 {
		fmt.Println("No resources in state. Nothing to destroy.")
		return nil
	}

	eng, err := buildEngine(buildRegistry(), store)
	if err != nil {
		return err
	}

	plan, err := eng.DestroyPlan(prior)
	if err != nil {
		return err
	}

	renderPlan(plan)

	if !destroyAutoApprove {
		if !confirm("\nDo you really want to destroy all resources? (y/n): ") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n\n", len(plan.Changes()))

	report, err := eng.Apply(ctx, plan, prior, progressCallback)
	if err != nil {
		return fmt.Errorf("destroy failed: %w", err)
	}

	renderReport(report)
	if report.Failed() {
		return fmt.Errorf("destroy completed with failures")
	}
	fmt.Println("\nDestroy complete!")
	return nil
}
