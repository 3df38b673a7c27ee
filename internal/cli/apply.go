package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply [document]",
	Short: "Apply a document",
	Long:  `Builds or changes infrastructure according to a Gantry resource document.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
}

func runApply(cmd *cobra.Command, args []string) error {
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

	if plan.Empty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	renderPlan(plan)

	if !applyAutoApprove {
		if !confirm("\nDo you want to perform these actions? (y/n): ") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n\n", len(plan.Changes()))

	report, err := eng.Apply(ctx, plan, prior, progressCallback)
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	renderReport(report)
	if report.Failed() {
		return fmt.Errorf("apply completed with failures")
	}
	fmt.Println("\nApply complete!")
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "yes"
}
