package cli

import (
	"fmt"
	"sort"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect recorded state",
	Long:  `Commands for inspecting and modifying recorded state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show attributes and outputs of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

func init() {
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, closer, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	addrs := make([]string, 0, len(entries))
	for id := range entries {
		addrs = append(addrs, id.String())
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		fmt.Printf("  %s\n", addr)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(entries))

	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	id, err := ir.ParseID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, closer, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	entry, ok := entries[id]
	if !ok {
		return fmt.Errorf("no resource %q in state", args[0])
	}

	out, err := yaml.Marshal(entry)
	if err != nil {
		return err
	}
	fmt.Printf("# %s\n%s", args[0], out)
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	id, err := ir.ParseID(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, closer, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closer()

	entries, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if _, ok := entries[id]; !ok {
		return fmt.Errorf("no resource %q in state", args[0])
	}

	if err := store.Remove(ctx, id); err != nil {
		return fmt.Errorf("failed to remove %s: %w", args[0], err)
	}
	fmt.Printf("Removed %s from state. The underlying resource was not touched.\n", args[0])
	return nil
}
