package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/gantry-io/gantry/internal/config"
	"github.com/gantry-io/gantry/internal/engine"
	"github.com/gantry-io/gantry/internal/ir"
	"github.com/gantry-io/gantry/internal/provider"
	"github.com/gantry-io/gantry/internal/state"
	"github.com/gantry-io/gantry/providers/aws"
	"github.com/gantry-io/gantry/providers/null"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

// ExitCode maps an Execute error to a process exit status: 2 for fatal
// planning errors, 1 for everything else including partial apply failures.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if engine.IsFatal(err) {
		return 2
	}
	return 1
}

func loadDocument(args []string) (*ir.Document, error) {
	path := "gantry.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	doc, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return doc, nil
}

// openStore builds the configured state backend. The returned closer
// releases locks and file handles and must be called once.
func openStore(ctx context.Context) (state.Store, func(), error) {
	switch flagBackend {
	case "local":
		path := flagStatePath
		if path == "" {
			path = filepath.Join(".gantry", "state.yaml")
		}
		f := state.NewFile(path)
		if err := f.Lock(); err != nil {
			return nil, nil, err
		}
		return f, func() { _ = f.Unlock() }, nil
	case "bolt":
		path := flagStatePath
		if path == "" {
			path = filepath.Join(".gantry", "state.db")
		}
		b, err := state.NewBolt(path)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case "s3":
		if flagS3Bucket == "" {
			return nil, nil, fmt.Errorf("the s3 backend requires --s3-bucket")
		}
		s, err := state.NewS3(ctx, flagS3Bucket, flagS3Key, flagRegion)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", flagBackend)
	}
}

func buildRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	reg.Register("null", null.New())
	reg.Register("aws", aws.New(flagRegion))
	return reg
}

func buildEngine(reg *provider.Registry, store state.Store) (*engine.Engine, error) {
	eng := engine.New(reg, store)
	if flagConcurrency > 0 {
		eng.Concurrency = flagConcurrency
	}
	if flagOpTimeout != "" {
		d, err := time.ParseDuration(flagOpTimeout)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		eng.OpTimeout = d
	}
	return eng, nil
}

func opSymbol(op ir.Op) (symbol, color string) {
	switch op {
	case ir.OpCreate:
		return "+", colorGreen
	case ir.OpDelete:
		return "-", colorRed
	case ir.OpReplace:
		return "-/+", colorYellow
	case ir.OpUpdate:
		return "~", colorYellow
	default:
		return " ", colorReset
	}
}

func renderPlan(plan *ir.Plan) {
	if plan.Empty() {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return
	}

	fmt.Println("\nGantry will perform the following actions:")
	for i, batch := range plan.Batches {
		fmt.Printf("\nBatch %d:\n", i+1)
		for _, ch := range batch {
			symbol, color := opSymbol(ch.Op)
			fmt.Printf("%s  %s %s (%s)%s\n", color, symbol, ch.Key(), ch.Op, colorReset)
			renderDiff(ch, color)
		}
	}
	renderSummary(plan.Summary)
}

func renderDiff(ch *ir.Change, color string) {
	keys := make([]string, 0, len(ch.Diff))
	for k := range ch.Diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d := ch.Diff[k]
		suffix := ""
		if d.ForcesReplacement {
			suffix = " # forces replacement"
		}
		switch {
		case d.Before == nil:
			fmt.Printf("%s      %s = %v%s%s\n", color, k, d.After, suffix, colorReset)
		case d.After == nil:
			fmt.Printf("%s      %s = %v -> (removed)%s%s\n", color, k, d.Before, suffix, colorReset)
		default:
			fmt.Printf("%s      %s = %v -> %v%s%s\n", color, k, d.Before, d.After, suffix, colorReset)
		}
	}
}

func renderSummary(s ir.Summary) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", s.Create)
	fmt.Printf("  Update:  %d\n", s.Update)
	fmt.Printf("  Replace: %d\n", s.Replace)
	fmt.Printf("  Delete:  %d\n", s.Delete)
	fmt.Printf("  NoOp:    %d\n", s.NoOp)
}

func progressCallback(ev engine.ApplyEvent) {
	switch ev.Status {
	case ir.StatusApplying:
		fmt.Printf("%s: %s...\n", ev.Key, ev.Op)
	case ir.StatusApplied:
		fmt.Printf("%s: %s complete after %s\n", ev.Key, ev.Op, ev.Duration.Round(time.Millisecond))
	case ir.StatusFailed:
		fmt.Printf("%s%s: %s failed: %v%s\n", colorRed, ev.Key, ev.Op, ev.Err, colorReset)
	case ir.StatusBlocked:
		fmt.Printf("%s%s: blocked%s\n", colorYellow, ev.Key, colorReset)
	}
}

func renderReport(report *ir.Report) {
	applied, failed, blocked, skipped := report.Counts()
	fmt.Printf("\nRun %s: %d applied, %d failed, %d blocked, %d skipped.\n",
		report.RunID, applied, failed, blocked, skipped)

	if !report.Failed() {
		return
	}
	keys := make([]string, 0, len(report.Results))
	for k := range report.Results {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		res := report.Results[k]
		switch res.Status {
		case ir.StatusFailed:
			fmt.Printf("%s  %s: %s%s\n", colorRed, k, res.Err, colorReset)
		case ir.StatusBlocked:
			fmt.Printf("%s  %s: blocked on %s%s\n", colorYellow, k, res.BlockedOn, colorReset)
		}
	}
}
