package cli

import (
	"github.com/gantry-io/gantry/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagLogLevel    string
	flagStatePath   string
	flagBackend     string
	flagS3Bucket    string
	flagS3Key       string
	flagRegion      string
	flagConcurrency int
	flagOpTimeout   string
)

var rootCmd = &cobra.Command{
	Use:   "gantry",
	Short: "Declarative cloud resource provisioning",
	Long: `Gantry reconciles declarative resource documents against recorded state.

It builds a dependency graph from resource references, diffs the desired
document against the last recorded state, and applies the resulting plan
in dependency order with bounded concurrency.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagStatePath, "state", "", "Path to the state file (default .gantry/state.yaml, or state.db for the bolt backend)")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "local", "State backend: local, bolt, s3")
	rootCmd.PersistentFlags().StringVar(&flagS3Bucket, "s3-bucket", "", "Bucket for the s3 state backend")
	rootCmd.PersistentFlags().StringVar(&flagS3Key, "s3-key", "", "Object key for the s3 state backend")
	rootCmd.PersistentFlags().StringVar(&flagRegion, "region", "", "AWS region for providers and the s3 backend")
	rootCmd.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 0, "Max concurrent operations (default 10)")
	rootCmd.PersistentFlags().StringVar(&flagOpTimeout, "timeout", "", "Per-operation timeout, e.g. 45m (default 30m)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}
