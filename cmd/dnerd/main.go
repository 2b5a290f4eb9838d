// dnerd is the dataNERD CLI: agentic statistical analysis of tabular
// datasets with a per-user novelty filter, so reports only contain findings
// the user does not already know.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"datanerd/internal/config"
	"datanerd/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	userFlag   string
	plain      bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "dnerd",
	Short: "dataNERD - agentic dataset analysis with a personal novelty filter",
	Long: `dataNERD interrogates a tabular dataset with statistical questions,
executes generated analysis code through a sandboxed runner, critiques the
results, and filters findings through your personal belief memory - so the
final report only contains what is novel to YOU.

Pipeline: planner -> analyst -> critic -> novelty gate -> synthesizer.

Quick start:
  dnerd analyze demo --demo        # built-in dataset, in-process execution
  dnerd beliefs add "revenue dips every July"
  dnerd runs list`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		// Category file logging and the audit trail follow
		// .dnerd/config.json debug_mode
		if root, err := config.FindWorkspaceRoot(); err == nil {
			if err := logging.Initialize(root); err != nil {
				logger.Debug("category logging disabled", zap.Error(err))
			}
			if err := logging.InitAudit(); err != nil {
				logger.Debug("audit logging disabled", zap.Error(err))
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAudit()
		logging.CloseAll()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the dataNERD version",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultConfig()
		fmt.Printf("%s %s\n", cfg.Name, cfg.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (default .dnerd/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "belief owner for this invocation (default from .dnerd/config.json)")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "disable the live TUI, print plain progress lines")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(beliefsCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
