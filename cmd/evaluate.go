package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/internal/config"
	"github.com/xkilldash9x/crowdsim-cli/internal/evaluate"
	"github.com/xkilldash9x/crowdsim-cli/internal/ledger"
	"github.com/xkilldash9x/crowdsim-cli/internal/observability"
)

// newEvaluateCmd creates the `evaluate` command, which scores a finished run
// against an expected engagement baseline.
func newEvaluateCmd() *cobra.Command {
	var (
		expectedPath   string
		runID          string
		runDir         string
		simulationFile string
		outputPath     string
	)

	evalCmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Scores a run's ledgers against an expected engagement baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			dir, err := evaluate.ResolveRunDir(cfg.Simulation.OutputDir, runDir, runID, simulationFile)
			if err != nil {
				return err
			}

			result, err := evaluate.Run(dir, expectedPath, logger)
			if err != nil {
				return err
			}
			if outputPath != "" {
				if err := ledger.WriteJSONAtomic(outputPath, result); err != nil {
					return err
				}
			}

			logger.Info("Evaluation complete",
				zap.String("run_id", result.RunID),
				zap.Float64("overall_similarity", result.OverallSimilarity))
			fmt.Fprintf(cmd.OutOrStdout(), "overall similarity %.4f across %d metrics\n",
				result.OverallSimilarity, len(result.Metrics))
			for name, m := range result.Metrics {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-14s expected %.2f actual %.2f similarity %.4f\n",
					name, m.Expected, m.Actual, m.Similarity)
			}
			return nil
		},
	}

	evalCmd.Flags().StringVar(&expectedPath, "expected", "", "path to the expected-input JSON document")
	evalCmd.Flags().StringVar(&runID, "run-id", "", "run id under the output directory")
	evalCmd.Flags().StringVar(&runDir, "run-dir", "", "explicit run directory")
	evalCmd.Flags().StringVar(&simulationFile, "simulation-file", "", "path to a run document; its directory is evaluated")
	evalCmd.Flags().StringVar(&outputPath, "output", "", "also write the evaluation result to this path")
	_ = evalCmd.MarkFlagRequired("expected")

	return evalCmd
}

func init() {
	rootCmd.AddCommand(newEvaluateCmd())
}
