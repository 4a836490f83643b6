package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
	"github.com/xkilldash9x/crowdsim-cli/internal/observability"
	"github.com/xkilldash9x/crowdsim-cli/internal/orchestrator"
)

// newRunCmd creates the `run` command, which executes one full simulation.
func newRunCmd() *cobra.Command {
	var (
		noHero bool
		headed bool
	)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs an audience reaction simulation against the social surface",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for key, flag := range map[string]string{
				"simulation.goal":            "goal",
				"simulation.crowd_count":     "crowd-count",
				"simulation.max_concurrency": "max-concurrency",
				"simulation.dry_run":         "dry-run",
				"simulation.persona_file":    "persona-file",
				"simulation.post_context":    "post-context",
				"simulation.output_dir":      "output-dir",
				"simulation.run_id":          "run-id",
				"simulation.target_persona":  "target-persona",
			} {
				if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			// Boolean inversions cannot ride the viper binding.
			if noHero {
				cfg.Simulation.HeroEnabled = false
			}
			if headed {
				cfg.Browser.Headless = false
			}

			o := orchestrator.New(cfg, logger)
			doc, err := o.Run(cmd.Context())
			if err != nil {
				return err
			}

			if doc.Status != schemas.RunStatusCompleted {
				return fmt.Errorf("run %s ended %s: %s", doc.RunID, doc.Status, doc.Error)
			}

			logger.Info("Run completed",
				zap.String("run_id", doc.RunID),
				zap.Int("agents", len(doc.Result.AgentLogs)),
				zap.Int("engagement", doc.Result.Metrics.Engagement),
				zap.String("confidence", doc.Result.ConfidenceLevel))
			fmt.Fprintf(cmd.OutOrStdout(), "run %s completed (engagement %d, confidence %s)\n",
				doc.RunID, doc.Result.Metrics.Engagement, doc.Result.ConfidenceLevel)
			return nil
		},
	}

	runCmd.Flags().String("goal", "", "campaign goal the personas react to")
	runCmd.Flags().Int("crowd-count", 5, "number of crowd agents")
	runCmd.Flags().Int("max-concurrency", 3, "maximum agents inside their loop at once")
	runCmd.Flags().BoolVar(&noHero, "no-hero", false, "disable the browser-backed hero agent")
	runCmd.Flags().BoolVar(&headed, "headed", false, "run the hero browser with a visible window")
	runCmd.Flags().Bool("dry-run", false, "decide with local rules and touch nothing external")
	runCmd.Flags().String("persona-file", "", "JSON file of personas (built-in set when empty)")
	runCmd.Flags().String("post-context", "", "text of the post under reaction")
	runCmd.Flags().String("output-dir", "", "directory for run artifacts")
	runCmd.Flags().String("run-id", "", "explicit run id (generated when empty)")
	runCmd.Flags().String("target-persona", "", "persona id for the hero agent")

	return runCmd
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
