package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/crowdsim-cli/api/schemas"
	"github.com/xkilldash9x/crowdsim-cli/internal/config"
	"github.com/xkilldash9x/crowdsim-cli/internal/observability"
	"github.com/xkilldash9x/crowdsim-cli/internal/orchestrator"
)

// newSmokeCmd creates the `smoke` command: a tiny dry run through the whole
// pipeline. Nothing external is called, so it doubles as an install check.
func newSmokeCmd() *cobra.Command {
	smokeCmd := &cobra.Command{
		Use:   "smoke",
		Short: "Runs a tiny offline simulation to verify the whole pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg.Simulation.DryRun = true
			cfg.Simulation.HeroEnabled = false
			cfg.Simulation.CrowdCount = 2
			cfg.Agent.MaxSteps = 1
			if cfg.Simulation.PostContext == "" {
				cfg.Simulation.PostContext = "Smoke test post: new product launch."
			}

			o := orchestrator.New(cfg, logger)
			doc, err := o.Run(cmd.Context())
			if err != nil {
				return err
			}
			if doc.Status != schemas.RunStatusCompleted {
				return fmt.Errorf("smoke run ended %s: %s", doc.Status, doc.Error)
			}

			docPath := filepath.Join(cfg.Simulation.OutputDir, doc.RunID, orchestrator.RunDocumentName)
			fmt.Fprintf(cmd.OutOrStdout(), "smoke run %s completed; run document at %s\n", doc.RunID, docPath)
			return nil
		},
	}
	return smokeCmd
}

func init() {
	rootCmd.AddCommand(newSmokeCmd())
}
