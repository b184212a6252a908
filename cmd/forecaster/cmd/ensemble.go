package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/ensemble"
)

var ensembleCmd = &cobra.Command{
	Use:   "ensemble",
	Short: "Combine the holdout outputs of trained algorithms",
	Long: `Load the base model outputs saved by train for each algorithm and search
for the best convex weighting plus a stacked logistic meta-model.

At least two algorithms must have been trained on the same data.

Examples:
  forecaster ensemble -c forecaster.yaml
  forecaster ensemble -c forecaster.yaml --step 0.05`,
	RunE: runEnsemble,
}

var ensembleStep float64

func init() {
	rootCmd.AddCommand(ensembleCmd)
	ensembleCmd.Flags().Float64Var(&ensembleStep, "step", 0, "weight grid step (default: ensemble.step)")
}

func runEnsemble(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	cfg := e.cfg

	step := cfg.Ensemble.Step
	if ensembleStep > 0 {
		step = ensembleStep
	}
	metas, err := ensemble.LoadBaseMetas(cfg.Ensemble.Dir)
	if err != nil {
		return err
	}
	spec, lin, meta, err := ensemble.Compose(metas, step)
	if err != nil {
		return err
	}
	if err := spec.Save(cfg.Ensemble.Dir); err != nil {
		return fmt.Errorf("save ensemble: %w", err)
	}

	fmt.Printf("✓ Ensemble of %d models saved to %s\n", len(metas), cfg.Ensemble.Dir)
	if eq := ensemble.EqualWeighted(metas); eq != nil {
		fmt.Printf("  Equal weights AUC: %.4f\n", *eq)
	}
	if lin != nil {
		fmt.Printf("  Linear blend AUC: %.4f\n", lin.AUC)
		names := make([]string, 0, len(lin.Named))
		for n := range lin.Named {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Printf("    %-6s %.2f\n", n, lin.Named[n])
		}
	} else {
		fmt.Println("  Linear blend: none")
	}
	if meta != nil {
		fmt.Printf("  Stacked AUC (in-sample): %.4f\n", meta.AUC)
	} else {
		fmt.Println("  Stacked model: failed")
	}
	return nil
}
