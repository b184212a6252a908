package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/config"
	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/iterative"
	"github.com/rustyeddy/forecaster/journal"
	"github.com/rustyeddy/forecaster/pkg/id"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/trainer"
)

var iterateCmd = &cobra.Command{
	Use:   "iterate",
	Short: "Run walk-forward training against realized outcomes",
	Long: `Repeatedly train on data up to a cutoff, predict the following window
and score the predictions against what the market did. The lookback
widens each iteration. The run stops at the target accuracy, on a
plateau, or after iterative.max_iterations.

Each iteration is written as JSON under iterative.results_dir and to the
configured journal.

Examples:
  forecaster iterate -c forecaster.yaml
  forecaster iterate -c forecaster.yaml --max-iterations 3`,
	RunE: runIterate,
}

var iterateMax int

func init() {
	rootCmd.AddCommand(iterateCmd)
	iterateCmd.Flags().IntVar(&iterateMax, "max-iterations", 0, "override iterative.max_iterations")
}

func runIterate(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()
	cfg := e.cfg

	loop := cfg.LoopConfig()
	if iterateMax > 0 {
		loop.MaxIterations = iterateMax
	}
	series, err := e.loadSeries(ctx)
	if err != nil {
		return err
	}
	cal, err := e.calendar()
	if err != nil {
		return err
	}

	runID := id.New()
	j, err := openJournal(cfg.Iterative.ResultsDir, cfg.Journal, runID)
	if err != nil {
		return err
	}
	defer j.Close()

	t := trainer.New(cfg.TrainerConfig(), e.log, e.sink, e.rec)
	r := iterative.NewRunner(loop, features.NewDefault(loop.LabelThreshold), t,
		iterative.WithStore(j),
		iterative.WithLogger(e.log.With(logger.String("run", runID))),
		iterative.WithSink(e.sink),
		iterative.WithMetrics(e.rec),
		iterative.WithCalendar(cal),
	)
	res := r.Run(ctx, series)

	fmt.Printf("Run %s stopped: %s after %d iterations\n", runID, res.Stop, len(res.Records))
	for _, rec := range res.Records {
		fmt.Printf("  #%02d cutoff %s lookback %3dd  avg %.4f", rec.Iteration, rec.TrainingCutoff, rec.LookbackDays, rec.AvgAccuracy)
		for _, h := range rec.Horizons {
			fmt.Printf("  h%d=%.3f", h, rec.AccuracyByHorizon[h])
		}
		fmt.Println()
	}
	if best := res.Best(); best != nil {
		fmt.Printf("✓ Best iteration %d: avg accuracy %.4f\n", best.Iteration, best.AvgAccuracy)
	}
	if res.Err != nil {
		return fmt.Errorf("iterative run: %w", res.Err)
	}
	return nil
}

// openJournal always writes the JSON artifacts to dir and adds the
// configured tabular journal next to them.
func openJournal(dir string, jc config.JournalConfig, runID string) (journal.Journal, error) {
	multi := journal.Multi{journal.NewFiles(dir)}
	switch jc.Type {
	case "sqlite":
		j, err := journal.NewSQLite(jc.DBPath, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite journal: %w", err)
		}
		multi = append(multi, j)
	case "csv":
		j, err := journal.NewCSV(jc.IterationsFile, jc.OutcomesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create CSV journal: %w", err)
		}
		multi = append(multi, j)
	}
	return multi, nil
}
