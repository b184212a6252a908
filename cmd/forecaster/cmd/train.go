package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/ensemble"
	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/registry"
	"github.com/rustyeddy/forecaster/threshold"
	"github.com/rustyeddy/forecaster/trainer"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train one model per horizon and publish a snapshot",
	Long: `Train a classifier for every configured horizon on the loaded bars.

The run writes a registry snapshot holding the models, initial thresholds
from the holdout outputs and metadata, then promotes it unless disabled.
Holdout probabilities are also stored as ensemble input for the algorithm.

Examples:
  forecaster train -c forecaster.yaml
  forecaster train -c forecaster.yaml --algorithm xgb --no-promote`,
	RunE: runTrain,
}

var (
	trainAlgorithm string
	trainNoPromote bool
)

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVarP(&trainAlgorithm, "algorithm", "a", "", "override training.algorithm (rf, xgb, lgbm)")
	trainCmd.Flags().BoolVar(&trainNoPromote, "no-promote", false, "publish without making the snapshot active")
}

func runTrain(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()
	cfg := e.cfg

	name := cfg.Training.Algorithm
	if trainAlgorithm != "" {
		name = trainAlgorithm
	}
	alg, err := ml.ParseAlgorithm(name)
	if err != nil {
		return err
	}
	metric, err := threshold.ParseMetric(cfg.Training.ThresholdMetric)
	if err != nil {
		return err
	}

	series, err := e.loadSeries(ctx)
	if err != nil {
		return err
	}

	eng := features.NewDefault(cfg.Features.LabelThreshold)
	builder := dataset.NewBuilder(eng, e.log, e.sink)
	t := trainer.New(cfg.TrainerConfig(), e.log, e.sink, e.rec)
	orch := trainer.NewOrchestrator(builder, t, cfg.Training.MinRowsLadder, e.log, e.sink)

	start := time.Now()
	c, err := orch.TrainMulti(ctx, series, cfg.Training.Horizons, alg)
	if err != nil {
		e.rec.RecordError("training")
		return fmt.Errorf("training failed: %w", err)
	}

	promote := !trainNoPromote && (cfg.Training.Promote == nil || *cfg.Training.Promote)
	reg := registry.Open(cfg.Registry.Root, e.log)
	snap, err := reg.Publish(c, metric, promote)
	if err != nil {
		e.rec.RecordError("persistence")
		return err
	}

	if err := ensemble.SaveBaseMeta(cfg.Ensemble.Dir, alg, registry.BaseMeta(c, time.Now())); err != nil {
		e.log.Warn("base meta not saved", logger.Error(err))
	}
	stored := e.storeLatest(ctx, eng, series)

	fmt.Printf("✓ Trained %s on horizons %v in %s\n", alg, c.Horizons, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  Snapshot: %s\n", snap.Dir)
	fmt.Printf("  Samples: %d\n", c.Samples())
	if c.AggregateAUC != nil {
		fmt.Printf("  Aggregate AUC: %.4f\n", *c.AggregateAUC)
	}
	fmt.Printf("  Global threshold: %.2f\n", snap.Thresholds.Global)
	fmt.Printf("  Promoted: %v\n", snap.Promoted)
	fmt.Printf("  Feature store: %d symbols\n", stored)
	return nil
}

// storeLatest writes each symbol's latest feature row to the feature
// store. Failures are logged; the count of stored symbols is returned.
func (e *env) storeLatest(ctx context.Context, eng features.Engineer, series market.SeriesMap) int {
	fs, err := e.featureStore(ctx)
	if err != nil {
		e.log.Warn("feature store unavailable", logger.Error(err))
		return 0
	}
	cols := eng.Columns()
	n := 0
	for _, sym := range series.Symbols() {
		_, row, err := eng.Latest(series[sym])
		if err != nil {
			continue
		}
		if err := fs.Put(ctx, sym, namedRow(cols, row)); err != nil {
			e.log.Warn("feature store write failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		n++
	}
	return n
}

func namedRow(cols []string, row []float64) map[string]float64 {
	out := make(map[string]float64, len(cols))
	for i, c := range cols {
		if i < len(row) {
			out[c] = row[i]
		}
	}
	return out
}
