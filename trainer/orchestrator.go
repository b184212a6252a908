package trainer

import (
	"context"
	"fmt"
	"sort"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/progress"
)

// DefaultMinRows is the per-symbol history required for a multi-horizon
// production run.
const DefaultMinRows = 120

// HorizonResult is the training outcome of one horizon.
type HorizonResult struct {
	Horizon int `json:"horizon"`
	*Result
}

// AUC returns the validation AUC or nil.
func (h HorizonResult) AUC() *float64 {
	if h.Result == nil {
		return nil
	}
	return h.Validation.AUC
}

// Orchestrator trains one model per horizon, one horizon at a time.
type Orchestrator struct {
	Builder *dataset.Builder
	Trainer *Trainer
	Ladder  []int
	Log     *logger.Logger
	Sink    progress.Sink
}

func NewOrchestrator(b *dataset.Builder, t *Trainer, ladder []int, l *logger.Logger, sink progress.Sink) *Orchestrator {
	if len(ladder) == 0 {
		ladder = []int{DefaultMinRows}
	}
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Orchestrator{Builder: b, Trainer: t, Ladder: ladder, Log: l, Sink: sink}
}

// SortedHorizons returns the distinct positive horizons in ascending
// order.
func SortedHorizons(horizons []int) []int {
	seen := map[int]bool{}
	var out []int
	for _, h := range horizons {
		if h > 0 && !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	sort.Ints(out)
	return out
}

// TrainMulti builds every horizon's dataset first, then trains them in
// ascending horizon order. A horizon whose dataset fails validation or
// whose training fails is logged and left out of the container.
func (o *Orchestrator) TrainMulti(ctx context.Context, series market.SeriesMap, horizons []int, algorithm ml.Algorithm) (*Container, error) {
	if _, err := ml.ParseAlgorithm(string(algorithm)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTraining, err)
	}
	type built struct {
		horizon int
		ds      *dataset.Dataset
	}
	var sets []built
	for _, h := range SortedHorizons(horizons) {
		ds, _, err := o.Builder.BuildWithFallback(ctx, series, h, o.Ladder)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.Log.Warn("no dataset for horizon", logger.Int("horizon", h), logger.Error(err))
			continue
		}
		sets = append(sets, built{horizon: h, ds: ds})
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("%w: no training data for horizons %v", dataset.ErrDataset, horizons)
	}
	hs := make([]int, len(sets))
	for i, b := range sets {
		hs[i] = b.horizon
	}
	o.Sink.Emit(ctx, progress.New(progress.PhaseMultiDatasetsBuilt, map[string]interface{}{"horizons": hs}))

	c := &Container{Algorithm: algorithm, Models: map[int]*ml.Model{}}
	for i, b := range sets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := o.Builder.Check(ctx, b.ds, fmt.Sprintf("horizon_%d", b.horizon)); err != nil {
			o.Log.Warn("horizon skipped", logger.Int("horizon", b.horizon), logger.Error(err))
			continue
		}
		res, err := o.Trainer.Train(ctx, b.ds, algorithm)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.Log.Error("horizon training failed", logger.Int("horizon", b.horizon), logger.Error(err))
			continue
		}
		c.Models[b.horizon] = res.Model
		c.Horizons = append(c.Horizons, b.horizon)
		c.HorizonMeta = append(c.HorizonMeta, HorizonResult{Horizon: b.horizon, Result: res})
		if c.Features == nil {
			c.Features = res.Model.Features
			c.FeatureStats = res.FeatureStats
		}
		fields := map[string]interface{}{
			"horizon": b.horizon,
			"index":   i + 1,
			"total":   len(sets),
			"samples": b.ds.Len(),
			"auc":     nil,
		}
		if res.Validation.AUC != nil {
			fields["auc"] = *res.Validation.AUC
		}
		o.Sink.Emit(ctx, progress.New(progress.PhaseMultiHorizonComplete, fields))
	}
	if len(c.Models) == 0 {
		return nil, fmt.Errorf("%w: every horizon failed", ErrTraining)
	}
	c.AggregateAUC = aggregateAUC(c.HorizonMeta)
	return c, nil
}

// aggregateAUC is the mean of the horizons' AUCs that exist.
func aggregateAUC(meta []HorizonResult) *float64 {
	s, n := 0.0, 0
	for _, m := range meta {
		if a := m.AUC(); a != nil {
			s += *a
			n++
		}
	}
	if n == 0 {
		return nil
	}
	v := s / float64(n)
	return &v
}
