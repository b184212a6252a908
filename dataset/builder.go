package dataset

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/progress"
)

// DefaultLadder is the sequence of min_rows values tried when a build
// comes back empty.
var DefaultLadder = []int{120, 60, 10}

// Builder turns a symbol map into a Dataset through a feature Engineer.
type Builder struct {
	Engineer features.Engineer
	Log      *logger.Logger
	Sink     progress.Sink
}

func NewBuilder(e features.Engineer, l *logger.Logger, sink progress.Sink) *Builder {
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Builder{Engineer: e, Log: l, Sink: sink}
}

// Build concatenates the feature rows of every symbol that has a close
// column and at least minRows bars. Symbols that fail are skipped. The
// result may be empty; it is never nil.
func (b *Builder) Build(ctx context.Context, series market.SeriesMap, horizon, minRows int) (*Dataset, error) {
	ds := &Dataset{Horizon: horizon, Columns: b.Engineer.Columns()}
	for _, sym := range series.Symbols() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s := series[sym]
		if !s.HasClose() {
			b.Log.Debug("skip symbol", logger.String("symbol", sym), logger.String("reason", "no close"))
			continue
		}
		if s.Len() < minRows {
			b.Log.Debug("skip symbol", logger.String("symbol", sym),
				logger.Int("rows", s.Len()), logger.Int("min_rows", minRows))
			continue
		}
		f, err := b.Engineer.Compute(s, horizon)
		if err != nil {
			b.Log.Debug("skip symbol", logger.String("symbol", sym), logger.Error(fmt.Errorf("%w: %v", market.ErrData, err)))
			continue
		}
		for i := range f.X {
			ds.Rows = append(ds.Rows, Row{
				Symbol:   sym,
				Date:     f.Dates[i],
				Close:    f.Closes[i],
				Features: f.X[i],
				Label:    f.Labels[i],
			})
		}
	}
	return ds, nil
}

// BuildWithFallback tries each min_rows value of ladder in turn and
// returns the first non-empty dataset with the value that produced it.
func (b *Builder) BuildWithFallback(ctx context.Context, series market.SeriesMap, horizon int, ladder []int) (*Dataset, int, error) {
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	for _, minRows := range ladder {
		ds, err := b.Build(ctx, series, horizon, minRows)
		if err != nil {
			return nil, 0, err
		}
		if ds.Len() > 0 {
			if minRows != ladder[0] {
				b.Log.Warn("dataset built with relaxed min_rows",
					logger.Int("horizon", horizon), logger.Int("min_rows", minRows))
			}
			return ds, minRows, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: horizon %d, %d symbols, min_rows ladder %v", ErrDataset, horizon, len(series), ladder)
}

// Check validates ds, emitting the start and result events, and returns
// ErrValidation when the report fails.
func (b *Builder) Check(ctx context.Context, ds *Dataset, label string) (Validation, error) {
	b.Sink.Emit(ctx, progress.New(progress.PhaseDatasetValidationStart, map[string]interface{}{
		"context": label,
		"rows":    ds.Len(),
	}))
	v := Validate(ds)
	fields := map[string]interface{}{
		"context":       label,
		"rows":          v.Rows,
		"symbols":       v.Symbols,
		"feature_count": v.FeatureCount,
		"missing_ratio": v.MissingRatio,
		"status":        string(v.Status),
	}
	if v.PositiveRate != nil {
		fields["positive_rate"] = *v.PositiveRate
	}
	b.Sink.Emit(ctx, progress.New(progress.PhaseDatasetValidationResult, fields))
	if v.Status == StatusWarn {
		b.Log.Warn("dataset validation warning", logger.String("context", label),
			logger.Int("rows", v.Rows), logger.Int("features", v.FeatureCount))
	}
	return v, v.Err()
}

// IsDatasetErr reports whether err means no data was available.
func IsDatasetErr(err error) bool {
	return errors.Is(err, ErrDataset) || errors.Is(err, ErrValidation)
}
