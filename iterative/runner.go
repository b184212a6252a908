package iterative

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/internal/calendar"
	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/pkg/metrics"
	"github.com/rustyeddy/forecaster/progress"
	"github.com/rustyeddy/forecaster/trainer"
)

// Runner drives the iteration state machine.
type Runner struct {
	cfg      Config
	engineer features.Engineer
	builder  *dataset.Builder
	trainer  *trainer.Trainer
	cal      *calendar.Calendar
	store    Store
	log      *logger.Logger
	sink     progress.Sink
	metrics  *metrics.Recorder
	now      func() time.Time

	state       State
	iteration   int
	transitions []Transition
}

// Option customizes a Runner.
type Option func(*Runner)

func WithStore(s Store) Option                 { return func(r *Runner) { r.store = s } }
func WithLogger(l *logger.Logger) Option       { return func(r *Runner) { r.log = l } }
func WithSink(s progress.Sink) Option          { return func(r *Runner) { r.sink = s } }
func WithMetrics(m *metrics.Recorder) Option   { return func(r *Runner) { r.metrics = m } }
func WithCalendar(c *calendar.Calendar) Option { return func(r *Runner) { r.cal = c } }

func NewRunner(cfg Config, e features.Engineer, t *trainer.Trainer, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg.withDefaults(),
		engineer: e,
		trainer:  t,
		cal:      calendar.New(),
		sink:     progress.Nop{},
		now:      time.Now,
		state:    StateInit,
	}
	for _, o := range opts {
		o(r)
	}
	r.builder = dataset.NewBuilder(e, r.log, r.sink)
	return r
}

// Config returns the effective configuration.
func (r *Runner) Config() Config { return r.cfg }

func (r *Runner) enter(s State) {
	r.transitions = append(r.transitions, Transition{Iteration: r.iteration, From: r.state, To: s, At: r.now()})
	r.log.Debug("state", logger.Int("iteration", r.iteration), logger.String("from", string(r.state)), logger.String("to", string(s)))
	r.state = s
}

// window is the date split of one iteration.
type window struct {
	cutoff, valStart, valEnd time.Time
}

func (r *Runner) computeWindow(latest time.Time, lookback int) window {
	cutoff := r.cal.Back(latest, lookback)
	return window{cutoff: cutoff, valStart: r.cal.Next(cutoff), valEnd: latest}
}

// Run executes iterations until a stop condition. It never panics and
// never returns an error directly; failures end the run with
// StopAborted and RunResult.Err set.
func (r *Runner) Run(ctx context.Context, series market.SeriesMap) *RunResult {
	res := &RunResult{}
	finish := func(stop StopReason, err error) *RunResult {
		r.enter(StateTerminal)
		res.Stop, res.Err = stop, err
		res.Transitions = append([]Transition(nil), r.transitions...)
		fields := []logger.Field{logger.String("stop", string(stop)), logger.Int("iterations", len(res.Records))}
		if err != nil {
			r.log.Error("iterative training stopped", append(fields, logger.Error(err))...)
		} else {
			r.log.Info("iterative training finished", fields...)
		}
		return res
	}

	latest, ok := series.LatestDate()
	if !ok {
		return finish(StopAborted, ErrNoData)
	}
	lookback := r.cfg.InitialLookbackDays
	best := 0.0

	for it := 1; it <= r.cfg.MaxIterations; it++ {
		if err := ctx.Err(); err != nil {
			return finish(StopCancelled, err)
		}
		r.iteration = it
		rec, err := r.iterate(ctx, series, latest, lookback)
		if err != nil {
			if ctx.Err() != nil {
				return finish(StopCancelled, ctx.Err())
			}
			r.metrics.RecordError("iteration")
			return finish(StopAborted, fmt.Errorf("iteration %d: %w", it, err))
		}

		r.enter(StateDecide)
		improvement := rec.AvgAccuracy - best
		if it > 1 {
			rec.ImprovementFromPrevious = &improvement
		}
		res.Records = append(res.Records, rec)
		if r.store != nil {
			if err := r.store.SaveIteration(rec); err != nil {
				r.metrics.RecordError("persist")
				r.log.Error("save iteration failed", logger.Int("iteration", it), logger.Error(err))
			}
		}
		r.metrics.ObserveIteration(rec.AccuracyByHorizon)
		r.sink.Emit(ctx, progress.New(progress.PhaseIterationComplete, map[string]interface{}{
			"iteration":    it,
			"avg_accuracy": rec.AvgAccuracy,
			"predictions":  len(rec.Predictions),
			"outcomes":     len(rec.ActualResults),
		}))
		r.log.Info("iteration complete",
			logger.Int("iteration", it),
			logger.String("cutoff", rec.TrainingCutoff),
			logger.Float("avg_accuracy", rec.AvgAccuracy),
			logger.Float("improvement", improvement))

		if rec.AvgAccuracy >= r.cfg.TargetAccuracy {
			return finish(StopTargetReached, nil)
		}
		if it > 1 && improvement < r.cfg.MinAccuracyImprovement {
			return finish(StopPlateau, nil)
		}
		best = max(best, rec.AvgAccuracy)
		lookback += r.cfg.LookbackStep
	}
	return finish(StopMaxIterations, nil)
}

func (r *Runner) iterate(ctx context.Context, series market.SeriesMap, latest time.Time, lookback int) (*Record, error) {
	r.enter(StateComputeWindow)
	w := r.computeWindow(latest, lookback)
	rec := &Record{
		Iteration:       r.iteration,
		TrainingCutoff:  w.cutoff.Format(market.DateLayout),
		ValidationStart: w.valStart.Format(market.DateLayout),
		ValidationEnd:   w.valEnd.Format(market.DateLayout),
		Horizons:        trainer.SortedHorizons(r.cfg.Horizons),
		LookbackDays:    lookback,
	}
	r.sink.Emit(ctx, progress.New(progress.PhaseIterationStart, map[string]interface{}{
		"iteration":        r.iteration,
		"training_cutoff":  rec.TrainingCutoff,
		"validation_start": rec.ValidationStart,
		"validation_end":   rec.ValidationEnd,
	}))

	r.enter(StateTrain)
	models, paths, err := r.train(ctx, series, w.cutoff, rec)
	if err != nil {
		return nil, err
	}
	rec.ModelsTrained = paths

	r.enter(StatePredict)
	preds, err := r.predict(ctx, series, models, w)
	if err != nil {
		return nil, err
	}
	rec.Predictions = preds

	r.enter(StateCollectOutcomes)
	rec.ActualResults = r.collect(series, preds)

	r.enter(StateScore)
	rec.AccuracyByHorizon = Accuracy(rec.ActualResults, rec.Horizons, r.cfg.BlendAlpha)
	rec.AvgAccuracy = Mean(rec.AccuracyByHorizon)
	return rec, nil
}

// train fits one model per horizon on bars at or before cutoff.
func (r *Runner) train(ctx context.Context, series market.SeriesMap, cutoff time.Time, rec *Record) (map[int]*ml.Model, map[int]string, error) {
	filtered := series.Until(cutoff, r.cfg.MinRows)
	if len(filtered) == 0 {
		return nil, nil, fmt.Errorf("%w: no symbol has %d bars before %s", dataset.ErrDataset, r.cfg.MinRows, rec.TrainingCutoff)
	}
	models := map[int]*ml.Model{}
	paths := map[int]string{}
	for _, h := range rec.Horizons {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		ds, err := r.builder.Build(ctx, filtered, h, r.cfg.MinRows)
		if err != nil {
			return nil, nil, err
		}
		if ds.Len() > 0 && ds.MaxDate().After(cutoff) {
			return nil, nil, fmt.Errorf("%w: horizon %d row dated %s after cutoff %s",
				ErrLeakage, h, ds.MaxDate().Format(market.DateLayout), rec.TrainingCutoff)
		}
		label := fmt.Sprintf("iteration_%d_horizon_%d", r.iteration, h)
		if _, err := r.builder.Check(ctx, ds, label); err != nil {
			r.log.Warn("horizon skipped", logger.Int("horizon", h), logger.Error(err))
			continue
		}
		res, err := r.trainer.Train(ctx, ds, r.cfg.Algorithm)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			r.log.Error("horizon training failed", logger.Int("horizon", h), logger.Error(err))
			continue
		}
		models[h] = res.Model
		paths[h] = r.saveModel(res.Model, h, rec)
	}
	if len(models) == 0 {
		return nil, nil, fmt.Errorf("%w: no horizon model trained for cutoff %s", trainer.ErrTraining, rec.TrainingCutoff)
	}
	return models, paths, nil
}

// saveModel writes the model under ModelsDir and returns its path, or
// just its file name when models are kept in memory.
func (r *Runner) saveModel(m *ml.Model, h int, rec *Record) string {
	name := fmt.Sprintf("model_%s_%dd.json", r.cfg.Algorithm, h)
	if r.cfg.ModelsDir == "" {
		return name
	}
	dir := filepath.Join(r.cfg.ModelsDir, fmt.Sprintf("%d_%s", rec.Iteration, compact(rec.TrainingCutoff)))
	path := filepath.Join(dir, name)
	if err := m.Save(path); err != nil {
		r.log.Warn("model not saved", logger.String("path", path), logger.Error(err))
		return name
	}
	return path
}

// predict scores every business day of the validation window using only
// bars on or before that day.
func (r *Runner) predict(ctx context.Context, series market.SeriesMap, models map[int]*ml.Model, w window) ([]Prediction, error) {
	horizons := make([]int, 0, len(models))
	for h := range models {
		horizons = append(horizons, h)
	}
	horizons = trainer.SortedHorizons(horizons)
	var out []Prediction
	for _, day := range r.cal.Range(w.valStart, w.valEnd) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dayStr := day.Format(market.DateLayout)
		for _, sym := range series.Symbols() {
			upto := series[sym].Until(day)
			if upto.Len() < r.cfg.MinRows {
				continue
			}
			_, row, err := r.engineer.Latest(upto)
			if err != nil {
				continue
			}
			last, _ := upto.Last()
			for _, h := range horizons {
				p := models[h].PredictOne(row)
				class := 0
				if p >= 0.5 {
					class = 1
				}
				target := day.AddDate(0, 0, h)
				if !target.After(w.cutoff) {
					return nil, fmt.Errorf("%w: target %s not after cutoff", ErrLeakage, target.Format(market.DateLayout))
				}
				out = append(out, Prediction{
					Date:            dayStr,
					Symbol:          sym,
					Horizon:         h,
					PredictionClass: class,
					PredictionProba: p,
					CurrentPrice:    last.Close,
					TargetDate:      target.Format(market.DateLayout),
				})
			}
		}
	}
	r.log.Info("predictions generated", logger.Int("count", len(out)))
	return out, nil
}

func (r *Runner) collect(series market.SeriesMap, preds []Prediction) []Outcome {
	out := make([]Outcome, 0, len(preds))
	for _, p := range preds {
		o, err := Resolve(p, series[p.Symbol], r.cfg.LabelThreshold)
		if err != nil {
			r.log.Debug("prediction unresolved", logger.String("symbol", p.Symbol), logger.Error(err))
			continue
		}
		out = append(out, o)
	}
	r.log.Info("outcomes collected", logger.Int("count", len(out)), logger.Int("predictions", len(preds)))
	return out
}
