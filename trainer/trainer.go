// Package trainer fits horizon classifiers on a dataset, validates them
// on a chronological holdout and orchestrates one model per horizon.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/pkg/metrics"
	"github.com/rustyeddy/forecaster/progress"
)

// ErrTraining is returned when a model cannot be trained at all.
var ErrTraining = errors.New("training error")

const (
	// DefaultFolds is the number of walk-forward CV folds.
	DefaultFolds = 3
	// cvMinRows is the dataset size above which CV runs.
	cvMinRows = 300
	// plattMinRows is the smallest validation slice calibrated.
	plattMinRows = 30
	topFeatures  = 10
)

// Config tunes the trainer. Params overrides the backend defaults per
// algorithm.
type Config struct {
	Params map[ml.Algorithm]ml.Params
	Folds  int
}

// Trainer fits and validates a single model.
type Trainer struct {
	cfg     Config
	log     *logger.Logger
	sink    progress.Sink
	metrics *metrics.Recorder
	now     func() time.Time
}

func New(cfg Config, l *logger.Logger, sink progress.Sink, rec *metrics.Recorder) *Trainer {
	if cfg.Folds <= 0 {
		cfg.Folds = DefaultFolds
	}
	if sink == nil {
		sink = progress.Nop{}
	}
	return &Trainer{cfg: cfg, log: l, sink: sink, metrics: rec, now: time.Now}
}

// Fold is the outcome of one walk-forward CV fold.
type Fold struct {
	Fold      int      `json:"fold"`
	TrainSize int      `json:"train_size"`
	ValSize   int      `json:"val_size"`
	AUC       *float64 `json:"auc,omitempty"`
	Brier     *float64 `json:"brier,omitempty"`
}

// ValidationReport holds holdout metrics. The metric pointers are nil
// when the holdout was missing or single-class.
type ValidationReport struct {
	TrainSize   int        `json:"train_size"`
	ValSize     int        `json:"val_size"`
	Report      *ml.Report `json:"report,omitempty"`
	AUC         *float64   `json:"auc,omitempty"`
	Brier       *float64   `json:"brier,omitempty"`
	LogLoss     *float64   `json:"log_loss,omitempty"`
	Calibrated  bool       `json:"calibrated"`
	TrainReport ml.Report  `json:"train_report"`
	CV          []Fold     `json:"cv,omitempty"`
	CVMeanAUC   *float64   `json:"cv_mean_auc,omitempty"`
}

// FeatureStat is the population mean and standard deviation of a column.
type FeatureStat struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

type Importance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// Result is everything a training run produces.
type Result struct {
	Model        *ml.Model              `json:"-"`
	Validation   ValidationReport       `json:"validation"`
	Importance   []Importance           `json:"feature_importance"`
	TopFeatures  []string               `json:"top_features"`
	FeatureStats map[string]FeatureStat `json:"feature_stats"`
	ClassBalance dataset.ClassBalance   `json:"class_balance"`
	ValProbs     []float64              `json:"val_probs"`
	ValLabels    []int                  `json:"val_labels"`
	Samples      int                    `json:"samples"`
	Symbols      []string               `json:"symbols"`
	Duration     time.Duration          `json:"-"`
}

// HasValidation reports whether holdout metrics were computed.
func (r *Result) HasValidation() bool {
	return r != nil && r.Validation.AUC != nil
}

// Split returns the index where the chronological holdout starts. A
// return of n means the whole set is used for training.
func Split(n int) int {
	val := max(n/5, 50)
	if val >= n-20 {
		val = min(max(n*15/100, 20), n/3)
	}
	split := n - val
	if split < 30 {
		return n
	}
	return split
}

func (t *Trainer) classifier(a ml.Algorithm) (ml.Classifier, error) {
	return ml.New(a, t.cfg.Params[a])
}

// Train fits algorithm on ds. Rows are assumed in dataset order; the
// last slice (see Split) is held out for validation and calibration.
func (t *Trainer) Train(ctx context.Context, ds *dataset.Dataset, algorithm ml.Algorithm) (*Result, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: empty dataset", ErrTraining)
	}
	clf, err := t.classifier(algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTraining, err)
	}
	start := t.now()
	x, y := ds.X(), ds.Labels()
	n := len(x)
	split := Split(n)

	if f, ok := clf.(*ml.Forest); ok {
		f.Progress = func(done, total int) {
			elapsed := t.now().Sub(start).Seconds()
			eta := elapsed/(float64(done)/float64(total)) - elapsed
			t.sink.Emit(ctx, progress.New(progress.PhaseRFProgress, map[string]interface{}{
				"done":    done,
				"total":   total,
				"eta":     ml.Round(eta, 1),
				"horizon": ds.Horizon,
			}))
		}
	}
	if err := clf.Fit(x[:split], y[:split]); err != nil {
		return nil, fmt.Errorf("%w: fit %s: %v", ErrTraining, algorithm, err)
	}

	model := &ml.Model{
		Algorithm:  algorithm,
		Horizon:    ds.Horizon,
		Features:   append([]string(nil), ds.Columns...),
		Classifier: clf,
	}
	res := &Result{
		Model:        model,
		Samples:      n,
		Symbols:      ds.Symbols(),
		ClassBalance: ds.ClassBalance(),
	}
	res.Validation.TrainSize = split
	res.Validation.TrainReport = ml.NewReport(clf.PredictProba(x[:split]), y[:split], 0.5)

	xv, yv := x[split:], y[split:]
	if len(yv) > 0 && ml.BothClasses(yv) {
		t.validate(res, xv, yv)
	}

	res.FeatureStats = featureStats(ds.Columns, x)
	res.Importance, res.TopFeatures = rankImportance(ds.Columns, clf.FeatureImportance())

	if n > cvMinRows && ml.BothClasses(y) {
		folds, err := t.crossValidate(ctx, algorithm, x, y)
		if err != nil {
			return nil, err
		}
		res.Validation.CV = folds
		res.Validation.CVMeanAUC = meanFoldAUC(folds)
	}

	res.Duration = t.now().Sub(start)
	t.metrics.ObserveTraining(string(algorithm), ds.Horizon, res.Duration, n, res.Validation.AUC)
	t.log.Info("model trained",
		logger.String("algorithm", string(algorithm)),
		logger.Int("horizon", ds.Horizon),
		logger.Int("samples", n),
		logger.Int("val_size", res.Validation.ValSize),
		logger.Bool("calibrated", res.Validation.Calibrated),
		logger.Duration("elapsed_ms", res.Duration))
	return res, nil
}

func (t *Trainer) validate(res *Result, xv [][]float64, yv []int) {
	probs := res.Model.PredictRaw(xv)
	v := &res.Validation
	v.ValSize = len(yv)
	report := ml.NewReport(probs, yv, 0.5)
	v.Report = &report
	if auc, ok := ml.AUC(probs, yv); ok {
		v.AUC = &auc
	}
	brier := ml.Brier(probs, yv)
	v.Brier = &brier
	ll := ml.LogLoss(probs, yv)
	v.LogLoss = &ll
	res.ValProbs = probs
	res.ValLabels = append([]int(nil), yv...)

	if len(yv) < plattMinRows {
		return
	}
	platt, err := ml.FitPlatt(probs, yv)
	if err != nil {
		t.log.Warn("platt calibration skipped", logger.Int("horizon", res.Model.Horizon), logger.Error(err))
		return
	}
	res.Model.Calibration = platt
	v.Calibrated = true
}

// crossValidate runs expanding-window folds: the data is cut into
// folds+1 segments and fold i trains on the first i segments.
func (t *Trainer) crossValidate(ctx context.Context, algorithm ml.Algorithm, x [][]float64, y []int) ([]Fold, error) {
	n := len(x)
	folds := t.cfg.Folds
	seg := n / (folds + 1)
	var out []Fold
	for i := 1; i <= folds; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		trEnd := seg * i
		vaEnd := seg * (i + 1)
		if i == folds {
			vaEnd = n
		}
		if vaEnd-trEnd < 25 || trEnd < 50 {
			continue
		}
		yv := y[trEnd:vaEnd]
		if !ml.BothClasses(yv) {
			continue
		}
		t.sink.Emit(ctx, progress.New(progress.PhaseCVProgress, map[string]interface{}{
			"fold":  i,
			"folds": folds,
		}))
		clf, err := t.classifier(algorithm)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTraining, err)
		}
		if err := clf.Fit(x[:trEnd], y[:trEnd]); err != nil {
			t.log.Warn("cv fold failed", logger.Int("fold", i), logger.Error(err))
			continue
		}
		probs := clf.PredictProba(x[trEnd:vaEnd])
		f := Fold{Fold: i, TrainSize: trEnd, ValSize: vaEnd - trEnd}
		if auc, ok := ml.AUC(probs, yv); ok {
			f.AUC = &auc
		}
		brier := ml.Brier(probs, yv)
		f.Brier = &brier
		out = append(out, f)
	}
	return out, nil
}

// meanFoldAUC averages fold AUCs, counting a missing AUC as zero.
func meanFoldAUC(folds []Fold) *float64 {
	if len(folds) == 0 {
		return nil
	}
	s := 0.0
	for _, f := range folds {
		if f.AUC != nil {
			s += *f.AUC
		}
	}
	m := s / float64(len(folds))
	return &m
}

func featureStats(cols []string, x [][]float64) map[string]FeatureStat {
	out := make(map[string]FeatureStat, len(cols))
	col := make([]float64, len(x))
	for j, name := range cols {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, std := ml.MeanStd(col)
		out[name] = FeatureStat{Mean: mean, Std: std}
	}
	return out
}

func rankImportance(cols []string, weights []float64) ([]Importance, []string) {
	if len(weights) != len(cols) {
		return nil, nil
	}
	imp := make([]Importance, len(cols))
	for i, c := range cols {
		imp[i] = Importance{Feature: c, Importance: weights[i]}
	}
	sort.SliceStable(imp, func(i, j int) bool { return imp[i].Importance > imp[j].Importance })
	top := make([]string, 0, topFeatures)
	for i := 0; i < len(imp) && i < topFeatures; i++ {
		top = append(top, imp[i].Feature)
	}
	return imp, top
}
