// Package iterative re-trains horizon models on an expanding history,
// scores them on the business days after each training cutoff and stops
// once accuracy reaches a target or stops improving.
package iterative

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/ml"
)

var (
	// ErrLeakage means data from after the training cutoff reached
	// training, or a prediction was scored on a target inside it.
	ErrLeakage = errors.New("look-ahead leakage")
	// ErrScoring marks a prediction whose outcome cannot be resolved. It
	// is only logged.
	ErrScoring = errors.New("prediction cannot be scored")
	// ErrNoData means the series map has no bars at all.
	ErrNoData = errors.New("no price data")
)

// State is a step of the iteration state machine.
type State string

const (
	StateInit            State = "init"
	StateComputeWindow   State = "compute_window"
	StateTrain           State = "train"
	StatePredict         State = "predict"
	StateCollectOutcomes State = "collect_outcomes"
	StateScore           State = "score"
	StateDecide          State = "decide"
	StateTerminal        State = "terminal"
)

// Transition is one entry of the state log.
type Transition struct {
	Iteration int       `json:"iteration"`
	From      State     `json:"from"`
	To        State     `json:"to"`
	At        time.Time `json:"at"`
}

// StopReason says why the loop ended.
type StopReason string

const (
	StopTargetReached StopReason = "target_reached"
	StopPlateau       StopReason = "plateau"
	StopMaxIterations StopReason = "max_iterations"
	StopAborted       StopReason = "aborted"
	StopCancelled     StopReason = "cancelled"
)

// Config controls a run. Zero values are replaced by DefaultConfig's.
type Config struct {
	InitialLookbackDays    int          `json:"initial_lookback_days"`
	LookbackStep           int          `json:"lookback_step"`
	Horizons               []int        `json:"horizons"`
	MaxIterations          int          `json:"max_iterations"`
	TargetAccuracy         float64      `json:"target_accuracy"`
	MinAccuracyImprovement float64      `json:"min_accuracy_improvement"`
	LabelThreshold         float64      `json:"label_threshold"`
	BlendAlpha             float64      `json:"blend_alpha"`
	Algorithm              ml.Algorithm `json:"algorithm"`
	MinRows                int          `json:"min_rows"`
	ModelsDir              string       `json:"models_dir"`
}

func DefaultConfig() Config {
	return Config{
		InitialLookbackDays:    30,
		LookbackStep:           5,
		Horizons:               []int{1, 5, 10},
		MaxIterations:          10,
		TargetAccuracy:         0.70,
		MinAccuracyImprovement: 0.01,
		LabelThreshold:         features.DefaultLabelThreshold,
		BlendAlpha:             0.40,
		Algorithm:              ml.RandomForest,
		MinRows:                50,
	}
}

// withDefaults fills zero fields and clamps BlendAlpha into [0, 1].
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.InitialLookbackDays <= 0 {
		c.InitialLookbackDays = d.InitialLookbackDays
	}
	if c.LookbackStep <= 0 {
		c.LookbackStep = d.LookbackStep
	}
	if len(c.Horizons) == 0 {
		c.Horizons = d.Horizons
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = d.MaxIterations
	}
	if c.TargetAccuracy <= 0 {
		c.TargetAccuracy = d.TargetAccuracy
	}
	if c.LabelThreshold <= 0 {
		c.LabelThreshold = d.LabelThreshold
	}
	if c.Algorithm == "" {
		c.Algorithm = d.Algorithm
	}
	if c.MinRows <= 0 {
		c.MinRows = d.MinRows
	}
	c.BlendAlpha = min(max(c.BlendAlpha, 0), 1)
	return c
}

// Prediction is one scored (day, symbol, horizon) triple.
type Prediction struct {
	Date            string  `json:"date"`
	Symbol          string  `json:"symbol"`
	Horizon         int     `json:"horizon"`
	PredictionClass int     `json:"prediction_class"`
	PredictionProba float64 `json:"prediction_proba"`
	CurrentPrice    float64 `json:"current_price"`
	TargetDate      string  `json:"target_date"`
}

// Outcome is a prediction joined with what the market did.
type Outcome struct {
	Prediction
	ActualClass       int     `json:"actual_class"`
	ActualReturn      float64 `json:"actual_return"`
	ActualPrice       float64 `json:"actual_price"`
	ActualDate        string  `json:"actual_date"`
	PredictionCorrect bool    `json:"prediction_correct"`
}

// Record is one completed iteration. It is not modified once appended
// to a run's history.
type Record struct {
	Iteration               int             `json:"iteration"`
	TrainingCutoff          string          `json:"training_cutoff_date"`
	ValidationStart         string          `json:"validation_start_date"`
	ValidationEnd           string          `json:"validation_end_date"`
	ModelsTrained           map[int]string  `json:"models_trained"`
	Predictions             []Prediction    `json:"-"`
	ActualResults           []Outcome       `json:"-"`
	AccuracyByHorizon       map[int]float64 `json:"accuracy_by_horizon"`
	ImprovementFromPrevious *float64        `json:"improvement_from_previous"`
	Horizons                []int           `json:"horizons"`
	AvgAccuracy             float64         `json:"avg_accuracy"`
	LookbackDays            int             `json:"lookback_days"`
}

// ArtifactName is the base name of the iteration's summary file.
func (r *Record) ArtifactName() string {
	return fmt.Sprintf("iteration_%02d_%s", r.Iteration, compact(r.TrainingCutoff))
}

func compact(day string) string {
	out := make([]byte, 0, len(day))
	for i := 0; i < len(day); i++ {
		if day[i] != '-' {
			out = append(out, day[i])
		}
	}
	return string(out)
}

// Store persists completed iterations.
type Store interface {
	SaveIteration(rec *Record) error
}

// RunResult is the outcome of Run. Err is set when the loop aborted.
type RunResult struct {
	Records     []*Record
	Stop        StopReason
	Err         error
	Transitions []Transition
}

// Best returns the record with the highest average accuracy.
func (r *RunResult) Best() *Record {
	var best *Record
	for _, rec := range r.Records {
		if best == nil || rec.AvgAccuracy > best.AvgAccuracy {
			best = rec
		}
	}
	return best
}
