// Package threshold picks decision thresholds for classifier
// probabilities and keeps the per-snapshot threshold set with its
// change history.
package threshold

import (
	"fmt"

	"github.com/rustyeddy/forecaster/ml"
)

// Metric is the objective maximized by Suggest.
type Metric string

const (
	F1                     Metric = "f1"
	Youden                 Metric = "youden"
	PrecisionRecallBalance Metric = "precision_recall_balance"
)

func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case F1, Youden, PrecisionRecallBalance:
		return m, nil
	case "":
		return F1, nil
	}
	return "", fmt.Errorf("unknown threshold metric %q", s)
}

const (
	gridLow   = 0.05
	gridHigh  = 0.95
	gridSteps = 19
)

// Grid returns the candidate thresholds, evenly spaced from 0.05 to 0.95.
func Grid() []float64 {
	out := make([]float64, gridSteps)
	step := (gridHigh - gridLow) / float64(gridSteps-1)
	for i := range out {
		out[i] = gridLow + float64(i)*step
	}
	out[gridSteps-1] = gridHigh
	return out
}

// Suggestion is the best grid threshold with its scores at that point.
type Suggestion struct {
	Threshold float64 `json:"threshold"`
	Score     float64 `json:"score"`
	F1        float64 `json:"f1"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// Suggest scans the grid predicting 1 when p >= t. A candidate replaces
// the current best only when its score is strictly greater, so the
// lowest threshold wins ties. It returns nil for empty or mismatched
// input. Unknown metrics score as F1.
func Suggest(probs []float64, labels []int, metric Metric) *Suggestion {
	if len(probs) == 0 || len(probs) != len(labels) {
		return nil
	}
	best := &Suggestion{Threshold: 0.5, Score: -1}
	for _, t := range Grid() {
		c := ml.ConfusionAtLeast(probs, labels, t)
		prec, rec := c.Precision(), c.Recall()
		var score float64
		switch metric {
		case Youden:
			score = rec + c.Specificity() - 1
		case PrecisionRecallBalance:
			score = 1 - abs(prec-rec)
		default:
			score = c.F1()
		}
		if score > best.Score {
			best = &Suggestion{
				Threshold: ml.Round(t, 3),
				Score:     ml.Round(score, 4),
				F1:        ml.Round(c.F1(), 4),
				Precision: ml.Round(prec, 4),
				Recall:    ml.Round(rec, 4),
			}
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
