package ml

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// AUC is the area under the ROC curve. ok is false unless both classes
// are present and the lengths match.
func AUC(probs []float64, labels []int) (auc float64, ok bool) {
	if len(probs) != len(labels) || !BothClasses(labels) {
		return 0, false
	}
	y := append([]float64(nil), probs...)
	classes := make([]bool, len(labels))
	for i, l := range labels {
		classes[i] = l == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), true
}

// PairwiseAUC counts positive/negative pairs ranked correctly, ties
// counting one half.
func PairwiseAUC(probs []float64, labels []int) (float64, bool) {
	if len(probs) != len(labels) {
		return 0, false
	}
	var pos, neg []float64
	for i, p := range probs {
		if labels[i] == 1 {
			pos = append(pos, p)
		} else {
			neg = append(neg, p)
		}
	}
	if len(pos) == 0 || len(neg) == 0 {
		return 0, false
	}
	wins := 0.0
	for _, p := range pos {
		for _, q := range neg {
			switch {
			case q < p:
				wins++
			case q == p:
				wins += 0.5
			}
		}
	}
	return wins / float64(len(pos)*len(neg)), true
}

// Brier is the mean squared error of the probabilities.
func Brier(probs []float64, labels []int) float64 {
	if len(probs) == 0 {
		return 0
	}
	s := 0.0
	for i, p := range probs {
		d := p - float64(labels[i])
		s += d * d
	}
	return s / float64(len(probs))
}

// LogLoss is the mean binary cross-entropy with probabilities clipped
// away from 0 and 1.
func LogLoss(probs []float64, labels []int) float64 {
	if len(probs) == 0 {
		return 0
	}
	const eps = 1e-15
	s := 0.0
	for i, p := range probs {
		p = math.Min(1-eps, math.Max(eps, p))
		if labels[i] == 1 {
			s -= math.Log(p)
		} else {
			s -= math.Log(1 - p)
		}
	}
	return s / float64(len(probs))
}

// MeanStd returns the population mean and standard deviation.
func MeanStd(x []float64) (mean, std float64) {
	if len(x) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(x, nil)
}

// Confusion counts outcomes of a thresholded classifier.
type Confusion struct {
	TP, FP, FN, TN int
}

// ConfusionAbove predicts 1 when p > t.
func ConfusionAbove(probs []float64, labels []int, t float64) Confusion {
	return tally(probs, labels, func(p float64) bool { return p > t })
}

// ConfusionAtLeast predicts 1 when p >= t.
func ConfusionAtLeast(probs []float64, labels []int, t float64) Confusion {
	return tally(probs, labels, func(p float64) bool { return p >= t })
}

func tally(probs []float64, labels []int, positive func(float64) bool) Confusion {
	var c Confusion
	for i, p := range probs {
		pred := positive(p)
		switch {
		case pred && labels[i] == 1:
			c.TP++
		case pred:
			c.FP++
		case labels[i] == 1:
			c.FN++
		default:
			c.TN++
		}
	}
	return c
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func (c Confusion) Precision() float64   { return ratio(c.TP, c.TP+c.FP) }
func (c Confusion) Recall() float64      { return ratio(c.TP, c.TP+c.FN) }
func (c Confusion) Specificity() float64 { return ratio(c.TN, c.TN+c.FP) }
func (c Confusion) Total() int           { return c.TP + c.FP + c.FN + c.TN }
func (c Confusion) Accuracy() float64    { return ratio(c.TP+c.TN, c.Total()) }

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// ClassStats is one row of a classification report.
type ClassStats struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1-score"`
	Support   int     `json:"support"`
}

// Report summarizes per-class precision and recall.
type Report struct {
	Negative    ClassStats `json:"0"`
	Positive    ClassStats `json:"1"`
	Accuracy    float64    `json:"accuracy"`
	MacroAvg    ClassStats `json:"macro avg"`
	WeightedAvg ClassStats `json:"weighted avg"`
}

// NewReport builds a report predicting 1 when p > t.
func NewReport(probs []float64, labels []int, t float64) Report {
	c := ConfusionAbove(probs, labels, t)
	flip := Confusion{TP: c.TN, FP: c.FN, FN: c.FP, TN: c.TP}
	pos := ClassStats{Precision: c.Precision(), Recall: c.Recall(), F1: c.F1(), Support: c.TP + c.FN}
	neg := ClassStats{Precision: flip.Precision(), Recall: flip.Recall(), F1: flip.F1(), Support: c.TN + c.FP}
	n := pos.Support + neg.Support
	r := Report{Negative: neg, Positive: pos, Accuracy: c.Accuracy()}
	r.MacroAvg = ClassStats{
		Precision: (pos.Precision + neg.Precision) / 2,
		Recall:    (pos.Recall + neg.Recall) / 2,
		F1:        (pos.F1 + neg.F1) / 2,
		Support:   n,
	}
	if n > 0 {
		wp, wn := float64(pos.Support)/float64(n), float64(neg.Support)/float64(n)
		r.WeightedAvg = ClassStats{
			Precision: wp*pos.Precision + wn*neg.Precision,
			Recall:    wp*pos.Recall + wn*neg.Recall,
			F1:        wp*pos.F1 + wn*neg.F1,
			Support:   n,
		}
	}
	return r
}

// BothClasses reports whether labels contain a 0 and a 1.
func BothClasses(labels []int) bool {
	var pos, neg bool
	for _, l := range labels {
		if l == 1 {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return true
		}
	}
	return false
}

// Round rounds v to d decimal places.
func Round(v float64, d int) float64 {
	p := math.Pow(10, float64(d))
	return math.Round(v*p) / p
}
