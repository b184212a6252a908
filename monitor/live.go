// Package monitor tracks live prediction quality: it backfills realized
// outcomes into the prediction log, scores finalized predictions, nudges
// the global decision threshold and measures feature drift.
package monitor

import (
	"fmt"
	"time"

	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/predlog"
	"github.com/rustyeddy/forecaster/threshold"
)

// SuccessMove is the fixed rise over the logged price that counts as a
// realized success.
const SuccessMove = 0.01

// Backfill sets realized outcomes on entries whose horizons are all due
// on or before today and have a bar on or after their due date. A
// horizon is a success when that bar closes at least SuccessMove above
// the logged price. Entries with anything pending are left alone.
func Backfill(log *predlog.Log, series market.SeriesMap, today time.Time) (int, error) {
	today = market.Day(today)
	return log.Update(func(entries []*predlog.Entry) int {
		n := 0
		for _, e := range entries {
			if realize(e, series, today) {
				n++
			}
		}
		return n
	})
}

func realize(e *predlog.Entry, series market.SeriesMap, today time.Time) bool {
	if e.Realized != nil || len(e.FutureDue) == 0 || e.Price == nil || *e.Price == 0 {
		return false
	}
	s, ok := series[e.Symbol]
	if !ok {
		return false
	}
	out := make(map[int]int, len(e.FutureDue))
	for h, due := range e.FutureDue {
		d, err := market.ParseDay(due)
		if err != nil || d.After(today) {
			return false
		}
		c, ok := s.FirstAtOrAfter(d)
		if !ok {
			return false
		}
		out[h] = 0
		if c.Close >= *e.Price*(1+SuccessMove) {
			out[h] = 1
		}
	}
	e.Realized = out
	return true
}

// Metrics scores finalized predictions at a 0.5 cut-off.
type Metrics struct {
	Count     int      `json:"count"`
	Precision float64  `json:"precision"`
	Recall    float64  `json:"recall"`
	F1        float64  `json:"f1"`
	AUC       *float64 `json:"auc"`
}

// ComputeMetrics labels each finalized entry 1 when any horizon was a
// success. It returns nil when nothing is finalized.
func ComputeMetrics(entries []predlog.Entry) *Metrics {
	var probs []float64
	var labels []int
	for _, e := range entries {
		if !e.Finalized() {
			continue
		}
		label := 0
		for _, v := range e.Realized {
			if v == 1 {
				label = 1
				break
			}
		}
		probs = append(probs, *e.Prob)
		labels = append(labels, label)
	}
	if len(probs) == 0 {
		return nil
	}
	c := ml.ConfusionAtLeast(probs, labels, 0.5)
	m := &Metrics{
		Count:     len(probs),
		Precision: ml.Round(c.Precision(), 4),
		Recall:    ml.Round(c.Recall(), 4),
		F1:        ml.Round(c.F1(), 4),
	}
	auc, ok := ml.AUC(probs, labels)
	if !ok {
		auc, ok = ml.PairwiseAUC(probs, labels)
	}
	if ok {
		auc = ml.Round(auc, 4)
		m.AUC = &auc
	}
	return m
}

// Recent summarizes the newest predictions.
type Recent struct {
	RecentPreds int     `json:"recent_preds"`
	PctGE05     float64 `json:"pct_ge_0_5"`
}

// DefaultRecent is the window SummarizeRecent uses by default.
const DefaultRecent = 200

// SummarizeRecent reports the share of the last lastN entries with a
// probability of at least 0.5, or nil when none has a probability.
func SummarizeRecent(entries []predlog.Entry, lastN int) *Recent {
	if lastN <= 0 {
		lastN = DefaultRecent
	}
	if len(entries) > lastN {
		entries = entries[len(entries)-lastN:]
	}
	r := &Recent{}
	pos := 0
	for _, e := range entries {
		if e.Prob == nil {
			continue
		}
		r.RecentPreds++
		if *e.Prob >= 0.5 {
			pos++
		}
	}
	if r.RecentPreds == 0 {
		return nil
	}
	r.PctGE05 = ml.Round(float64(pos)/float64(r.RecentPreds), 3)
	return r
}

// Adaptive threshold rule.
const (
	AdaptMinCount      = 200
	AdaptLowPrecision  = 0.40
	AdaptHighPrecision = 0.65
	AdaptStep          = 0.02
	AdaptCeiling       = 0.90
	AdaptFloor         = 0.30
)

// AdaptThreshold raises the global threshold when live precision is low
// and lowers it when precision is high, once enough predictions are
// finalized. It reports whether set changed.
func AdaptThreshold(set *threshold.Set, m *Metrics, now time.Time) bool {
	if set == nil || m == nil || m.Count < AdaptMinCount {
		return false
	}
	g := set.Global
	reason := fmt.Sprintf("precision %v", m.Precision)
	switch {
	case m.Precision < AdaptLowPrecision:
		return set.Adjust(min(g+AdaptStep, AdaptCeiling), threshold.AdaptiveInc, reason, now)
	case m.Precision > AdaptHighPrecision:
		return set.Adjust(max(g-AdaptStep, AdaptFloor), threshold.AdaptiveDec, reason, now)
	}
	return false
}
