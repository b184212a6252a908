package monitor

import (
	"math"
	"sort"

	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/trainer"
)

// DriftSample is the latest feature vector seen for a symbol.
type DriftSample struct {
	Symbol   string             `json:"symbol"`
	Features map[string]float64 `json:"features"`
	AgeSec   float64            `json:"age_sec"`
}

// DriftReport is the mean absolute z-score of live features against the
// training statistics.
type DriftReport struct {
	PerSymbol map[string]float64 `json:"per_symbol"`
	Mean      float64            `json:"mean"`
	Symbols   int                `json:"symbols"`
}

// SymbolDrift is the mean |z| over the features present in both sample
// and stats with a positive std. ok is false when none qualifies.
func SymbolDrift(s DriftSample, stats map[string]trainer.FeatureStat) (float64, bool) {
	sum, n := 0.0, 0
	for name, v := range s.Features {
		st, ok := stats[name]
		if !ok || st.Std <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += math.Abs((v - st.Mean) / st.Std)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Drift scores every sample and averages them. It returns nil when no
// sample overlaps the statistics.
func Drift(samples []DriftSample, stats map[string]trainer.FeatureStat) *DriftReport {
	r := &DriftReport{PerSymbol: map[string]float64{}}
	sum := 0.0
	for _, s := range samples {
		d, ok := SymbolDrift(s, stats)
		if !ok {
			continue
		}
		r.PerSymbol[s.Symbol] = ml.Round(d, 4)
		sum += d
		r.Symbols++
	}
	if r.Symbols == 0 {
		return nil
	}
	r.Mean = ml.Round(sum/float64(r.Symbols), 4)
	return r
}

// Top returns up to n symbols with the highest drift, highest first.
func (r *DriftReport) Top(n int) []string {
	syms := make([]string, 0, len(r.PerSymbol))
	for s := range r.PerSymbol {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		a, b := r.PerSymbol[syms[i]], r.PerSymbol[syms[j]]
		if a != b {
			return a > b
		}
		return syms[i] < syms[j]
	})
	if len(syms) > n {
		syms = syms[:n]
	}
	return syms
}

// Drift alert defaults.
const (
	DefaultDriftHistory = 30
	DefaultDriftHigh    = 1.25
	DefaultDriftSustain = 5
)

// DriftTracker keeps recent drift readings and flags a sustained run of
// high values. The flag is advisory.
type DriftTracker struct {
	High    float64
	Sustain int
	Size    int
	history []float64
}

func NewDriftTracker(high float64, sustain int) *DriftTracker {
	if high <= 0 {
		high = DefaultDriftHigh
	}
	if sustain <= 0 {
		sustain = DefaultDriftSustain
	}
	return &DriftTracker{High: high, Sustain: sustain, Size: DefaultDriftHistory}
}

// Add records v and reports whether the last Sustain readings all
// exceed High.
func (t *DriftTracker) Add(v float64) bool {
	t.history = append(t.history, v)
	if len(t.history) > t.Size {
		t.history = t.history[len(t.history)-t.Size:]
	}
	return t.Sustained()
}

func (t *DriftTracker) Sustained() bool {
	if len(t.history) < t.Sustain {
		return false
	}
	for _, v := range t.history[len(t.history)-t.Sustain:] {
		if v <= t.High {
			return false
		}
	}
	return true
}

// History returns a copy of the retained readings, oldest first.
func (t *DriftTracker) History() []float64 {
	return append([]float64(nil), t.history...)
}
