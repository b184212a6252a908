package iterative

import (
	"fmt"
	"math"

	"github.com/rustyeddy/forecaster/market"
)

// minWeight is the floor of a prediction's confidence weight.
const minWeight = 0.1

// Resolve joins p with the first close at or after its target date.
// It returns an ErrScoring error when the series has no such bar.
func Resolve(p Prediction, s market.Series, labelThreshold float64) (Outcome, error) {
	target, err := market.ParseDay(p.TargetDate)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrScoring, err)
	}
	c, ok := s.FirstAtOrAfter(target)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s has no bar on or after %s", ErrScoring, p.Symbol, p.TargetDate)
	}
	if p.CurrentPrice == 0 {
		return Outcome{}, fmt.Errorf("%w: %s has zero entry price", ErrScoring, p.Symbol)
	}
	ret := (c.Close - p.CurrentPrice) / p.CurrentPrice
	actual := 0
	if ret >= labelThreshold {
		actual = 1
	}
	return Outcome{
		Prediction:        p,
		ActualClass:       actual,
		ActualReturn:      ret,
		ActualPrice:       c.Close,
		ActualDate:        c.Date.Format(market.DateLayout),
		PredictionCorrect: p.PredictionClass == actual,
	}, nil
}

// Weight is a prediction's confidence: 0 at p=0.5, 1 at p=0 or 1,
// floored at 0.1.
func Weight(p float64) float64 {
	return math.Max(minWeight, math.Abs(p-0.5)*2)
}

// HorizonScore is the accuracy of one horizon's outcomes.
type HorizonScore struct {
	Correct  int
	Total    int
	Basic    float64
	Weighted float64
	Final    float64
}

// ScoreHorizon blends plain and confidence-weighted accuracy as
// (1-alpha)*basic + alpha*weighted. An empty slice scores zero.
func ScoreHorizon(outcomes []Outcome, alpha float64) HorizonScore {
	var hs HorizonScore
	if len(outcomes) == 0 {
		return hs
	}
	alpha = min(max(alpha, 0), 1)
	var wCorrect, wTotal float64
	for _, o := range outcomes {
		w := Weight(o.PredictionProba)
		wTotal += w
		if o.PredictionCorrect {
			hs.Correct++
			wCorrect += w
		}
	}
	hs.Total = len(outcomes)
	hs.Basic = float64(hs.Correct) / float64(hs.Total)
	if wTotal > 0 {
		hs.Weighted = wCorrect / wTotal
	}
	hs.Final = (1-alpha)*hs.Basic + alpha*hs.Weighted
	return hs
}

// Accuracy scores every horizon in horizons, including those without
// outcomes.
func Accuracy(outcomes []Outcome, horizons []int, alpha float64) map[int]float64 {
	by := map[int][]Outcome{}
	for _, o := range outcomes {
		by[o.Horizon] = append(by[o.Horizon], o)
	}
	out := make(map[int]float64, len(horizons))
	for _, h := range horizons {
		out[h] = ScoreHorizon(by[h], alpha).Final
	}
	return out
}

// Mean averages the values of m, zero when empty.
func Mean(m map[int]float64) float64 {
	if len(m) == 0 {
		return 0
	}
	s := 0.0
	for _, v := range m {
		s += v
	}
	return s / float64(len(m))
}
