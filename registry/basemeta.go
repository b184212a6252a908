package registry

import (
	"time"

	"github.com/rustyeddy/forecaster/ensemble"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/trainer"
)

// BaseMeta collects the holdout outputs of c for stacking. Horizons are
// concatenated in ascending order so two containers trained on the same
// data line up row for row.
func BaseMeta(c *trainer.Container, now time.Time) ensemble.BaseMeta {
	m := ensemble.BaseMeta{
		Name:      string(c.Algorithm),
		Timestamp: now.UTC().Format(time.RFC3339),
	}
	cvSum, cvN := 0.0, 0
	for _, hr := range c.HorizonMeta {
		if hr.Result == nil || len(hr.ValProbs) == 0 {
			continue
		}
		m.Horizons = append(m.Horizons, hr.Horizon)
		m.ValProbs = append(m.ValProbs, hr.ValProbs...)
		m.ValLabels = append(m.ValLabels, hr.ValLabels...)
		if hr.Validation.CVMeanAUC != nil {
			cvSum += *hr.Validation.CVMeanAUC
			cvN++
		}
	}
	if auc, ok := ml.AUC(m.ValProbs, m.ValLabels); ok {
		auc = ml.Round(auc, 4)
		m.AUC = &auc
	} else if c.AggregateAUC != nil {
		v := *c.AggregateAUC
		m.AUC = &v
	}
	if cvN > 0 {
		v := ml.Round(cvSum/float64(cvN), 4)
		m.CVMeanAUC = &v
	}
	return m
}
