package dataset

import (
	"fmt"
	"math"
)

type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Validation is the viability report of a dataset. Only StatusFail gates
// training.
type Validation struct {
	Rows         int      `json:"rows"`
	Symbols      int      `json:"symbols"`
	PositiveRate *float64 `json:"positive_rate"`
	FeatureCount int      `json:"feature_count"`
	MissingRatio float64  `json:"missing_ratio"`
	Status       Status   `json:"status"`
}

// Validate applies the viability rules: fewer than 50 rows or 5 features
// warns, fewer than 10 rows fails.
func Validate(d *Dataset) Validation {
	if d == nil {
		return Validation{Status: StatusFail}
	}
	v := Validation{Rows: d.Len(), FeatureCount: len(d.Columns), Status: StatusOK}
	v.Symbols = len(d.Symbols())
	if v.Rows > 0 {
		pos := 0
		missing := 0
		for _, r := range d.Rows {
			pos += r.Label
			for _, x := range r.Features {
				if math.IsNaN(x) {
					missing++
				}
			}
		}
		rate := float64(pos) / float64(v.Rows)
		v.PositiveRate = &rate
		cells := v.Rows * max(v.FeatureCount, 1)
		v.MissingRatio = math.Round(float64(missing)/float64(cells)*1e4) / 1e4
	}
	if v.Rows < 50 || v.FeatureCount < 5 {
		v.Status = StatusWarn
	}
	if v.Rows < 10 {
		v.Status = StatusFail
	}
	return v
}

// Err returns ErrValidation for a failing report.
func (v Validation) Err() error {
	if v.Status == StatusFail {
		return fmt.Errorf("%w: %d rows, %d features", ErrValidation, v.Rows, v.FeatureCount)
	}
	return nil
}
