// Package features turns a daily price series into a labeled feature
// matrix for one forecast horizon.
package features

import (
	"errors"
	"time"

	"github.com/rustyeddy/forecaster/market"
)

// ErrNoFeatures is returned when a series is too short to produce a
// complete feature row.
var ErrNoFeatures = errors.New("no complete feature row")

// Frame is a feature matrix aligned with bar dates. Labels is nil for
// unlabeled frames.
type Frame struct {
	Columns []string
	Dates   []time.Time
	Closes  []float64
	X       [][]float64
	Labels  []int
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.X)
}

// Engineer computes features for one symbol. Implementations must only
// read bars at or before each row's date when building that row's
// features; labels may look ahead by horizon bars.
type Engineer interface {
	Columns() []string
	Compute(s market.Series, horizon int) (*Frame, error)
	Latest(s market.Series) (time.Time, []float64, error)
}
