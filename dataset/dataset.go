// Package dataset assembles labeled training rows for one forecast horizon
// from many symbols' price series.
package dataset

import (
	"errors"
	"math"
	"sort"
	"time"
)

var (
	// ErrDataset means no symbol produced a single training row.
	ErrDataset = errors.New("no training data")
	// ErrValidation means the dataset failed viability checks.
	ErrValidation = errors.New("dataset validation failed")
)

// Row is one labeled observation.
type Row struct {
	Symbol   string    `json:"symbol"`
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Features []float64 `json:"features"`
	Label    int       `json:"label"`
}

// Dataset is the concatenation of every retained symbol's rows, in
// sorted-symbol order and date order within a symbol.
type Dataset struct {
	Horizon int      `json:"horizon"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// X returns the feature matrix; rows alias the dataset's slices.
func (d *Dataset) X() [][]float64 {
	out := make([][]float64, len(d.Rows))
	for i := range d.Rows {
		out[i] = d.Rows[i].Features
	}
	return out
}

func (d *Dataset) Labels() []int {
	out := make([]int, len(d.Rows))
	for i := range d.Rows {
		out[i] = d.Rows[i].Label
	}
	return out
}

// Symbols returns the distinct symbols present, sorted.
func (d *Dataset) Symbols() []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range d.Rows {
		if !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	sort.Strings(out)
	return out
}

// MaxDate returns the latest row date.
func (d *Dataset) MaxDate() time.Time {
	var m time.Time
	for _, r := range d.Rows {
		if r.Date.After(m) {
			m = r.Date
		}
	}
	return m
}

// Slice returns rows [from, to) sharing the underlying storage.
func (d *Dataset) Slice(from, to int) *Dataset {
	return &Dataset{Horizon: d.Horizon, Columns: d.Columns, Rows: d.Rows[from:to]}
}

// ClassBalance summarizes label frequencies.
type ClassBalance struct {
	PositiveRate float64 `json:"positive_rate"`
	Positives    int     `json:"n_pos"`
	Total        int     `json:"n_total"`
}

func (d *Dataset) ClassBalance() ClassBalance {
	cb := ClassBalance{Total: d.Len()}
	for _, r := range d.Rows {
		cb.Positives += r.Label
	}
	if cb.Total > 0 {
		cb.PositiveRate = math.Round(float64(cb.Positives)/float64(cb.Total)*1e4) / 1e4
	}
	return cb
}
