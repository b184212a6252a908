package threshold

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rustyeddy/forecaster/pkg/atomicfile"
)

// FileName is the name of the threshold file inside a registry snapshot.
const FileName = "thresholds.json"

// TimeLayout stamps created_at and history entries.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// DefaultGlobal applies when no validation data produced a suggestion.
const DefaultGlobal = 0.5

// History entry types.
const (
	InitialGlobal  = "initial_global"
	InitialHorizon = "initial_horizon"
	AdaptiveInc    = "adaptive_inc"
	AdaptiveDec    = "adaptive_dec"
)

// MinChange is the smallest global adjustment that is applied.
const MinChange = 0.005

// Change is one history entry. Initial entries carry Threshold and F1,
// adaptive ones Prev, New and Reason.
type Change struct {
	TS        string   `json:"ts"`
	Type      string   `json:"type"`
	Metric    string   `json:"metric,omitempty"`
	Horizon   *int     `json:"horizon,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
	F1        *float64 `json:"f1,omitempty"`
	Prev      *float64 `json:"prev,omitempty"`
	New       *float64 `json:"new,omitempty"`
	Reason    string   `json:"reason,omitempty"`
}

// Set is the decision thresholds of one model snapshot. History is
// append-only.
type Set struct {
	CreatedAt       string          `json:"created_at"`
	Global          float64         `json:"global"`
	PerHorizon      map[int]float64 `json:"per_horizon"`
	OptimizedMetric Metric          `json:"optimized_metric"`
	History         []Change        `json:"history"`
}

// Sample is a validation slice: probabilities and their true labels.
type Sample struct {
	Probs  []float64
	Labels []int
}

func stamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Initial suggests a global threshold from global and one per horizon
// from horizons. Empty samples are skipped; the global falls back to
// DefaultGlobal.
func Initial(now time.Time, metric Metric, global Sample, horizons map[int]Sample) *Set {
	s := &Set{
		CreatedAt:       stamp(now),
		Global:          DefaultGlobal,
		PerHorizon:      map[int]float64{},
		OptimizedMetric: metric,
	}
	if best := Suggest(global.Probs, global.Labels, metric); best != nil {
		s.Global = best.Threshold
		s.History = append(s.History, Change{
			TS: s.CreatedAt, Type: InitialGlobal, Metric: string(metric),
			Threshold: ptr(best.Threshold), F1: ptr(best.F1),
		})
	}
	hs := make([]int, 0, len(horizons))
	for h := range horizons {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	for _, h := range hs {
		best := Suggest(horizons[h].Probs, horizons[h].Labels, metric)
		if best == nil {
			continue
		}
		h := h
		s.PerHorizon[h] = best.Threshold
		s.History = append(s.History, Change{
			TS: s.CreatedAt, Type: InitialHorizon, Horizon: &h,
			Threshold: ptr(best.Threshold), F1: ptr(best.F1),
		})
	}
	return s
}

// For returns the threshold of a horizon, falling back to the global one.
func (s *Set) For(horizon int) float64 {
	if t, ok := s.PerHorizon[horizon]; ok {
		return t
	}
	return s.Global
}

// Adjust moves the global threshold to next and records why. Changes
// smaller than MinChange are ignored and reported as false.
func (s *Set) Adjust(next float64, kind, reason string, now time.Time) bool {
	prev := s.Global
	if math.Abs(next-prev) < MinChange {
		return false
	}
	s.Global = next
	s.History = append(s.History, Change{
		TS: stamp(now), Type: kind, Prev: ptr(prev), New: ptr(next), Reason: reason,
	})
	return true
}

func (s *Set) UnmarshalJSON(b []byte) error {
	type plain Set
	var in struct {
		plain
		Global *float64 `json:"global"`
	}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*s = Set(in.plain)
	s.Global = DefaultGlobal
	if in.Global != nil {
		s.Global = *in.Global
	}
	if s.PerHorizon == nil {
		s.PerHorizon = map[int]float64{}
	}
	return nil
}

// Save writes the set atomically.
func (s *Set) Save(path string) error {
	if err := atomicfile.WriteJSON(path, s); err != nil {
		return fmt.Errorf("save thresholds: %w", err)
	}
	return nil
}

func Load(path string) (*Set, error) {
	s := &Set{}
	if err := atomicfile.ReadJSON(path, s); err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}
	return s, nil
}

func ptr(v float64) *float64 { return &v }
