package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/pkg/metrics"
	"github.com/rustyeddy/forecaster/predlog"
	"github.com/rustyeddy/forecaster/threshold"
)

// Status is the outcome of the latest monitoring pass.
type Status struct {
	At               time.Time    `json:"at"`
	Backfilled       int          `json:"backfilled"`
	Metrics          *Metrics     `json:"metrics"`
	Recent           *Recent      `json:"recent"`
	Threshold        *float64     `json:"threshold,omitempty"`
	ThresholdChanged bool         `json:"threshold_changed"`
	Drift            *DriftReport `json:"drift,omitempty"`
	DriftAlert       bool         `json:"drift_alert"`
}

// Monitor runs monitoring passes one at a time.
type Monitor struct {
	log            *predlog.Log
	thresholdsPath string
	recentN        int
	tracker        *DriftTracker
	recorder       *metrics.Recorder
	logger         *logger.Logger

	mu     sync.Mutex
	status Status
}

// New returns a monitor over the prediction log. thresholdsPath is the
// active snapshot's thresholds file; empty disables adaptation.
func New(log *predlog.Log, thresholdsPath string, tracker *DriftTracker, rec *metrics.Recorder, l *logger.Logger) *Monitor {
	if tracker == nil {
		tracker = NewDriftTracker(0, 0)
	}
	return &Monitor{
		log:            log,
		thresholdsPath: thresholdsPath,
		recentN:        DefaultRecent,
		tracker:        tracker,
		recorder:       rec,
		logger:         l,
	}
}

// Cycle backfills outcomes, recomputes live metrics and adapts the
// global threshold, persisting it when it moved.
func (m *Monitor) Cycle(ctx context.Context, series market.SeriesMap, now time.Time) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	st := Status{At: now.UTC(), Drift: m.status.Drift, DriftAlert: m.status.DriftAlert}
	n, err := Backfill(m.log, series, now)
	if err != nil {
		m.recorder.RecordError("backfill")
		return nil, fmt.Errorf("backfill: %w", err)
	}
	st.Backfilled = n
	m.recorder.AddBackfilled(n)

	entries, err := m.log.ReadAll()
	if err != nil {
		return nil, err
	}
	st.Metrics = ComputeMetrics(entries)
	st.Recent = SummarizeRecent(entries, m.recentN)
	if st.Metrics != nil {
		m.recorder.ObserveLive(st.Metrics.Precision, st.Metrics.Recall, st.Metrics.AUC, st.Metrics.Count)
	}

	if m.thresholdsPath != "" {
		changed, g, err := m.adapt(st.Metrics, now)
		if err != nil {
			m.recorder.RecordError("thresholds")
			return nil, err
		}
		st.Threshold, st.ThresholdChanged = g, changed
	}

	fields := []logger.Field{logger.Int("backfilled", n), logger.Bool("threshold_changed", st.ThresholdChanged)}
	if st.Metrics != nil {
		fields = append(fields, logger.Int("count", st.Metrics.Count), logger.Float("f1", st.Metrics.F1))
	}
	m.logger.Info("monitor cycle", fields...)
	m.status = st
	return &st, nil
}

func (m *Monitor) adapt(metrics *Metrics, now time.Time) (bool, *float64, error) {
	set, err := threshold.Load(m.thresholdsPath)
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Debug("no thresholds file", logger.String("path", m.thresholdsPath))
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	changed := AdaptThreshold(set, metrics, now)
	if changed {
		if err := set.Save(m.thresholdsPath); err != nil {
			return false, nil, err
		}
		m.logger.Info("global threshold adjusted", logger.Float("threshold", set.Global))
	}
	g := set.Global
	m.recorder.SetThreshold(g)
	return changed, &g, nil
}

// ObserveDrift records a drift report and reports whether drift has
// stayed high long enough to suggest retraining.
func (m *Monitor) ObserveDrift(r *DriftReport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		return m.status.DriftAlert
	}
	m.recorder.SetDrift(r.Mean)
	alert := m.tracker.Add(r.Mean)
	if alert && !m.status.DriftAlert {
		m.logger.Warn("sustained feature drift, retraining suggested",
			logger.Float("drift", r.Mean), logger.Float("high", m.tracker.High), logger.Int("sustain", m.tracker.Sustain))
	}
	m.status.Drift = r
	m.status.DriftAlert = alert
	return alert
}

// Status returns the latest pass.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// DriftHistory returns the retained drift readings.
func (m *Monitor) DriftHistory() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tracker.History()
}
