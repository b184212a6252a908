package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes training and live-monitoring gauges to Prometheus.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	trainDuration   *prometheus.HistogramVec
	horizonAUC      *prometheus.GaugeVec
	horizonSamples  *prometheus.GaugeVec
	iterAccuracy    *prometheus.GaugeVec
	iterations      prometheus.Counter
	livePrecision   prometheus.Gauge
	liveRecall      prometheus.Gauge
	liveAUC         prometheus.Gauge
	liveCount       prometheus.Gauge
	globalThreshold prometheus.Gauge
	drift           prometheus.Gauge
	backfilled      prometheus.Counter
	errorsTotal     *prometheus.CounterVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer for
// the process-wide registry or prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		trainDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forecaster_train_duration_seconds",
				Help:    "Time spent fitting one horizon model",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"algorithm", "horizon"},
		),
		horizonAUC: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecaster_validation_auc",
				Help: "Holdout AUC of the latest model per horizon",
			},
			[]string{"algorithm", "horizon"},
		),
		horizonSamples: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecaster_training_samples",
				Help: "Rows used to train the latest model per horizon",
			},
			[]string{"horizon"},
		),
		iterAccuracy: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "forecaster_iteration_accuracy",
				Help: "Blended accuracy of the latest walk-forward iteration",
			},
			[]string{"horizon"},
		),
		iterations: f.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_iterations_total",
			Help: "Completed walk-forward iterations",
		}),
		livePrecision: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_live_precision",
			Help: "Precision over finalized live predictions",
		}),
		liveRecall: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_live_recall",
			Help: "Recall over finalized live predictions",
		}),
		liveAUC: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_live_auc",
			Help: "AUC over finalized live predictions",
		}),
		liveCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_live_finalized",
			Help: "Finalized live predictions",
		}),
		globalThreshold: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_global_threshold",
			Help: "Current global decision threshold",
		}),
		drift: f.NewGauge(prometheus.GaugeOpts{
			Name: "forecaster_feature_drift",
			Help: "Mean absolute z-score of live features against training stats",
		}),
		backfilled: f.NewCounter(prometheus.CounterOpts{
			Name: "forecaster_backfilled_total",
			Help: "Prediction log entries finalized by backfill",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forecaster_errors_total",
				Help: "Errors by kind",
			},
			[]string{"kind"},
		),
	}
}

func (r *Recorder) ObserveTraining(algorithm string, horizon int, d time.Duration, samples int, auc *float64) {
	if r == nil {
		return
	}
	h := strconv.Itoa(horizon)
	r.trainDuration.WithLabelValues(algorithm, h).Observe(d.Seconds())
	r.horizonSamples.WithLabelValues(h).Set(float64(samples))
	if auc != nil {
		r.horizonAUC.WithLabelValues(algorithm, h).Set(*auc)
	}
}

func (r *Recorder) ObserveIteration(accuracy map[int]float64) {
	if r == nil {
		return
	}
	r.iterations.Inc()
	for h, acc := range accuracy {
		r.iterAccuracy.WithLabelValues(strconv.Itoa(h)).Set(acc)
	}
}

// ObserveLive records live metrics. auc may be nil.
func (r *Recorder) ObserveLive(precision, recall float64, auc *float64, count int) {
	if r == nil {
		return
	}
	r.livePrecision.Set(precision)
	r.liveRecall.Set(recall)
	r.liveCount.Set(float64(count))
	if auc != nil {
		r.liveAUC.Set(*auc)
	}
}

func (r *Recorder) SetThreshold(v float64) {
	if r == nil {
		return
	}
	r.globalThreshold.Set(v)
}

func (r *Recorder) SetDrift(v float64) {
	if r == nil {
		return
	}
	r.drift.Set(v)
}

func (r *Recorder) AddBackfilled(n int) {
	if r == nil {
		return
	}
	r.backfilled.Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	if r == nil {
		return
	}
	r.errorsTotal.WithLabelValues(kind).Inc()
}
