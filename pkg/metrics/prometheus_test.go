package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	auc := 0.62
	r.ObserveTraining("rf", 5, 2*time.Second, 480, &auc)
	r.ObserveIteration(map[int]float64{1: 0.55, 5: 0.6})
	r.ObserveLive(0.5, 0.4, nil, 210)
	r.SetThreshold(0.52)
	r.AddBackfilled(3)
	r.RecordError("training")

	assert.Equal(t, 0.62, testutil.ToFloat64(r.horizonAUC.WithLabelValues("rf", "5")))
	assert.Equal(t, 480.0, testutil.ToFloat64(r.horizonSamples.WithLabelValues("5")))
	assert.Equal(t, 0.6, testutil.ToFloat64(r.iterAccuracy.WithLabelValues("5")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.iterations))
	assert.Equal(t, 210.0, testutil.ToFloat64(r.liveCount))
	assert.Equal(t, 0.52, testutil.ToFloat64(r.globalThreshold))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.backfilled))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("training")))
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.ObserveLive(1, 1, nil, 1)
		r.RecordError("x")
	})
}
