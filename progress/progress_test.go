package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/forecaster/pkg/logger"
)

func TestMultiAndRecorder(t *testing.T) {
	var rec Recorder
	var calls int
	sink := Multi{&rec, Func(func(Event) { calls++ }), nil, Nop{}}

	sink.Emit(context.Background(), New(PhaseRFProgress, map[string]interface{}{"done": 50}))
	sink.Emit(context.Background(), New(PhaseCVProgress, nil))

	assert.Equal(t, 2, calls)
	require.Len(t, rec.Events(), 2)
	got := rec.Phase(PhaseRFProgress)
	require.Len(t, got, 1)
	assert.Equal(t, 50, got[0].Fields["done"])
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	LogSink{Log: logger.NewWriter(&buf, "info")}.Emit(context.Background(),
		New(PhaseMultiHorizonComplete, map[string]interface{}{"horizon": 5}))
	assert.Contains(t, buf.String(), `"phase":"multi_horizon_complete"`)
	assert.Contains(t, buf.String(), `"horizon":5`)
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSink(t *testing.T) {
	fw := &fakeWriter{}
	s := &KafkaSink{w: fw, topic: "training", timeout: time.Second, log: logger.Nop()}

	s.Emit(context.Background(), New(PhaseSaved, map[string]interface{}{"path": "/tmp/x"}))
	require.Len(t, fw.msgs, 1)
	assert.Equal(t, "saved", string(fw.msgs[0].Key))

	var ev Event
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &ev))
	assert.Equal(t, "/tmp/x", ev.Fields["path"])

	fw.err = errors.New("broker down")
	assert.NotPanics(t, func() { s.Emit(context.Background(), New(PhaseSaved, nil)) })
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := NewKafkaSink(nil, "t", nil)
	assert.Error(t, err)
	_, err = NewKafkaSink([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
	s, err := NewKafkaSink([]string{"localhost:9092"}, "t", nil)
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}
