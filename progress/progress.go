// Package progress carries training progress events from long-running
// pipelines to whoever is watching: logs, a UI callback or a Kafka topic.
package progress

import (
	"context"
	"sync"
	"time"
)

// Phases emitted by the training pipeline.
const (
	PhaseDatasetValidationStart  = "dataset_validation_start"
	PhaseDatasetValidationResult = "dataset_validation_result"
	PhaseRFProgress              = "rf_progress"
	PhaseCVProgress              = "cv_progress"
	PhaseMultiDatasetsBuilt      = "multi_datasets_built"
	PhaseMultiHorizonComplete    = "multi_horizon_complete"
	PhaseIterationStart          = "iteration_start"
	PhaseIterationComplete       = "iteration_complete"
	PhaseSaved                   = "saved"
)

// Event is one progress notification.
type Event struct {
	Phase  string                 `json:"phase"`
	Time   time.Time              `json:"ts"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// New stamps an event with the current time.
func New(phase string, fields map[string]interface{}) Event {
	return Event{Phase: phase, Time: time.Now().UTC(), Fields: fields}
}

// Sink receives events. Implementations must not block the pipeline for
// long and must swallow their own failures.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// Func adapts a callback to a Sink.
type Func func(Event)

func (f Func) Emit(_ context.Context, ev Event) {
	if f != nil {
		f(ev)
	}
}

// Nop drops everything.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, ev)
		}
	}
}

// Recorder keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of what was recorded.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Phase returns the recorded events with the given phase.
func (r *Recorder) Phase(phase string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Phase == phase {
			out = append(out, ev)
		}
	}
	return out
}
