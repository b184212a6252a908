// Package journal persists iterative training runs: the JSON artifact
// triple per iteration, plus SQLite and CSV journals for querying
// iterations and scored predictions across runs.
package journal

import (
	"errors"

	"github.com/rustyeddy/forecaster/iterative"
)

// Journal records completed iterations.
type Journal interface {
	iterative.Store
	Close() error
}

// Multi fans an iteration out to several journals. Every journal sees
// the record; the errors are joined.
type Multi []Journal

func (m Multi) SaveIteration(rec *iterative.Record) error {
	var errs []error
	for _, j := range m {
		if err := j.SaveIteration(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, j := range m {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
