package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rustyeddy/forecaster/iterative"
)

// SQLite journals one run's iterations and outcomes.
type SQLite struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// NewSQLite opens (or creates) the database at path. Records saved
// through it are tagged with runID.
func NewSQLite(path, runID string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db, runID: runID, now: time.Now}, nil
}

func (j *SQLite) RunID() string { return j.runID }

// SaveIteration stores the record and its outcomes in one transaction,
// replacing an earlier copy of the same iteration.
func (j *SQLite) SaveIteration(rec *iterative.Record) error {
	horizons, err := json.Marshal(rec.Horizons)
	if err != nil {
		return err
	}
	acc, err := json.Marshal(rec.AccuracyByHorizon)
	if err != nil {
		return err
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM outcomes WHERE run_id = ? AND iteration = ?`, j.runID, rec.Iteration); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO iterations
		(run_id, iteration, training_cutoff_date, validation_start_date, validation_end_date,
		 lookback_days, horizons, accuracy_by_horizon, avg_accuracy, improvement,
		 predictions, outcomes, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.runID, rec.Iteration, rec.TrainingCutoff, rec.ValidationStart, rec.ValidationEnd,
		rec.LookbackDays, string(horizons), string(acc), rec.AvgAccuracy, rec.ImprovementFromPrevious,
		len(rec.Predictions), len(rec.ActualResults), j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert iteration %d: %w", rec.Iteration, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO outcomes
		(run_id, iteration, date, symbol, horizon, prediction_class, prediction_proba, current_price,
		 target_date, actual_class, actual_return, actual_price, actual_date, prediction_correct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, o := range rec.ActualResults {
		if _, err := stmt.Exec(
			j.runID, rec.Iteration, o.Date, o.Symbol, o.Horizon, o.PredictionClass, o.PredictionProba,
			o.CurrentPrice, o.TargetDate, o.ActualClass, o.ActualReturn, o.ActualPrice, o.ActualDate,
			o.PredictionCorrect,
		); err != nil {
			return fmt.Errorf("insert outcome %s %s: %w", o.Symbol, o.Date, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
