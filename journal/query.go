package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/forecaster/iterative"
)

// IterationRow is one row of the iterations table.
type IterationRow struct {
	RunID             string
	Iteration         int
	TrainingCutoff    string
	ValidationStart   string
	ValidationEnd     string
	LookbackDays      int
	Horizons          []int
	AccuracyByHorizon map[int]float64
	AvgAccuracy       float64
	Improvement       *float64
	Predictions       int
	Outcomes          int
}

// Runs lists the run IDs in the journal, oldest first.
func (j *SQLite) Runs() ([]string, error) {
	rows, err := j.db.Query(`
		SELECT run_id FROM iterations
		GROUP BY run_id
		ORDER BY MIN(recorded_at) ASC, run_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListIterations returns a run's iterations in order.
func (j *SQLite) ListIterations(runID string) ([]IterationRow, error) {
	rows, err := j.db.Query(`
		SELECT run_id, iteration, training_cutoff_date, validation_start_date, validation_end_date,
		       lookback_days, horizons, accuracy_by_horizon, avg_accuracy, improvement, predictions, outcomes
		FROM iterations
		WHERE run_id = ?
		ORDER BY iteration ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IterationRow
	for rows.Next() {
		var (
			rec           IterationRow
			horizons, acc string
			improvement   sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.Iteration,
			&rec.TrainingCutoff,
			&rec.ValidationStart,
			&rec.ValidationEnd,
			&rec.LookbackDays,
			&horizons,
			&acc,
			&rec.AvgAccuracy,
			&improvement,
			&rec.Predictions,
			&rec.Outcomes,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(horizons), &rec.Horizons); err != nil {
			return nil, fmt.Errorf("iteration %d horizons: %w", rec.Iteration, err)
		}
		if err := json.Unmarshal([]byte(acc), &rec.AccuracyByHorizon); err != nil {
			return nil, fmt.Errorf("iteration %d accuracy: %w", rec.Iteration, err)
		}
		if improvement.Valid {
			v := improvement.Float64
			rec.Improvement = &v
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListOutcomes returns a run's scored predictions. A zero iteration or
// horizon matches all.
func (j *SQLite) ListOutcomes(runID string, iteration, horizon int) ([]iterative.Outcome, error) {
	rows, err := j.db.Query(`
		SELECT date, symbol, horizon, prediction_class, prediction_proba, current_price, target_date,
		       actual_class, actual_return, actual_price, actual_date, prediction_correct
		FROM outcomes
		WHERE run_id = ? AND (? = 0 OR iteration = ?) AND (? = 0 OR horizon = ?)
		ORDER BY iteration ASC, date ASC, symbol ASC, horizon ASC`,
		runID, iteration, iteration, horizon, horizon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []iterative.Outcome
	for rows.Next() {
		var o iterative.Outcome
		if err := rows.Scan(
			&o.Date,
			&o.Symbol,
			&o.Horizon,
			&o.PredictionClass,
			&o.PredictionProba,
			&o.CurrentPrice,
			&o.TargetDate,
			&o.ActualClass,
			&o.ActualReturn,
			&o.ActualPrice,
			&o.ActualDate,
			&o.PredictionCorrect,
		); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// HitRate is the unweighted share of correct predictions.
type HitRate struct {
	Correct int
	Total   int
}

func (h HitRate) Rate() float64 {
	if h.Total == 0 {
		return 0
	}
	return float64(h.Correct) / float64(h.Total)
}

// HitRateByHorizon aggregates a run's outcomes per horizon.
func (j *SQLite) HitRateByHorizon(runID string) (map[int]HitRate, error) {
	rows, err := j.db.Query(`
		SELECT horizon, SUM(prediction_correct), COUNT(*)
		FROM outcomes
		WHERE run_id = ?
		GROUP BY horizon`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int]HitRate{}
	for rows.Next() {
		var h int
		var r HitRate
		if err := rows.Scan(&h, &r.Correct, &r.Total); err != nil {
			return nil, err
		}
		out[h] = r
	}
	return out, rows.Err()
}
