package journal

const Schema = `
CREATE TABLE IF NOT EXISTS iterations (
	run_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	training_cutoff_date TEXT NOT NULL,
	validation_start_date TEXT NOT NULL,
	validation_end_date TEXT NOT NULL,
	lookback_days INTEGER NOT NULL,
	horizons TEXT NOT NULL,
	accuracy_by_horizon TEXT NOT NULL,
	avg_accuracy REAL NOT NULL,
	improvement REAL,
	predictions INTEGER NOT NULL,
	outcomes INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL,
	PRIMARY KEY (run_id, iteration)
);

CREATE TABLE IF NOT EXISTS outcomes (
	run_id TEXT NOT NULL,
	iteration INTEGER NOT NULL,
	date TEXT NOT NULL,
	symbol TEXT NOT NULL,
	horizon INTEGER NOT NULL,
	prediction_class INTEGER NOT NULL,
	prediction_proba REAL NOT NULL,
	current_price REAL NOT NULL,
	target_date TEXT NOT NULL,
	actual_class INTEGER NOT NULL,
	actual_return REAL NOT NULL,
	actual_price REAL NOT NULL,
	actual_date TEXT NOT NULL,
	prediction_correct INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id, iteration, horizon);
`
