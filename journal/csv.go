package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rustyeddy/forecaster/iterative"
)

// CSV appends iterations and outcomes to two CSV files.
type CSV struct {
	iterations *csv.Writer
	outcomes   *csv.Writer
	itf, of    *os.File
}

var (
	iterationHeader = []string{"iteration", "training_cutoff_date", "validation_start_date", "validation_end_date", "lookback_days", "horizons", "avg_accuracy", "improvement", "predictions", "outcomes"}
	outcomeHeader   = []string{"iteration", "date", "symbol", "horizon", "prediction_class", "prediction_proba", "current_price", "target_date", "actual_class", "actual_return", "actual_price", "actual_date", "prediction_correct"}
)

func NewCSV(iterationsPath, outcomesPath string) (*CSV, error) {
	itf, err := os.Create(iterationsPath)
	if err != nil {
		return nil, err
	}
	of, err := os.Create(outcomesPath)
	if err != nil {
		itf.Close()
		return nil, err
	}

	iw := csv.NewWriter(itf)
	ow := csv.NewWriter(of)
	if err := iw.Write(iterationHeader); err != nil {
		return nil, err
	}
	if err := ow.Write(outcomeHeader); err != nil {
		return nil, err
	}
	iw.Flush()
	if err := iw.Error(); err != nil {
		return nil, err
	}
	ow.Flush()
	if err := ow.Error(); err != nil {
		return nil, err
	}
	return &CSV{iw, ow, itf, of}, nil
}

func (j *CSV) SaveIteration(rec *iterative.Record) error {
	improvement := ""
	if rec.ImprovementFromPrevious != nil {
		improvement = f(*rec.ImprovementFromPrevious)
	}
	hs := make([]string, len(rec.Horizons))
	for i, h := range rec.Horizons {
		hs[i] = strconv.Itoa(h)
	}
	err := j.iterations.Write([]string{
		strconv.Itoa(rec.Iteration),
		rec.TrainingCutoff,
		rec.ValidationStart,
		rec.ValidationEnd,
		strconv.Itoa(rec.LookbackDays),
		strings.Join(hs, " "),
		f(rec.AvgAccuracy),
		improvement,
		strconv.Itoa(len(rec.Predictions)),
		strconv.Itoa(len(rec.ActualResults)),
	})
	if err != nil {
		return err
	}
	j.iterations.Flush()
	if err := j.iterations.Error(); err != nil {
		return err
	}

	for _, o := range rec.ActualResults {
		err := j.outcomes.Write([]string{
			strconv.Itoa(rec.Iteration),
			o.Date,
			o.Symbol,
			strconv.Itoa(o.Horizon),
			strconv.Itoa(o.PredictionClass),
			f(o.PredictionProba),
			f(o.CurrentPrice),
			o.TargetDate,
			strconv.Itoa(o.ActualClass),
			f(o.ActualReturn),
			f(o.ActualPrice),
			o.ActualDate,
			strconv.FormatBool(o.PredictionCorrect),
		})
		if err != nil {
			return err
		}
	}
	j.outcomes.Flush()
	return j.outcomes.Error()
}

func (j *CSV) Close() error {
	j.iterations.Flush()
	if err := j.iterations.Error(); err != nil {
		return err
	}
	j.outcomes.Flush()
	if err := j.outcomes.Error(); err != nil {
		return err
	}
	if err := j.itf.Close(); err != nil {
		return err
	}
	return j.of.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
