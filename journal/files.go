package journal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rustyeddy/forecaster/iterative"
	"github.com/rustyeddy/forecaster/pkg/atomicfile"
)

// Summary is the content of iteration_NN_YYYYMMDD.json.
type Summary struct {
	*iterative.Record
	PredictionsCount   int `json:"predictions_count"`
	ActualResultsCount int `json:"actual_results_count"`
}

// Files writes each iteration as a summary file, plus its predictions
// and scored outcomes when there are any.
type Files struct {
	dir string
}

func NewFiles(dir string) *Files {
	return &Files{dir: dir}
}

func (f *Files) Dir() string { return f.dir }

func (f *Files) SaveIteration(rec *iterative.Record) error {
	base := filepath.Join(f.dir, rec.ArtifactName())
	sum := Summary{Record: rec, PredictionsCount: len(rec.Predictions), ActualResultsCount: len(rec.ActualResults)}
	if err := atomicfile.WriteJSON(base+".json", sum); err != nil {
		return fmt.Errorf("write iteration %d: %w", rec.Iteration, err)
	}
	if len(rec.Predictions) > 0 {
		if err := atomicfile.WriteJSON(base+"_predictions.json", rec.Predictions); err != nil {
			return fmt.Errorf("write iteration %d predictions: %w", rec.Iteration, err)
		}
	}
	if len(rec.ActualResults) > 0 {
		if err := atomicfile.WriteJSON(base+"_actual_results.json", rec.ActualResults); err != nil {
			return fmt.Errorf("write iteration %d outcomes: %w", rec.Iteration, err)
		}
	}
	return nil
}

func (f *Files) Close() error { return nil }

// ReadSummaries loads every iteration summary in dir ordered by
// iteration.
func ReadSummaries(dir string) ([]Summary, error) {
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "iteration_") || !strings.HasSuffix(name, ".json") ||
			strings.HasSuffix(name, "_predictions.json") || strings.HasSuffix(name, "_actual_results.json") {
			continue
		}
		s := Summary{Record: &iterative.Record{}}
		if err := atomicfile.ReadJSON(filepath.Join(dir, name), &s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Iteration < out[j].Iteration })
	return out, nil
}

// ReadOutcomes loads the scored predictions written next to a summary.
func ReadOutcomes(dir string, rec *iterative.Record) ([]iterative.Outcome, error) {
	var out []iterative.Outcome
	err := atomicfile.ReadJSON(filepath.Join(dir, rec.ArtifactName()+"_actual_results.json"), &out)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return out, err
}
