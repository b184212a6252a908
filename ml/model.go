package ml

import (
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/forecaster/pkg/atomicfile"
)

// Model is a fitted classifier bound to its feature columns. It is not
// modified after training returns it.
type Model struct {
	Algorithm   Algorithm
	Horizon     int
	Features    []string
	Classifier  Classifier
	Calibration *Platt
}

// PredictRaw returns uncalibrated probabilities.
func (m *Model) PredictRaw(rows [][]float64) []float64 {
	return m.Classifier.PredictProba(rows)
}

// PredictProba returns probabilities with Platt scaling applied when the
// model carries a calibration.
func (m *Model) PredictProba(rows [][]float64) []float64 {
	out := m.PredictRaw(rows)
	if m.Calibration != nil {
		for i, p := range out {
			out[i] = m.Calibration.Apply(p)
		}
	}
	return out
}

// PredictOne scores a single feature row.
func (m *Model) PredictOne(row []float64) float64 {
	return m.PredictProba([][]float64{row})[0]
}

type modelJSON struct {
	Algorithm   Algorithm `json:"algorithm"`
	Horizon     int       `json:"horizon,omitempty"`
	Features    []string  `json:"features"`
	Calibration *Platt    `json:"calibration,omitempty"`
	Forest      *Forest   `json:"forest,omitempty"`
	Booster     *Booster  `json:"booster,omitempty"`
	Logistic    *Logistic `json:"logistic,omitempty"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	out := modelJSON{
		Algorithm:   m.Algorithm,
		Horizon:     m.Horizon,
		Features:    m.Features,
		Calibration: m.Calibration,
	}
	switch c := m.Classifier.(type) {
	case *Forest:
		out.Forest = c
	case *Booster:
		out.Booster = c
	case *Logistic:
		out.Logistic = c
	default:
		return nil, fmt.Errorf("cannot serialize classifier %T", m.Classifier)
	}
	return json.Marshal(out)
}

func (m *Model) UnmarshalJSON(b []byte) error {
	var in modelJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.Algorithm = in.Algorithm
	m.Horizon = in.Horizon
	m.Features = in.Features
	m.Calibration = in.Calibration
	switch {
	case in.Forest != nil:
		m.Classifier = in.Forest
	case in.Booster != nil:
		m.Classifier = in.Booster
	case in.Logistic != nil:
		m.Classifier = in.Logistic
	default:
		return fmt.Errorf("%w: model blob has no classifier", ErrUnknownAlgorithm)
	}
	return nil
}

// Save writes the model as JSON, replacing path atomically.
func (m *Model) Save(path string) error {
	return atomicfile.WriteJSON(path, m)
}

func Load(path string) (*Model, error) {
	m := &Model{}
	if err := atomicfile.ReadJSON(path, m); err != nil {
		return nil, err
	}
	return m, nil
}
