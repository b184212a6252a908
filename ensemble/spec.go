package ensemble

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/atomicfile"
)

// SpecFile is the file name of a persisted ensemble.
const SpecFile = "ensemble.json"

// Spec is the persisted outcome of an ensemble run. Weights is nil when
// the linear search found nothing; MetaAUC is nil when stacking failed.
type Spec struct {
	Weights map[string]float64 `json:"weights"`
	MetaAUC *float64           `json:"meta_auc"`
}

// Blend returns the weighted probability over the named base outputs.
// Every weighted model must be present in probs.
func (s *Spec) Blend(probs map[string]float64) (float64, error) {
	if len(s.Weights) == 0 {
		return 0, errors.New("ensemble has no weights")
	}
	total, sum := 0.0, 0.0
	for name, w := range s.Weights {
		p, ok := probs[name]
		if !ok {
			return 0, fmt.Errorf("ensemble: no probability for %s", name)
		}
		sum += w * p
		total += w
	}
	if total == 0 {
		return 0, errors.New("ensemble weights sum to zero")
	}
	return sum / total, nil
}

func (s *Spec) Save(dir string) error {
	return atomicfile.WriteJSON(filepath.Join(dir, SpecFile), s)
}

func LoadSpec(dir string) (*Spec, error) {
	s := &Spec{}
	if err := atomicfile.ReadJSON(filepath.Join(dir, SpecFile), s); err != nil {
		return nil, err
	}
	return s, nil
}

// BaseMetaFile names the validation output file of an algorithm.
func BaseMetaFile(dir string, a ml.Algorithm) string {
	return filepath.Join(dir, fmt.Sprintf("base_meta_%s.json", a))
}

// SaveBaseMeta writes m next to the other base metas in dir.
func SaveBaseMeta(dir string, a ml.Algorithm, m BaseMeta) error {
	m.Name = string(a)
	return atomicfile.WriteJSON(BaseMetaFile(dir, a), m)
}

// LoadBaseMetas reads the base meta of every algorithm that has one in
// dir, in the order of ml.Algorithms. Missing files are skipped.
func LoadBaseMetas(dir string) ([]BaseMeta, error) {
	var out []BaseMeta
	for _, a := range ml.Algorithms {
		var m BaseMeta
		err := atomicfile.ReadJSON(BaseMetaFile(dir, a), &m)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("base meta %s: %w", a, err)
		}
		m.Name = string(a)
		out = append(out, m)
	}
	return out, nil
}

// Compose runs both composers over metas and returns the spec to persist
// with the individual results. A composer that fails leaves its part of
// the spec empty; an error is returned only for unusable input.
func Compose(metas []BaseMeta, step float64) (*Spec, *LinearResult, *MetaResult, error) {
	if err := check(metas); err != nil {
		return nil, nil, nil, err
	}
	spec := &Spec{}
	lin, err := OptimizeLinear(metas, step)
	if err == nil {
		spec.Weights = lin.Named
	}
	meta, err := TrainMeta(metas)
	if err == nil {
		auc := meta.AUC
		spec.MetaAUC = &auc
	}
	return spec, lin, meta, nil
}
