package trainer

import (
	"errors"
	"fmt"

	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/atomicfile"
)

// ErrNoModel is returned when a container has no model for a horizon.
var ErrNoModel = errors.New("no model for horizon")

// Container holds one fitted model per horizon plus the feature
// statistics used for drift checks.
type Container struct {
	Algorithm    ml.Algorithm           `json:"algorithm"`
	Models       map[int]*ml.Model      `json:"models"`
	Horizons     []int                  `json:"horizons"`
	Features     []string               `json:"features"`
	FeatureStats map[string]FeatureStat `json:"feature_stats"`
	AggregateAUC *float64               `json:"aggregate_auc,omitempty"`
	HorizonMeta  []HorizonResult        `json:"-"`
}

// Samples is the total number of rows trained on across horizons.
func (c *Container) Samples() int {
	n := 0
	for _, m := range c.HorizonMeta {
		if m.Result != nil {
			n += m.Samples
		}
	}
	return n
}

// PredictLatest scores one feature row. With horizon 0 it returns the
// mean over every horizon model.
func (c *Container) PredictLatest(row []float64, horizon int) (float64, error) {
	if horizon != 0 {
		m, ok := c.Models[horizon]
		if !ok {
			return 0, fmt.Errorf("%w: %d", ErrNoModel, horizon)
		}
		return m.PredictOne(row), nil
	}
	if len(c.Horizons) == 0 {
		return 0, fmt.Errorf("%w: container is empty", ErrNoModel)
	}
	s := 0.0
	for _, h := range c.Horizons {
		s += c.Models[h].PredictOne(row)
	}
	return s / float64(len(c.Horizons)), nil
}

// PredictHorizons scores row with every horizon model.
func (c *Container) PredictHorizons(row []float64) map[int]float64 {
	out := make(map[int]float64, len(c.Horizons))
	for _, h := range c.Horizons {
		out[h] = c.Models[h].PredictOne(row)
	}
	return out
}

func (c *Container) Save(path string) error {
	return atomicfile.WriteJSON(path, c)
}

func LoadContainer(path string) (*Container, error) {
	c := &Container{}
	if err := atomicfile.ReadJSON(path, c); err != nil {
		return nil, err
	}
	if len(c.Models) == 0 {
		return nil, fmt.Errorf("%w: %s holds no models", ErrNoModel, path)
	}
	return c, nil
}
