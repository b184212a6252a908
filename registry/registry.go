// Package registry stores trained horizon containers as timestamped
// snapshots with their metadata and decision thresholds, and tracks which
// snapshot is active.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/forecaster/dataset"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/atomicfile"
	"github.com/rustyeddy/forecaster/pkg/id"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/threshold"
	"github.com/rustyeddy/forecaster/trainer"
)

var (
	// ErrPersistence wraps every failed snapshot write.
	ErrPersistence = errors.New("persistence error")
	ErrNoActive    = errors.New("no active snapshot")
	ErrNoSnapshot  = errors.New("no such snapshot")
)

const (
	IndexFile    = "index.json"
	ActiveFile   = "ACTIVE"
	MetadataFile = "metadata.json"
	// DirLayout names snapshot directories.
	DirLayout = "20060102_150405"
)

// ModelFile is the container file name inside a snapshot.
func ModelFile(a ml.Algorithm) string {
	return fmt.Sprintf("model_%s.json", a)
}

// Metadata describes one snapshot.
type Metadata struct {
	ID             string                           `json:"id"`
	Timestamp      string                           `json:"timestamp"`
	Algorithm      ml.Algorithm                     `json:"model_type"`
	Path           string                           `json:"path"`
	Samples        int                              `json:"samples"`
	Symbols        []string                         `json:"symbols"`
	TopFeatures    []string                         `json:"top_features"`
	Validation     map[int]trainer.ValidationReport `json:"validation"`
	CVMeanAUC      *float64                         `json:"cv_mean_auc"`
	AggregateAUC   *float64                         `json:"aggregate_auc"`
	FeatureStats   map[string]trainer.FeatureStat   `json:"feature_stats"`
	Horizons       []int                            `json:"horizons"`
	ClassBalance   map[int]dataset.ClassBalance     `json:"class_balance"`
	ThresholdsFile string                           `json:"thresholds_file"`
}

// IndexEntry is one line of index.json.
type IndexEntry struct {
	Timestamp   string       `json:"timestamp"`
	ModelType   ml.Algorithm `json:"model_type"`
	Samples     int          `json:"samples"`
	Symbols     []string     `json:"symbols"`
	CVMeanAUC   *float64     `json:"cv_mean_auc"`
	SnapshotDir string       `json:"snapshot_dir"`
}

// Snapshot is the outcome of Publish.
type Snapshot struct {
	Name       string
	Dir        string
	Metadata   *Metadata
	Thresholds *threshold.Set
	Promoted   bool
}

// Registry is a directory of snapshots.
type Registry struct {
	root string
	log  *logger.Logger
	now  func() time.Time
}

func Open(root string, l *logger.Logger) *Registry {
	return &Registry{root: root, log: l, now: time.Now}
}

func (r *Registry) Root() string { return r.root }

// Dir returns the directory of a snapshot.
func (r *Registry) Dir(name string) string {
	return filepath.Join(r.root, name)
}

// Publish writes c as a new snapshot: the container, initial thresholds
// from its validation outputs, metadata and an index entry. When promote
// is set and every write succeeded the snapshot becomes active.
func (r *Registry) Publish(c *trainer.Container, metric threshold.Metric, promote bool) (*Snapshot, error) {
	if c == nil || len(c.Models) == 0 {
		return nil, fmt.Errorf("%w: empty container", ErrPersistence)
	}
	now := r.now().UTC()
	name, err := r.reserve(now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	snap := &Snapshot{Name: name, Dir: r.Dir(name)}

	modelPath := filepath.Join(snap.Dir, ModelFile(c.Algorithm))
	thresholdsPath := filepath.Join(snap.Dir, threshold.FileName)
	snap.Thresholds = Thresholds(c, metric, now)
	snap.Metadata = Describe(c, now)
	snap.Metadata.Path = modelPath
	snap.Metadata.ThresholdsFile = thresholdsPath

	steps := []struct {
		what  string
		write func() error
	}{
		{"model", func() error { return c.Save(modelPath) }},
		{"thresholds", func() error { return snap.Thresholds.Save(thresholdsPath) }},
		{"metadata", func() error { return atomicfile.WriteJSON(filepath.Join(snap.Dir, MetadataFile), snap.Metadata) }},
		{"index", func() error { return r.addIndex(snap) }},
	}
	for _, s := range steps {
		if err := s.write(); err != nil {
			r.log.Error("snapshot write failed, promotion skipped",
				logger.String("snapshot", name), logger.String("file", s.what), logger.Error(err))
			return snap, fmt.Errorf("%w: %s: %v", ErrPersistence, s.what, err)
		}
	}

	if promote {
		if err := r.Activate(name); err != nil {
			return snap, err
		}
		snap.Promoted = true
	}
	r.log.Info("snapshot published", logger.String("snapshot", name),
		logger.String("algorithm", string(c.Algorithm)), logger.Ints("horizons", c.Horizons),
		logger.Bool("promoted", snap.Promoted))
	return snap, nil
}

// reserve creates a fresh snapshot directory named after now, stepping
// forward a second when the name is taken.
func (r *Registry) reserve(now time.Time) (string, error) {
	if err := os.MkdirAll(r.root, 0o755); err != nil {
		return "", err
	}
	for i := 0; i < 60; i++ {
		name := now.Add(time.Duration(i) * time.Second).Format(DirLayout)
		err := os.Mkdir(r.Dir(name), 0o755)
		if err == nil {
			return name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free snapshot name near %s", now.Format(DirLayout))
}

// Describe builds the metadata of c. Per-horizon results missing from
// HorizonMeta (a loaded container) leave the derived fields empty.
func Describe(c *trainer.Container, now time.Time) *Metadata {
	m := &Metadata{
		ID:           id.At(now),
		Timestamp:    now.UTC().Format(time.RFC3339),
		Algorithm:    c.Algorithm,
		Samples:      c.Samples(),
		Validation:   map[int]trainer.ValidationReport{},
		AggregateAUC: c.AggregateAUC,
		FeatureStats: c.FeatureStats,
		Horizons:     append([]int(nil), c.Horizons...),
		ClassBalance: map[int]dataset.ClassBalance{},
	}
	symbols := map[string]bool{}
	cvSum, cvN := 0.0, 0
	for _, hr := range c.HorizonMeta {
		if hr.Result == nil {
			continue
		}
		m.Validation[hr.Horizon] = hr.Validation
		m.ClassBalance[hr.Horizon] = hr.ClassBalance
		if m.TopFeatures == nil {
			m.TopFeatures = hr.TopFeatures
		}
		for _, s := range hr.Symbols {
			symbols[s] = true
		}
		if hr.Validation.CVMeanAUC != nil {
			cvSum += *hr.Validation.CVMeanAUC
			cvN++
		}
	}
	for s := range symbols {
		m.Symbols = append(m.Symbols, s)
	}
	sort.Strings(m.Symbols)
	if cvN > 0 {
		v := ml.Round(cvSum/float64(cvN), 4)
		m.CVMeanAUC = &v
	}
	return m
}

// Thresholds suggests the initial thresholds of c: per horizon from each
// horizon's holdout, globally from all holdouts together.
func Thresholds(c *trainer.Container, metric threshold.Metric, now time.Time) *threshold.Set {
	var global threshold.Sample
	horizons := map[int]threshold.Sample{}
	for _, hr := range c.HorizonMeta {
		if hr.Result == nil || len(hr.ValProbs) == 0 {
			continue
		}
		horizons[hr.Horizon] = threshold.Sample{Probs: hr.ValProbs, Labels: hr.ValLabels}
		global.Probs = append(global.Probs, hr.ValProbs...)
		global.Labels = append(global.Labels, hr.ValLabels...)
	}
	return threshold.Initial(now, metric, global, horizons)
}

func (r *Registry) addIndex(s *Snapshot) error {
	idx, err := r.List()
	if err != nil {
		return err
	}
	idx = append(idx, IndexEntry{
		Timestamp:   s.Metadata.Timestamp,
		ModelType:   s.Metadata.Algorithm,
		Samples:     s.Metadata.Samples,
		Symbols:     s.Metadata.Symbols,
		CVMeanAUC:   s.Metadata.CVMeanAUC,
		SnapshotDir: s.Name,
	})
	sort.SliceStable(idx, func(i, j int) bool { return idx[i].SnapshotDir > idx[j].SnapshotDir })
	return atomicfile.WriteJSON(filepath.Join(r.root, IndexFile), idx)
}

// List returns the index, newest first. A registry without an index is
// empty.
func (r *Registry) List() ([]IndexEntry, error) {
	var idx []IndexEntry
	err := atomicfile.ReadJSON(filepath.Join(r.root, IndexFile), &idx)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return idx, nil
}

// Activate points ACTIVE at an existing snapshot.
func (r *Registry) Activate(name string) error {
	if _, err := os.Stat(filepath.Join(r.Dir(name), MetadataFile)); err != nil {
		return fmt.Errorf("%w: %s", ErrNoSnapshot, name)
	}
	if err := atomicfile.WriteFile(filepath.Join(r.root, ActiveFile), []byte(name+"\n"), 0o644); err != nil {
		return fmt.Errorf("%w: activate %s: %v", ErrPersistence, name, err)
	}
	r.log.Info("snapshot activated", logger.String("snapshot", name))
	return nil
}

// Active returns the name of the active snapshot.
func (r *Registry) Active() (string, error) {
	b, err := os.ReadFile(filepath.Join(r.root, ActiveFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoActive
	}
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(string(b))
	if name == "" {
		return "", ErrNoActive
	}
	return name, nil
}

func (r *Registry) resolve(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	return r.Active()
}

// Show reads a snapshot's metadata. An empty name means the active one.
func (r *Registry) Show(name string) (*Metadata, error) {
	name, err := r.resolve(name)
	if err != nil {
		return nil, err
	}
	m := &Metadata{}
	err = atomicfile.ReadJSON(filepath.Join(r.Dir(name), MetadataFile), m)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSnapshot, name)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads a snapshot's container. An empty name means the active one.
func (r *Registry) Load(name string) (*trainer.Container, *Metadata, error) {
	m, err := r.Show(name)
	if err != nil {
		return nil, nil, err
	}
	name, _ = r.resolve(name)
	c, err := trainer.LoadContainer(filepath.Join(r.Dir(name), ModelFile(m.Algorithm)))
	if err != nil {
		return nil, nil, err
	}
	return c, m, nil
}

// ThresholdsPath returns the threshold file of a snapshot. An empty
// name means the active one.
func (r *Registry) ThresholdsPath(name string) (string, error) {
	name, err := r.resolve(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(r.Dir(name), threshold.FileName), nil
}
