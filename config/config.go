// Package config holds the forecaster's file configuration: data sources,
// training, the iterative loop, the live monitor and the ambient stack.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/forecaster/iterative"
	"github.com/rustyeddy/forecaster/ml"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/trainer"
)

// Config is the complete forecaster configuration.
type Config struct {
	Data         DataConfig         `json:"data" yaml:"data"`
	Features     FeaturesConfig     `json:"features" yaml:"features"`
	Training     TrainingConfig     `json:"training" yaml:"training"`
	Iterative    IterativeConfig    `json:"iterative" yaml:"iterative"`
	Ensemble     EnsembleConfig     `json:"ensemble" yaml:"ensemble"`
	Monitor      MonitorConfig      `json:"monitor" yaml:"monitor"`
	Registry     RegistryConfig     `json:"registry" yaml:"registry"`
	Journal      JournalConfig      `json:"journal" yaml:"journal"`
	Log          LogConfig          `json:"log" yaml:"log"`
	Metrics      MetricsConfig      `json:"metrics" yaml:"metrics"`
	Events       EventsConfig       `json:"events" yaml:"events"`
	FeatureStore FeatureStoreConfig `json:"feature_store" yaml:"feature_store"`
}

// DataConfig selects where daily bars come from.
type DataConfig struct {
	Source          string   `json:"source" yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
	Dir             string   `json:"dir,omitempty" yaml:"dir,omitempty" default:"data"`
	Symbols         []string `json:"symbols,omitempty" yaml:"symbols,omitempty"`
	ClickHouseDSN   string   `json:"clickhouse_dsn,omitempty" yaml:"clickhouse_dsn,omitempty"`
	ClickHouseTable string   `json:"clickhouse_table,omitempty" yaml:"clickhouse_table,omitempty" default:"daily_bars"`
	From            string   `json:"from,omitempty" yaml:"from,omitempty"`
	To              string   `json:"to,omitempty" yaml:"to,omitempty"`
	HolidaysFile    string   `json:"holidays_file,omitempty" yaml:"holidays_file,omitempty"`
}

type FeaturesConfig struct {
	LabelThreshold float64 `json:"label_threshold" yaml:"label_threshold" default:"0.02" validate:"gt=0,lt=1"`
}

// TrainingConfig drives the multi-horizon production run.
type TrainingConfig struct {
	Algorithm       string               `json:"algorithm" yaml:"algorithm" default:"rf" validate:"oneof=rf xgb lgbm"`
	Horizons        []int                `json:"horizons" yaml:"horizons" default:"[1,5,10]" validate:"min=1,dive,gt=0"`
	MinRowsLadder   []int                `json:"min_rows_ladder" yaml:"min_rows_ladder" default:"[120]" validate:"min=1,dive,gt=0"`
	Folds           int                  `json:"folds" yaml:"folds" default:"3" validate:"gte=2"`
	ThresholdMetric string               `json:"threshold_metric" yaml:"threshold_metric" default:"f1" validate:"oneof=f1 youden precision_recall_balance"`
	Promote         *bool                `json:"promote" yaml:"promote" default:"true"`
	Params          map[string]ml.Params `json:"params,omitempty" yaml:"params,omitempty"`
}

// IterativeConfig mirrors iterative.Config.
type IterativeConfig struct {
	InitialLookbackDays    int      `json:"initial_lookback_days" yaml:"initial_lookback_days" default:"30" validate:"gt=0"`
	LookbackStep           int      `json:"lookback_step" yaml:"lookback_step" default:"5" validate:"gt=0"`
	Horizons               []int    `json:"horizons" yaml:"horizons" default:"[1,5,10]" validate:"min=1,dive,gt=0"`
	MaxIterations          int      `json:"max_iterations" yaml:"max_iterations" default:"10" validate:"gt=0"`
	TargetAccuracy         float64  `json:"target_accuracy" yaml:"target_accuracy" default:"0.7" validate:"gt=0,lte=1"`
	MinAccuracyImprovement *float64 `json:"min_accuracy_improvement" yaml:"min_accuracy_improvement" default:"0.01" validate:"omitempty,gte=0"`
	LabelThreshold         float64  `json:"label_threshold" yaml:"label_threshold" default:"0.02" validate:"gt=0,lt=1"`
	BlendAlpha             float64  `json:"blend_alpha" yaml:"blend_alpha" default:"0.4" validate:"gte=0,lte=1"`
	Algorithm              string   `json:"algorithm" yaml:"algorithm" default:"rf" validate:"oneof=rf xgb lgbm"`
	MinRows                int      `json:"min_rows" yaml:"min_rows" default:"50" validate:"gt=0"`
	ResultsDir             string   `json:"results_dir" yaml:"results_dir" default:"iterative_results"`
	ModelsDir              string   `json:"models_dir" yaml:"models_dir" default:"iterative_models"`
}

type EnsembleConfig struct {
	Dir  string  `json:"dir" yaml:"dir" default:"models/ensemble"`
	Step float64 `json:"step" yaml:"step" default:"0.1" validate:"gt=0,lte=1"`
}

// MonitorConfig configures the live monitor and its HTTP surface.
type MonitorConfig struct {
	PredictionLog string  `json:"prediction_log" yaml:"prediction_log" default:"predictions/predictions.jsonl"`
	Interval      string  `json:"interval" yaml:"interval" default:"1h"`
	Listen        string  `json:"listen" yaml:"listen" default:":9090"`
	RecentN       int     `json:"recent_n" yaml:"recent_n" default:"200" validate:"gt=0"`
	DriftHigh     float64 `json:"drift_high" yaml:"drift_high" default:"1.25" validate:"gt=0"`
	DriftSustain  int     `json:"drift_sustain" yaml:"drift_sustain" default:"5" validate:"gt=0"`
}

// ParseInterval converts the interval string to a duration.
func (m MonitorConfig) ParseInterval() (time.Duration, error) {
	if m.Interval == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(m.Interval)
}

type RegistryConfig struct {
	Root string `json:"root" yaml:"root" default:"models/registry"`
}

// JournalConfig selects how iterations are journaled next to the JSON
// artifacts.
type JournalConfig struct {
	Type           string `json:"type" yaml:"type" default:"sqlite" validate:"oneof=none csv sqlite"`
	DBPath         string `json:"db_path,omitempty" yaml:"db_path,omitempty" default:"journal.db"`
	IterationsFile string `json:"iterations_file,omitempty" yaml:"iterations_file,omitempty"`
	OutcomesFile   string `json:"outcomes_file,omitempty" yaml:"outcomes_file,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" default:"console" validate:"oneof=json console"`
	Output string `json:"output" yaml:"output" default:"stderr"`
}

// Logger builds the configured logger.
func (l LogConfig) Logger() (*logger.Logger, error) {
	return logger.New(&logger.Config{Level: l.Level, Format: l.Format, Output: l.Output})
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" default:"/metrics"`
}

// EventsConfig publishes progress events to Kafka when brokers are set.
type EventsConfig struct {
	Brokers []string `json:"brokers,omitempty" yaml:"brokers,omitempty"`
	Topic   string   `json:"topic" yaml:"topic" default:"forecaster.progress"`
}

type FeatureStoreConfig struct {
	Backend       string `json:"backend" yaml:"backend" default:"file" validate:"oneof=file redis"`
	Dir           string `json:"dir,omitempty" yaml:"dir,omitempty" default:"feature_store"`
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty" default:"localhost:6379"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	Prefix        string `json:"prefix,omitempty" yaml:"prefix,omitempty" default:"forecaster:features"`
	TTL           string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their yaml names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// LoadFromFile loads configuration from a file, trying YAML then JSON,
// fills unset fields with defaults and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = &Config{}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate runs the struct tag rules, then the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return err
	}
	if c.Data.Source == "csv" && c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required for csv source")
	}
	if c.Data.Source == "clickhouse" && c.Data.ClickHouseDSN == "" {
		return fmt.Errorf("data.clickhouse_dsn is required for clickhouse source")
	}
	for _, d := range []struct{ name, v string }{{"data.from", c.Data.From}, {"data.to", c.Data.To}} {
		if d.v == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d.v); err != nil {
			return fmt.Errorf("%s must be a YYYY-MM-DD date", d.name)
		}
	}
	for i := 1; i < len(c.Training.MinRowsLadder); i++ {
		if c.Training.MinRowsLadder[i] >= c.Training.MinRowsLadder[i-1] {
			return fmt.Errorf("training.min_rows_ladder must be strictly decreasing")
		}
	}
	for name := range c.Training.Params {
		if _, err := ml.ParseAlgorithm(name); err != nil {
			return fmt.Errorf("training.params has unknown algorithm %q", name)
		}
	}
	if c.Journal.Type == "csv" && (c.Journal.IterationsFile == "" || c.Journal.OutcomesFile == "") {
		return fmt.Errorf("journal iterations_file and outcomes_file required for CSV type")
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required for SQLite type")
	}
	if d, err := c.Monitor.ParseInterval(); err != nil || d <= 0 {
		return fmt.Errorf("monitor.interval must be a positive duration")
	}
	if c.FeatureStore.TTL != "" {
		if _, err := time.ParseDuration(c.FeatureStore.TTL); err != nil {
			return fmt.Errorf("feature_store.ttl must be a duration")
		}
	}
	if c.FeatureStore.Backend == "redis" && c.FeatureStore.RedisAddr == "" {
		return fmt.Errorf("feature_store.redis_addr is required for redis backend")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}

// fieldError turns a validator failure into a "section.field ..." message.
// The namespace starts with the root type name, which is dropped.
func fieldError(fe validator.FieldError) error {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	field := ns
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Errorf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Errorf("%s must be at least %s", field, fe.Param())
	case "lt":
		return fmt.Errorf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Errorf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Errorf("%s must have at least %s entries", field, fe.Param())
	default:
		return fmt.Errorf("%s failed validation: %s", field, fe.Tag())
	}
}

// TrainerConfig converts the training section.
func (c *Config) TrainerConfig() trainer.Config {
	params := make(map[ml.Algorithm]ml.Params, len(c.Training.Params))
	for name, p := range c.Training.Params {
		params[ml.Algorithm(name)] = p
	}
	return trainer.Config{Params: params, Folds: c.Training.Folds}
}

// LoopConfig converts the iterative section.
func (c *Config) LoopConfig() iterative.Config {
	it := c.Iterative
	cfg := iterative.Config{
		InitialLookbackDays: it.InitialLookbackDays,
		LookbackStep:        it.LookbackStep,
		Horizons:            append([]int(nil), it.Horizons...),
		MaxIterations:       it.MaxIterations,
		TargetAccuracy:      it.TargetAccuracy,
		LabelThreshold:      it.LabelThreshold,
		BlendAlpha:          it.BlendAlpha,
		Algorithm:           ml.Algorithm(it.Algorithm),
		MinRows:             it.MinRows,
		ModelsDir:           it.ModelsDir,
	}
	if it.MinAccuracyImprovement != nil {
		cfg.MinAccuracyImprovement = *it.MinAccuracyImprovement
	}
	return cfg
}
