package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyeddy/forecaster/config"
	"github.com/rustyeddy/forecaster/featurestore"
	"github.com/rustyeddy/forecaster/internal/calendar"
	"github.com/rustyeddy/forecaster/market"
	"github.com/rustyeddy/forecaster/market/data"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/pkg/metrics"
	"github.com/rustyeddy/forecaster/progress"
)

// env is what every command needs: configuration, logging, metrics and
// progress reporting. Close releases whatever was opened.
type env struct {
	cfg     *config.Config
	log     *logger.Logger
	rec     *metrics.Recorder
	sink    progress.Sink
	fs      featurestore.Store
	closers []io.Closer
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(configPath)
}

func newEnv() (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	l, err := cfg.Log.Logger()
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, log: l, rec: metrics.New(prometheus.DefaultRegisterer)}

	sinks := progress.Multi{progress.LogSink{Log: l}}
	if len(cfg.Events.Brokers) > 0 {
		ks, err := progress.NewKafkaSink(cfg.Events.Brokers, cfg.Events.Topic, l)
		if err != nil {
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		sinks = append(sinks, ks)
		e.closers = append(e.closers, ks)
	}
	e.sink = sinks
	return e, nil
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			e.log.Warn("close failed", logger.Error(err))
		}
	}
}

// loadSeries reads bars from the configured source and trims them to
// the configured date range.
func (e *env) loadSeries(ctx context.Context) (market.SeriesMap, error) {
	d := e.cfg.Data
	from, to, err := dateRange(d.From, d.To)
	if err != nil {
		return nil, err
	}

	var loader data.Loader
	switch d.Source {
	case "clickhouse":
		ch, err := data.OpenClickHouse(ctx, d.ClickHouseDSN, d.ClickHouseTable, e.log)
		if err != nil {
			return nil, err
		}
		defer ch.Close()
		loader = ch.Range(from, to)
	default:
		loader = data.NewCSVDir(d.Dir, e.log)
	}

	series, err := loader.Load(ctx, d.Symbols)
	if err != nil {
		return nil, fmt.Errorf("load series: %w", err)
	}
	series = series.Between(from, to)
	for _, s := range series {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	e.log.Info("series loaded", logger.String("source", d.Source), logger.Int("symbols", len(series)))
	return series, nil
}

func dateRange(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	var err error
	if from != "" {
		if f, err = market.ParseDay(from); err != nil {
			return f, t, fmt.Errorf("data.from: %w", err)
		}
	}
	if to != "" {
		if t, err = market.ParseDay(to); err != nil {
			return f, t, fmt.Errorf("data.to: %w", err)
		}
	}
	return f, t, nil
}

func (e *env) calendar() (*calendar.Calendar, error) {
	return calendar.Load(e.cfg.Data.HolidaysFile)
}

// featureStore opens the configured backend once.
func (e *env) featureStore(ctx context.Context) (featurestore.Store, error) {
	if e.fs != nil {
		return e.fs, nil
	}
	fs := e.cfg.FeatureStore
	if fs.Backend != "redis" {
		e.fs = featurestore.NewFile(fs.Dir, e.log)
		return e.fs, nil
	}
	var ttl time.Duration
	if fs.TTL != "" {
		ttl, _ = time.ParseDuration(fs.TTL)
	}
	r, err := featurestore.NewRedis(ctx, featurestore.RedisConfig{
		Addr:     fs.RedisAddr,
		Password: fs.RedisPassword,
		DB:       fs.RedisDB,
		Prefix:   fs.Prefix,
		TTL:      ttl,
	})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, r)
	e.fs = r
	return r, nil
}
