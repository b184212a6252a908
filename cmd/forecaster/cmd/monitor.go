package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/featurestore"
	"github.com/rustyeddy/forecaster/internal/httpapi"
	"github.com/rustyeddy/forecaster/monitor"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/predlog"
	"github.com/rustyeddy/forecaster/registry"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Track live prediction quality and feature drift",
	Long: `Score logged predictions against realized bars and watch feature drift.

Subcommands:
  cycle    - Backfill outcomes, compute live metrics, adapt the threshold once
  drift    - Compare stored features against the active snapshot's statistics
  features - List the feature store catalog
  serve    - Run cycles on an interval and serve the HTTP status API

Examples:
  forecaster monitor cycle -c forecaster.yaml
  forecaster monitor serve -c forecaster.yaml --listen :9090`,
}

var monitorCycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one monitoring pass",
	Args:  cobra.NoArgs,
	RunE:  runMonitorCycle,
}

var monitorDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Report feature drift",
	Args:  cobra.NoArgs,
	RunE:  runMonitorDrift,
}

var monitorFeaturesCmd = &cobra.Command{
	Use:   "features",
	Short: "List stored feature vectors",
	Args:  cobra.NoArgs,
	RunE:  runMonitorFeatures,
}

var monitorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor loop with the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runMonitorServe,
}

var monitorListen string

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.AddCommand(monitorCycleCmd)
	monitorCmd.AddCommand(monitorDriftCmd)
	monitorCmd.AddCommand(monitorFeaturesCmd)
	monitorCmd.AddCommand(monitorServeCmd)

	monitorServeCmd.Flags().StringVar(&monitorListen, "listen", "", "listen address (default: monitor.listen)")
}

// liveMonitor wires a Monitor to the active snapshot's thresholds. With
// no active snapshot the threshold is left alone.
type liveMonitor struct {
	*monitor.Monitor
	env *env
	reg *registry.Registry
}

func newLiveMonitor(e *env) *liveMonitor {
	reg := registry.Open(e.cfg.Registry.Root, e.log)
	mc := e.cfg.Monitor
	path, err := reg.ThresholdsPath("")
	if err != nil {
		e.log.Warn("threshold adaptation disabled", logger.Error(err))
		path = ""
	}
	tracker := monitor.NewDriftTracker(mc.DriftHigh, mc.DriftSustain)
	m := monitor.New(predlog.Open(mc.PredictionLog), path, tracker, e.rec, e.log)
	return &liveMonitor{Monitor: m, env: e, reg: reg}
}

// pass runs one cycle followed by a drift check. A drift failure is
// logged and does not fail the pass.
func (lm *liveMonitor) pass(ctx context.Context) (*monitor.Status, error) {
	series, err := lm.env.loadSeries(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := lm.Cycle(ctx, series, time.Now()); err != nil {
		return nil, err
	}
	r, err := lm.drift(ctx)
	if err != nil {
		lm.env.log.Warn("drift check skipped", logger.Error(err))
	} else {
		lm.ObserveDrift(r)
	}
	st := lm.Status()
	return &st, nil
}

func (lm *liveMonitor) drift(ctx context.Context) (*monitor.DriftReport, error) {
	meta, err := lm.reg.Show("")
	if err != nil {
		return nil, err
	}
	fs, err := lm.env.featureStore(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := fs.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	samples := make([]monitor.DriftSample, 0, len(recs))
	for _, r := range recs {
		samples = append(samples, monitor.DriftSample{
			Symbol:   r.Symbol,
			Features: r.Features,
			AgeSec:   r.Age(now).Seconds(),
		})
	}
	rep := monitor.Drift(samples, meta.FeatureStats)
	if rep == nil {
		return nil, errors.New("no comparable features")
	}
	return rep, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runMonitorCycle(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := newLiveMonitor(e).pass(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(st)
}

func runMonitorDrift(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	r, err := newLiveMonitor(e).drift(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Mean drift %.3f over %d symbols\n", r.Mean, r.Symbols)
	for _, sym := range r.Top(10) {
		fmt.Printf("  %-8s %.3f\n", sym, r.PerSymbol[sym])
	}
	return nil
}

func runMonitorFeatures(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()

	fs, err := e.featureStore(ctx)
	if err != nil {
		return err
	}
	recs, err := fs.Snapshot(ctx)
	if err != nil {
		return err
	}
	return printJSON(featurestore.Catalog(recs, time.Now()))
}

func runMonitorServe(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	cfg := e.cfg

	interval, err := cfg.Monitor.ParseInterval()
	if err != nil {
		return err
	}
	addr := cfg.Monitor.Listen
	if monitorListen != "" {
		addr = monitorListen
	}
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lm := newLiveMonitor(e)
	srv := httpapi.New(lm, nil, metricsPath, e.log)
	errc := make(chan error, 1)
	go func() { errc <- srv.Start(addr) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := lm.pass(ctx); err != nil && ctx.Err() == nil {
			e.log.Error("monitor pass failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errc:
			return err
		case <-ticker.C:
		}
	}
}
