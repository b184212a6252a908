package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/features"
	"github.com/rustyeddy/forecaster/pkg/logger"
	"github.com/rustyeddy/forecaster/predlog"
	"github.com/rustyeddy/forecaster/registry"
	"github.com/rustyeddy/forecaster/threshold"
)

var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "Score the latest bar of every symbol with a snapshot",
	Long: `Score each symbol's latest feature row with every horizon model of a
registry snapshot and append the predictions to the live prediction log.

Examples:
  forecaster predict -c forecaster.yaml
  forecaster predict -c forecaster.yaml --snapshot 20240603_143005 --dry-run`,
	RunE: runPredict,
}

var (
	predictSnapshot string
	predictDryRun   bool
)

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringVarP(&predictSnapshot, "snapshot", "s", "", "snapshot to use (default: active)")
	predictCmd.Flags().BoolVar(&predictDryRun, "dry-run", false, "print predictions without logging them")
}

func runPredict(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.Close()
	ctx := cmd.Context()
	cfg := e.cfg

	reg := registry.Open(cfg.Registry.Root, e.log)
	name := predictSnapshot
	if name == "" {
		if name, err = reg.Active(); err != nil {
			return err
		}
	}
	c, _, err := reg.Load(name)
	if err != nil {
		return err
	}
	thresholds := thresholdsFor(reg, name, e.log)

	series, err := e.loadSeries(ctx)
	if err != nil {
		return err
	}
	eng := features.NewDefault(cfg.Features.LabelThreshold)

	now := time.Now()
	var entries []predlog.Entry
	for _, sym := range series.Symbols() {
		s := series[sym]
		barDate, row, err := eng.Latest(s)
		if err != nil {
			e.log.Warn("no feature row", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		last, _ := s.Last()
		probH := c.PredictHorizons(row)
		prob, err := c.PredictLatest(row, 0)
		if err != nil {
			return err
		}
		entries = append(entries, predlog.NewEntry(now, name, sym, prob, probH, last.Close, barDate))

		fmt.Printf("%-8s %s  p=%.3f", sym, barDate.Format("2006-01-02"), prob)
		hs := make([]int, 0, len(probH))
		for h := range probH {
			hs = append(hs, h)
		}
		sort.Ints(hs)
		for _, h := range hs {
			mark := "down"
			if probH[h] >= thresholds.For(h) {
				mark = "up"
			}
			fmt.Printf("  h%d=%.3f %s", h, probH[h], mark)
		}
		fmt.Println()
	}

	if predictDryRun {
		fmt.Printf("✓ Scored %d symbols with %s (not logged)\n", len(entries), name)
		return nil
	}
	log := predlog.Open(cfg.Monitor.PredictionLog)
	if err := log.Append(entries...); err != nil {
		e.rec.RecordError("persistence")
		return fmt.Errorf("append predictions: %w", err)
	}
	stored := e.storeLatest(ctx, eng, series)

	fmt.Printf("✓ Logged %d predictions from %s to %s\n", len(entries), name, log.Path())
	fmt.Printf("  Feature store: %d symbols\n", stored)
	return nil
}

// thresholdsFor loads a snapshot's thresholds, falling back to the
// default cut when they are missing.
func thresholdsFor(reg *registry.Registry, name string, l *logger.Logger) *threshold.Set {
	path, err := reg.ThresholdsPath(name)
	if err == nil {
		var set *threshold.Set
		if set, err = threshold.Load(path); err == nil {
			return set
		}
	}
	l.Warn("using default threshold", logger.String("snapshot", name), logger.Error(err))
	return &threshold.Set{Global: threshold.DefaultGlobal}
}
