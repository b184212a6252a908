package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/forecaster/iterative"
	"github.com/rustyeddy/forecaster/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query iterative training journals",
	Long: `Query iterations and scored predictions recorded by iterate.

Subcommands:
  runs       - List run IDs in the SQLite journal
  iterations - List a run's iterations (default: latest run)
  outcomes   - List scored predictions of one iteration
  hits       - Hit rate per horizon for a run
  files      - Summarize the JSON artifacts in the results directory

Examples:
  forecaster journal runs
  forecaster journal iterations 01HZY3K6W0B7Q4V2 --org
  forecaster journal outcomes 01HZY3K6W0B7Q4V2 2 --horizon 5`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalIterationsCmd = &cobra.Command{
	Use:   "iterations [run-id]",
	Short: "List a run's iterations",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalIterations,
}

var journalOutcomesCmd = &cobra.Command{
	Use:   "outcomes <run-id> <iteration>",
	Short: "List scored predictions",
	Args:  cobra.ExactArgs(2),
	RunE:  runJournalOutcomes,
}

var journalHitsCmd = &cobra.Command{
	Use:   "hits [run-id]",
	Short: "Hit rate per horizon",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runJournalHits,
}

var journalFilesCmd = &cobra.Command{
	Use:   "files",
	Short: "Summarize JSON iteration artifacts",
	Args:  cobra.NoArgs,
	RunE:  runJournalFiles,
}

var (
	journalDBPath  string
	journalOrg     bool
	journalHorizon int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalIterationsCmd)
	journalCmd.AddCommand(journalOutcomesCmd)
	journalCmd.AddCommand(journalHitsCmd)
	journalCmd.AddCommand(journalFilesCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to SQLite journal DB (default: journal.db_path)")
	journalIterationsCmd.Flags().BoolVar(&journalOrg, "org", false, "print as Org headings")
	journalFilesCmd.Flags().BoolVar(&journalOrg, "org", false, "print as Org headings")
	journalOutcomesCmd.Flags().IntVar(&journalHorizon, "horizon", 0, "only this horizon")
}

func openJournalDB() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.DBPath
	}
	j, err := journal.NewSQLite(path, "")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return j, nil
}

// runArg returns the run named in args or the most recent one.
func runArg(j *journal.SQLite, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	runs, err := j.Runs()
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", fmt.Errorf("journal has no runs")
	}
	return runs[len(runs)-1], nil
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.Runs()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}
	for _, r := range runs {
		fmt.Println(r)
	}
	return nil
}

func runJournalIterations(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	runID, err := runArg(j, args)
	if err != nil {
		return err
	}
	rows, err := j.ListIterations(runID)
	if err != nil {
		return fmt.Errorf("list iterations: %w", err)
	}
	if len(rows) == 0 {
		fmt.Printf("No iterations for run %s\n", runID)
		return nil
	}

	if journalOrg {
		recs := make([]*iterative.Record, 0, len(rows))
		for _, r := range rows {
			recs = append(recs, &iterative.Record{
				Iteration:               r.Iteration,
				TrainingCutoff:          r.TrainingCutoff,
				ValidationStart:         r.ValidationStart,
				ValidationEnd:           r.ValidationEnd,
				AccuracyByHorizon:       r.AccuracyByHorizon,
				ImprovementFromPrevious: r.Improvement,
				Horizons:                r.Horizons,
				AvgAccuracy:             r.AvgAccuracy,
				LookbackDays:            r.LookbackDays,
			})
		}
		fmt.Print(journal.FormatRunOrg(runID, recs))
		return nil
	}

	fmt.Printf("Run %s\n", runID)
	for _, r := range rows {
		fmt.Printf("  #%02d cutoff %s  %s..%s  lookback %3dd  avg %.4f  preds %d  scored %d\n",
			r.Iteration, r.TrainingCutoff, r.ValidationStart, r.ValidationEnd,
			r.LookbackDays, r.AvgAccuracy, r.Predictions, r.Outcomes)
	}
	return nil
}

func runJournalOutcomes(cmd *cobra.Command, args []string) error {
	iteration, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid iteration %q", args[1])
	}
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	outs, err := j.ListOutcomes(args[0], iteration, journalHorizon)
	if err != nil {
		return fmt.Errorf("list outcomes: %w", err)
	}
	if len(outs) == 0 {
		fmt.Println("No outcomes found")
		return nil
	}
	for _, o := range outs {
		mark := "✗"
		if o.PredictionCorrect {
			mark = "✓"
		}
		fmt.Printf("%s %s %-8s h%-3d p=%.3f pred=%d actual=%d ret=%+.4f\n",
			mark, o.Date, o.Symbol, o.Horizon, o.PredictionProba, o.PredictionClass, o.ActualClass, o.ActualReturn)
	}
	return nil
}

func runJournalHits(cmd *cobra.Command, args []string) error {
	j, err := openJournalDB()
	if err != nil {
		return err
	}
	defer j.Close()

	runID, err := runArg(j, args)
	if err != nil {
		return err
	}
	hits, err := j.HitRateByHorizon(runID)
	if err != nil {
		return fmt.Errorf("hit rate: %w", err)
	}
	hs := make([]int, 0, len(hits))
	for h := range hits {
		hs = append(hs, h)
	}
	sort.Ints(hs)
	fmt.Printf("Run %s\n", runID)
	for _, h := range hs {
		hr := hits[h]
		fmt.Printf("  h%-3d %5d/%-5d %.4f\n", h, hr.Correct, hr.Total, hr.Rate())
	}
	return nil
}

func runJournalFiles(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sums, err := journal.ReadSummaries(cfg.Iterative.ResultsDir)
	if err != nil {
		return err
	}
	if len(sums) == 0 {
		fmt.Printf("No iterations in %s\n", cfg.Iterative.ResultsDir)
		return nil
	}
	if journalOrg {
		recs := make([]*iterative.Record, len(sums))
		for i, s := range sums {
			recs[i] = s.Record
		}
		fmt.Print(journal.FormatRunOrg(cfg.Iterative.ResultsDir, recs))
		return nil
	}
	for _, s := range sums {
		fmt.Printf("  #%02d cutoff %s  avg %.4f  preds %d  scored %d\n",
			s.Iteration, s.TrainingCutoff, s.AvgAccuracy, s.PredictionsCount, s.ActualResultsCount)
	}
	return nil
}
