package journal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rustyeddy/forecaster/iterative"
)

// FormatIterationOrg renders an iteration as an Org-mode block: facts in
// a PROPERTIES drawer, then a table of accuracy per horizon.
func FormatIterationOrg(runID string, rec *iterative.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Iteration %d (cutoff %s)\n", rec.Iteration, rec.TrainingCutoff)
	b.WriteString(":PROPERTIES:\n")
	if runID != "" {
		fmt.Fprintf(&b, ":RUN_ID: %s\n", runID)
	}
	fmt.Fprintf(&b, ":LOOKBACK_DAYS: %d\n", rec.LookbackDays)
	fmt.Fprintf(&b, ":VALIDATION: %s..%s\n", rec.ValidationStart, rec.ValidationEnd)
	fmt.Fprintf(&b, ":AVG_ACCURACY: %.4f\n", rec.AvgAccuracy)
	if rec.ImprovementFromPrevious != nil {
		fmt.Fprintf(&b, ":IMPROVEMENT: %+.4f\n", *rec.ImprovementFromPrevious)
	}
	fmt.Fprintf(&b, ":PREDICTIONS: %d\n", len(rec.Predictions))
	fmt.Fprintf(&b, ":OUTCOMES: %d\n", len(rec.ActualResults))
	b.WriteString(":END:\n\n")

	hs := append([]int(nil), rec.Horizons...)
	sort.Ints(hs)
	b.WriteString("| Horizon | Accuracy |\n")
	b.WriteString("|---------+----------|\n")
	for _, h := range hs {
		fmt.Fprintf(&b, "| %dd | %.4f |\n", h, rec.AccuracyByHorizon[h])
	}
	return b.String()
}

// FormatRunOrg renders every iteration of a run separated by blank lines.
func FormatRunOrg(runID string, recs []*iterative.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "* Iterative run %s\n", runID)
	for _, r := range recs {
		b.WriteString("\n")
		b.WriteString(FormatIterationOrg("", r))
	}
	return b.String()
}
