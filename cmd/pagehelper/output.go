package main

import (
	"io"

	"github.com/fatih/color"
	"github.com/v0xg/pagehelper/internal/runner"
)

var (
	succColor  = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed)
	warnColor  = color.New(color.FgYellow)
	grayColor  = color.New(color.Faint)
	valueColor = color.New(color.FgCyan)
)

func statusMark(status string) (string, *color.Color) {
	switch status {
	case runner.StatusPassed:
		return "✓", succColor
	case runner.StatusFailed:
		return "✗", failColor
	case runner.StatusPartial:
		return "~", warnColor
	}
	return "-", grayColor
}

// printSummary writes one line per case followed by the totals and the
// report files.
func printSummary(w io.Writer, result *runner.SuiteResult, paths []string) {
	_, _ = valueColor.Fprintf(w, "%s", result.Name)
	if result.URL != "" {
		_, _ = grayColor.Fprintf(w, " (%s)", result.URL)
	}
	_, _ = io.WriteString(w, "\n\n")

	for _, c := range result.Cases {
		mark, col := statusMark(c.Status)
		_, _ = col.Fprintf(w, "  %s %s", mark, c.Name)
		if c.Note != "" {
			_, _ = grayColor.Fprintf(w, " - %s", c.Note)
		}
		_, _ = io.WriteString(w, "\n")
	}

	sum := result.Summary()
	_, _ = io.WriteString(w, "\n")
	_, _ = color.New().Fprintf(w, "  cases: %d  ", sum.Total)
	_, _ = succColor.Fprintf(w, "passed: %d  ", sum.Passed)
	_, _ = warnColor.Fprintf(w, "partial: %d  ", sum.Partial)
	_, _ = failColor.Fprintf(w, "failed: %d  ", sum.Failed)
	_, _ = grayColor.Fprintf(w, "skipped: %d\n", sum.Skipped)
	_, _ = valueColor.Fprintf(w, "  pass rate: %.1f%%  duration: %.2fs\n", sum.PassRate, result.Duration)

	if len(paths) > 0 {
		_, _ = io.WriteString(w, "\n")
		for _, p := range paths {
			_, _ = grayColor.Fprintf(w, "  → %s\n", p)
		}
	}
}
