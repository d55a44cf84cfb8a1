package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/pfrederiksen/drf-pp/internal/storage"
)

// OutputFormat specifies the output format
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// WriteOutput writes the run report in the specified format
func WriteOutput(w io.Writer, report *storage.RunReport, format OutputFormat, verbose bool) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatText:
		return writeText(w, report, verbose)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

// writeJSON outputs the report as JSON
func writeJSON(w io.Writer, report *storage.RunReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

// writeText outputs the report as human-readable text
func writeText(w io.Writer, report *storage.RunReport, verbose bool) error {
	status := "ok"
	if report.Error != "" {
		status = "failed"
	}
	fmt.Fprintf(w, "%s %s (run %s)\n", report.Command, status, report.RunID)

	if report.TargetDate != "" {
		fmt.Fprintf(w, "  Date:     %s\n", report.TargetDate)
	}
	if report.PDFPath != "" {
		fmt.Fprintf(w, "  Program:  %s (%d bytes)\n", report.PDFPath, report.PDFBytes)
	}
	if report.ModelPath != "" {
		fmt.Fprintf(w, "  Samples:  %d\n", report.Samples)
		fmt.Fprintf(w, "  Test:     accuracy %.2f%%, loss %.4f\n", report.TestAcc*100, report.TestLoss)
		fmt.Fprintf(w, "  Model:    %s\n", report.ModelPath)
	}
	if report.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", report.Error)
	}

	if verbose && len(report.StepTimings) > 0 {
		steps := make([]string, 0, len(report.StepTimings))
		for step := range report.StepTimings {
			steps = append(steps, step)
		}
		sort.Strings(steps)

		fmt.Fprintln(w, "  Steps:")
		for _, step := range steps {
			fmt.Fprintf(w, "    %-14s %s\n", step, report.StepTimings[step])
		}
	}
	if !report.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  Duration: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	return nil
}
