package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

func jsonOutput() bool {
	return strings.EqualFold(outputFormat, "json")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// parseDateFlag returns nil for an empty flag value.
func parseDateFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	d, err := timeutil.ParseDate(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &d, nil
}

func parseStatusFlag(value string) (attendance.Status, error) {
	if value == "" {
		return "", nil
	}
	s, err := attendance.ParseStatus(strings.ToUpper(value))
	if err != nil {
		return "", fmt.Errorf("--status: %w", err)
	}
	return s, nil
}

// writeOutput writes content to path, or to stdout when path is empty or "-".
func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printBulkResult(w io.Writer, r *attendance.BulkOperationResult) {
	if r == nil {
		return
	}
	fmt.Fprintf(w, "Processed: %d (created %d, updated %d, skipped %d, failed %d)\n",
		r.TotalProcessed, r.Created, r.Updated, r.Skipped, r.Failed)
	fmt.Fprintf(w, "Throughput: %.2f records/s over %s\n", r.Summary.RecordsPerSecond, r.Summary.Duration.Round(time.Millisecond))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  error: %s\n", e.Message)
	}
}

func printValidation(w io.Writer, v *attendance.BulkValidationResult) {
	if v == nil {
		return
	}
	for _, e := range v.Errors {
		fmt.Fprintf(w, "  error: record %d %s: %s\n", e.Index+1, e.Field, e.Message)
	}
	for _, e := range v.Warnings {
		fmt.Fprintf(w, "  warning: record %d %s: %s\n", e.Index+1, e.Field, e.Message)
	}
}
