package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/M-RBR/codac-25-sub000/internal/application/query"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/export"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func newStatsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "stats <cohort-id>",
		Short: "Show per-student attendance statistics, trend and risk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				report, err := a.reportHandler().Handle(ctx, query.GetCohortAttendanceQuery{CohortID: args[0], Refresh: refresh})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(os.Stdout, report)
				}

				c := report.Cohort
				fmt.Printf("%s (%s): %d students, attendance %.2f%%, absentee %.2f%%\n\n",
					c.CohortName, c.CohortID, c.TotalStudents, c.Statistics.AttendanceRate, c.Statistics.AbsenteeRate)

				tw := newTable(os.Stdout)
				fmt.Fprintln(tw, "STUDENT\tDAYS\tPRESENT\tABSENT\tUNRECORDED\tRATE\tTREND\tRISK")
				for _, s := range report.Students {
					st := s.Statistics
					fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.2f%%\t%s\t%s\n",
						s.StudentName, st.TotalDays, st.PresentDays, st.AbsentDays, st.UnrecordedDays,
						st.AttendanceRate, s.Trend, s.RiskLevel)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the report cache")
	return cmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <cohort-id>",
		Short: "List working days without attendance records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				h := query.NewGetCompletionReportHandler(a.repo, a.clock, a.log)
				res, err := h.Handle(ctx, query.GetCompletionReportQuery{CohortID: args[0]})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(os.Stdout, res)
				}

				r := res.Report
				fmt.Printf("%s: %d of %d expected records (%.2f%%) over %d working days\n\n",
					res.Cohort.Name, r.ExistingRecords, r.ExpectedRecords, r.CompletionRate, r.TotalWorkingDays)

				tw := newTable(os.Stdout)
				fmt.Fprintln(tw, "STUDENT\tMISSING\tCOMPLETION")
				for _, s := range r.Students {
					fmt.Fprintf(tw, "%s\t%d\t%.2f%%\n", s.StudentID, s.MissingCount, s.CompletionRate)
				}
				if err := tw.Flush(); err != nil {
					return err
				}

				if len(r.OverallMissingDates) > 0 {
					dates := make([]string, len(r.OverallMissingDates))
					for i, d := range r.OverallMissingDates {
						dates[i] = timeutil.FormatDateStr(d)
					}
					fmt.Printf("\nMissing dates: %s\n", strings.Join(dates, ", "))
				}
				for _, rec := range r.Recommendations {
					fmt.Printf("- %s\n", rec)
				}
				return nil
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	var (
		format    string
		from, to  string
		withStats bool
		outPath   string
	)

	cmd := &cobra.Command{
		Use:   "export <cohort-id>",
		Short: "Export cohort attendance as CSV, JSON or a text summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			start, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := runExport(ctx, a, query.ExportAttendanceQuery{
					CohortID:          args[0],
					Format:            f,
					StartDate:         start,
					EndDate:           end,
					IncludeStatistics: withStats,
				})
				if err != nil {
					return err
				}
				if outPath == "." {
					outPath = res.Filename
				}
				return writeOutput(outPath, res.Content)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv, json or summary")
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD), defaults to cohort start")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD), defaults to cohort end or today")
	cmd.Flags().BoolVar(&withStats, "stats", false, "include cohort statistics")
	cmd.Flags().StringVar(&outPath, "out", "-", `output file, "-" for stdout, "." for the generated filename`)
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <cohort-id>",
		Short: "Print the coordinator summary report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := runExport(ctx, a, query.ExportAttendanceQuery{CohortID: args[0], Format: export.FormatSummary})
				if err != nil {
					return err
				}
				return writeOutput("-", res.Content)
			})
		},
	}
}

func runExport(ctx context.Context, a *app, q query.ExportAttendanceQuery) (*query.ExportResult, error) {
	h := query.NewExportAttendanceHandler(a.reportHandler(), a.clock, a.log)
	return h.Handle(ctx, q)
}
