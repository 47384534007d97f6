package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/M-RBR/codac-25-sub000/internal/application/command"
	"github.com/M-RBR/codac-25-sub000/internal/domain/attendance"
	"github.com/M-RBR/codac-25-sub000/internal/domain/shared"
	"github.com/M-RBR/codac-25-sub000/internal/infrastructure/persistence/postgres"
	"github.com/M-RBR/codac-25-sub000/pkg/logger"
	"github.com/M-RBR/codac-25-sub000/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WRITE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func newImportCmd() *cobra.Command {
	var (
		file     string
		dryRun   bool
		operator string
	)

	cmd := &cobra.Command{
		Use:   "import <cohort-id>",
		Short: "Import attendance rows from CSV",
		Long: "Imports a CSV export or a filled-in template. Nothing is written " +
			"unless every row is valid. Identical files are rejected once applied.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readInput(file)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if operator == "" {
					operator = a.cfg.App.Operator
				}
				h := command.NewImportAttendanceHandler(a.repo, a.repo, a.reports, a.lock, a.cfg.Features, a.clock, a.log, a.writeConfig())
				res, err := h.Handle(ctx, command.ImportAttendanceCommand{
					CohortID: args[0],
					CSV:      payload,
					Operator: operator,
					DryRun:   dryRun,
				})
				if res == nil {
					return err
				}
				if jsonOutput() {
					if perr := printJSON(os.Stdout, res); perr != nil {
						return perr
					}
					return err
				}

				fmt.Printf("Fingerprint: %s\n", res.Fingerprint)
				fmt.Printf("Parsed rows: %d\n", res.ParsedRows)
				for _, e := range res.ParseErrors {
					fmt.Printf("  error: %s\n", e)
				}
				if v := res.ImportValidation; v != nil {
					for _, e := range v.Errors {
						fmt.Printf("  error: %s\n", e)
					}
					for _, w := range v.Warnings {
						fmt.Printf("  warning: %s\n", w)
					}
				}
				printValidation(os.Stdout, res.BulkValidation)
				printBulkResult(os.Stdout, res.Write)

				switch {
				case errors.Is(err, shared.ErrImportAlreadyApplied):
					fmt.Println("This file was already imported for the cohort.")
				case err == nil && res.DryRun:
					fmt.Println("Dry run: no records written.")
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", `CSV file, "-" for stdin`)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate without writing")
	cmd.Flags().StringVar(&operator, "operator", "", "author recorded on written rows (default APP_OPERATOR)")
	return cmd
}

func newBackfillCmd() *cobra.Command {
	var (
		status   string
		dryRun   bool
		operator string
	)

	cmd := &cobra.Command{
		Use:   "backfill <cohort-id>",
		Short: "Fill working days without records with a default status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStatusFlag(status)
			if err != nil {
				return err
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				if operator == "" {
					operator = a.cfg.App.Operator
				}
				h := command.NewBackfillMissingHandler(a.repo, a.reports, a.lock, a.clock, a.log, a.writeConfig())
				res, err := h.Handle(ctx, command.BackfillMissingCommand{
					CohortID: args[0],
					Status:   st,
					Operator: operator,
					DryRun:   dryRun,
				})
				if res == nil {
					return err
				}
				if jsonOutput() {
					if perr := printJSON(os.Stdout, res); perr != nil {
						return perr
					}
					return err
				}

				fmt.Printf("Completion before backfill: %.2f%%\n", res.Completion.CompletionRate)
				fmt.Printf("Missing records: %d\n", len(res.Records))
				printValidation(os.Stdout, &res.Validation)
				printBulkResult(os.Stdout, res.Write)
				if err == nil && dryRun && len(res.Records) > 0 {
					fmt.Println("Dry run: no records written.")
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "status for filled days (default PRESENT)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the gaps without writing")
	cmd.Flags().StringVar(&operator, "operator", "", "author recorded on written rows (default APP_OPERATOR)")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var (
		from, to string
		status   string
		weekends bool
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "template <cohort-id>",
		Short: "Generate a pre-filled attendance CSV for the enrolled students",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseDateFlag("from", from)
			if err != nil {
				return err
			}
			end, err := parseDateFlag("to", to)
			if err != nil {
				return err
			}
			st, err := parseStatusFlag(status)
			if err != nil {
				return err
			}
			var includeWeekends *bool
			if cmd.Flags().Changed("weekends") {
				includeWeekends = &weekends
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				h := command.NewGenerateTemplateHandler(a.repo, a.cfg.Features, a.clock, a.log)
				res, err := h.Handle(ctx, command.GenerateTemplateCommand{
					CohortID:        args[0],
					StartDate:       start,
					EndDate:         end,
					Status:          st,
					IncludeWeekends: includeWeekends,
				})
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(os.Stdout, res)
				}
				return writeOutput(outPath, res.CSV)
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD), defaults to cohort start")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD), defaults to cohort end or today")
	cmd.Flags().StringVar(&status, "status", "", "pre-filled status (default PRESENT)")
	cmd.Flags().BoolVar(&weekends, "weekends", false, "include Saturdays and Sundays (default from weekend_template)")
	cmd.Flags().StringVar(&outPath, "out", "-", `output file, "-" for stdout`)
	return cmd
}

func newEstimateCmd() *cobra.Command {
	var (
		records    int
		batchSize  int
		throughput int
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate duration, batching and memory of a bulk write",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if records < 0 {
				return fmt.Errorf("--records must not be negative")
			}
			if !cmd.Flags().Changed("throughput") || !cmd.Flags().Changed("batch-size") {
				if cfg, err := loadConfig(configPath); err == nil {
					if !cmd.Flags().Changed("throughput") {
						throughput = cfg.Attendance.BulkThroughput
					}
					if !cmd.Flags().Changed("batch-size") {
						batchSize = cfg.Attendance.BulkBatchSize
					}
				}
			}

			est := attendance.EstimateBulkPerformance(records, batchSize, throughput)
			if jsonOutput() {
				return printJSON(os.Stdout, est)
			}
			fmt.Printf("Estimated duration: %.1fs\n", est.EstimatedDuration)
			fmt.Printf("Recommended batch size: %d (%d batches, configured %d)\n", est.RecommendedBatchSize, est.TotalBatches, batchSize)
			fmt.Printf("Estimated memory: %d KiB\n", est.EstimatedMemoryUsage/1024)
			return nil
		},
	}

	cmd.Flags().IntVar(&records, "records", 0, "number of records to write")
	cmd.Flags().IntVar(&batchSize, "batch-size", attendance.DefaultBatchSize, "configured batch size")
	cmd.Flags().IntVar(&throughput, "throughput", attendance.DefaultThroughput, "write rate in records per second")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	var (
		status   bool
		rollback bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				m := postgres.NewMigrator(a.db)

				switch {
				case rollback:
					if err := m.Rollback(ctx); err != nil {
						return err
					}
					a.log.Info("rolled back last migration")
				case !status:
					applied, err := m.Migrate(ctx)
					if err != nil {
						return err
					}
					a.log.Info("migrations applied", logger.Int("count", applied))
				}

				migrations, err := m.Status(ctx)
				if err != nil {
					return err
				}
				if jsonOutput() {
					return printJSON(os.Stdout, migrations)
				}
				tw := newTable(os.Stdout)
				fmt.Fprintln(tw, "VERSION\tNAME\tAPPLIED")
				for _, mg := range migrations {
					applied := "pending"
					if mg.IsApplied {
						applied = timeutil.FormatDateStr(mg.AppliedAt)
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\n", mg.Version, mg.Name, applied)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "only show migration status")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back the last applied migration")
	return cmd
}

func readInput(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}
