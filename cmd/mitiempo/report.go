package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mitiempo/mitiempo/internal/config"
	"github.com/mitiempo/mitiempo/internal/progress"
	"github.com/mitiempo/mitiempo/internal/storage"
	"github.com/mitiempo/mitiempo/internal/tracker"
)

var (
	reportDate string
	reportDays int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a daily activity report",
	Long:  `Print tracked time per activity for one day, plus a short history.`,
	Example: `  mitiempo report
  mitiempo report --date 2026-08-30
  mitiempo report --days 7`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportDate, "date", "", "Date to report on (YYYY-MM-DD, default today)")
	reportCmd.Flags().IntVar(&reportDays, "days", 7, "Number of history days to show")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	clock := tracker.RealClock{}
	aggregator, err := progress.New(store.Intervals(), cfg.Tracking.DailyGoalMinutes, clock, zerolog.Nop())
	if err != nil {
		return err
	}

	date := reportDate
	if date == "" {
		date = storage.DateOf(clock.Now())
	} else if _, err := time.Parse(storage.DateFormat, date); err != nil {
		return fmt.Errorf("invalid date %q: must be YYYY-MM-DD", date)
	}

	ctx := context.Background()
	summary, err := aggregator.Summary(ctx, date)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)

	cyan.Printf("Activity report for %s\n\n", summary.Date)
	for _, kind := range storage.AllActivityKinds() {
		fmt.Printf("  %-10s %s\n", kind, formatMinutes(summary.Minutes[kind]))
	}
	fmt.Printf("  %-10s %s\n\n", "total", formatMinutes(summary.TotalMinutes))

	pct := int(summary.Ratio * 100)
	bar := progressBar(summary.Ratio, 40)
	if summary.TotalMinutes >= int64(summary.GoalMinutes) {
		green.Printf("  Goal reached: %s of %dm (%d%%)\n", formatMinutes(summary.TotalMinutes), summary.GoalMinutes, pct)
	} else {
		yellow.Printf("  Goal progress: %s of %dm (%d%%)\n", formatMinutes(summary.TotalMinutes), summary.GoalMinutes, pct)
	}
	fmt.Printf("  %s\n", bar)

	records, err := aggregator.Records(ctx, date)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		cyan.Printf("\nIntervals\n\n")
		for _, iv := range records {
			end := "running"
			if !iv.Open() {
				end = time.UnixMilli(iv.EndMillis).Format("15:04")
			}
			fmt.Printf("  %s  %s - %-7s  %-10s %s\n",
				iv.Date, iv.Start().Format("15:04"), end, iv.Kind, formatMinutes(iv.DurationMillis/60000))
		}
	}

	if reportDays > 1 {
		history, err := aggregator.History(ctx, reportDays)
		if err != nil {
			return err
		}
		cyan.Printf("\nLast %d days\n\n", reportDays)
		for _, day := range history {
			fmt.Printf("  %s  %-8s %s\n", day.Date, formatMinutes(day.TotalMinutes), progressBar(day.Ratio, 20))
		}
	}

	return nil
}

func formatMinutes(minutes int64) string {
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}

func progressBar(ratio float64, width int) string {
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}
	filled := int(ratio * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
