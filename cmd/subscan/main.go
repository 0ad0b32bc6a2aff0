package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/subscription-tracker/internal/core"
	"github.com/mikey/subscription-tracker/internal/di"
)

func main() {
	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the scan
	if err := container.Invoke(func(
		logger *zap.Logger,
		seeder *core.PatternSeeder,
		refresh *core.RefreshService,
		store core.Store,
		backend core.ModelBackend,
	) error {
		defer logger.Sync()
		defer store.Close()
		return scan(flags, logger, seeder, refresh, backend)
	}); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func scan(
	flags *di.CLIFlags,
	logger *zap.Logger,
	seeder *core.PatternSeeder,
	refresh *core.RefreshService,
	backend core.ModelBackend,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := seeder.Seed(ctx); err != nil {
		return err
	}

	fmt.Printf("=== Scan ===\n")
	fmt.Printf("Directory: %s\n", flags.Dir)
	fmt.Printf("Backend: %s\n", backend.Name())

	startTime := time.Now()
	lastPercent := -1
	report, err := refresh.Refresh(ctx, flags.UserID, func(percent int) {
		if percent/10 != lastPercent/10 {
			logger.Info("Progress", zap.Int("percent", percent))
		}
		lastPercent = percent
	})
	if err != nil {
		return err
	}

	items := report.Items
	if !flags.ShowAll {
		items, err = refresh.ActiveSubscriptions(ctx, flags.UserID)
		if err != nil {
			return err
		}
	}

	if flags.JSONOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	fmt.Printf("Emails read: %d\n", report.Fetched)
	if report.Batch != nil {
		fmt.Printf("Processed: %d, failed: %d\n", report.Batch.Processed, report.Batch.Failed)
		fmt.Printf("Inserted: %d, confirmed: %d, cancelled: %d\n", report.Batch.Inserted, report.Batch.Confirmed, report.Batch.Cancelled)
	}
	fmt.Printf("Processing time: %v\n", time.Since(startTime))

	fmt.Printf("\n=== Subscriptions ===\n")
	if len(items) == 0 {
		fmt.Printf("No subscriptions found\n")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SERVICE\tSTATUS\tSINCE\tLAST EMAIL\n")
	for _, item := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			item.ServiceName,
			item.Status,
			item.StartDate.Format("2006-01-02"),
			item.LastEmailDate.Format("2006-01-02"))
	}
	return tw.Flush()
}
