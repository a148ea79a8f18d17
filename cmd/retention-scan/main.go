package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/dataveil/privacy-sentinel/internal/compliance"
	"github.com/dataveil/privacy-sentinel/internal/config"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/retention"
)

func main() {
	var (
		configPath = flag.String("config", "", "Configuration file path")
		inputFile  = flag.String("input", "", "Data inventory file (CSV, Parquet, or JSON)")
		reportFile = flag.String("report", "", "Write violations to this Parquet file")
		batchSize  = flag.Int("batch-size", 1000, "Batch size for processing")
		workers    = flag.Int("workers", 4, "Number of worker goroutines")
		listOnly   = flag.Bool("list-categories", false, "List known retention categories and exit")
	)
	flag.Parse()

	if *inputFile == "" && !*listOnly {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s --input inventory.csv --report violations.parquet\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --input inventory.parquet --workers 8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --list-categories\n", os.Args[0])
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rules := compliance.NewRules(cfg.Compliance.RetentionOverrides)

	if *listOnly {
		for _, category := range rules.Categories() {
			days, _ := rules.RetentionLimit(category)
			fmt.Printf("%-24s %d days\n", category, days)
		}
		return
	}

	log.Info("Starting retention scan",
		zap.String("input", *inputFile),
		zap.Int("workers", *workers),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, cancelling scan...")
		cancel()
	}()

	scanner := retention.NewScanner(rules, retention.Config{
		BatchSize: *batchSize,
		Workers:   *workers,
	}, log.WithComponent("retention"))

	report, err := scanner.Scan(ctx, *inputFile)
	if err != nil {
		log.Fatal("Retention scan failed", zap.Error(err))
	}

	if *reportFile != "" {
		if err := retention.WriteReport(*reportFile, report); err != nil {
			log.Fatal("Failed to write report", zap.Error(err))
		}
		log.Info("Violation report written", zap.String("path", *reportFile))
	}

	if len(report.Violations) > 0 {
		log.Warn("Retention violations found",
			zap.Int("violations", len(report.Violations)),
			zap.Int("scanned", report.Scanned),
		)
		os.Exit(2)
	}

	log.Info("No retention violations",
		zap.Int("scanned", report.Scanned),
	)
}
