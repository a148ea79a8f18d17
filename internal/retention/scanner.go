// Package retention implements the external retention job: it reads a
// data inventory (CSV, JSON or Parquet), checks every record against
// the compliance retention table and reports violations. The scanner
// only reports; deletion stays with the owning service.
package retention

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/compliance"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Config controls scan batching and concurrency.
type Config struct {
	BatchSize int
	Workers   int
}

// InventoryRecord is one stored data item from the input inventory.
type InventoryRecord struct {
	UserID   string    `csv:"user_id" parquet:"user_id" json:"user_id"`
	Category string    `csv:"category" parquet:"category" json:"category"`
	StoredAt time.Time `csv:"stored_at" parquet:"stored_at" json:"stored_at"`
}

// Violation is one record held past its retention limit.
type Violation struct {
	UserID    string    `parquet:"user_id" json:"user_id"`
	Category  string    `parquet:"category" json:"category"`
	StoredAt  time.Time `parquet:"stored_at" json:"stored_at"`
	LimitDays int       `parquet:"limit_days" json:"limit_days"`
	Detail    string    `parquet:"detail" json:"detail"`
}

// Report summarizes one scan.
type Report struct {
	Scanned           int           `json:"scanned"`
	Violations        []Violation   `json:"violations"`
	UnknownCategories int           `json:"unknown_categories"`
	Duration          time.Duration `json:"duration"`
}

// Scanner checks inventory records against the retention rules.
type Scanner struct {
	rules  *compliance.Rules
	config Config
	logger *logger.Logger
}

// NewScanner creates a scanner. Zero config values get defaults.
func NewScanner(rules *compliance.Rules, config Config, log *logger.Logger) *Scanner {
	if config.BatchSize <= 0 {
		config.BatchSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 4
	}
	return &Scanner{
		rules:  rules,
		config: config,
		logger: log,
	}
}

// Scan reads the inventory file and returns the violation report.
// The input format is chosen by file extension.
func (s *Scanner) Scan(ctx context.Context, inputPath string) (*Report, error) {
	start := time.Now()
	now := time.Now().UTC()

	records := make(chan InventoryRecord, s.config.BatchSize)
	report := &Report{}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range records {
				err := s.rules.CheckRetention(record.Category, record.StoredAt, now)

				mu.Lock()
				report.Scanned++
				switch {
				case errors.Is(err, compliance.ErrUnknownCategory):
					report.UnknownCategories++
				case errors.Is(err, compliance.ErrRetentionViolation):
					limit, _ := s.rules.RetentionLimit(record.Category)
					report.Violations = append(report.Violations, Violation{
						UserID:    record.UserID,
						Category:  record.Category,
						StoredAt:  record.StoredAt,
						LimitDays: limit,
						Detail:    err.Error(),
					})
				}
				mu.Unlock()
			}
		}()
	}

	err := s.read(ctx, inputPath, records)
	close(records)
	wg.Wait()
	if err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)

	s.logger.Info("Retention scan completed",
		zap.Int("scanned", report.Scanned),
		zap.Int("violations", len(report.Violations)),
		zap.Int("unknown_categories", report.UnknownCategories),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// read dispatches on the input file extension and streams records into
// the channel.
func (s *Scanner) read(ctx context.Context, inputPath string, records chan<- InventoryRecord) error {
	switch strings.ToLower(filepath.Ext(inputPath)) {
	case ".csv":
		return s.readCSV(ctx, inputPath, records)
	case ".json":
		return s.readJSON(ctx, inputPath, records)
	case ".parquet":
		return s.readParquet(ctx, inputPath, records)
	default:
		return fmt.Errorf("unsupported inventory format: %s", filepath.Ext(inputPath))
	}
}

func (s *Scanner) readCSV(ctx context.Context, inputPath string, records chan<- InventoryRecord) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 3 // user_id, category, stored_at

	// Read header
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV row: %w", err)
		}

		storedAt, err := time.Parse(time.RFC3339, row[2])
		if err != nil {
			return fmt.Errorf("malformed stored_at %q: %w", row[2], err)
		}

		records <- InventoryRecord{
			UserID:   row[0],
			Category: row[1],
			StoredAt: storedAt,
		}
	}
}

func (s *Scanner) readJSON(ctx context.Context, inputPath string, records chan<- InventoryRecord) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open JSON file: %w", err)
	}
	defer file.Close()

	var items []InventoryRecord
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		return fmt.Errorf("failed to decode JSON inventory: %w", err)
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		records <- item
	}
	return nil
}

func (s *Scanner) readParquet(ctx context.Context, inputPath string, records chan<- InventoryRecord) error {
	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open Parquet file: %w", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var record InventoryRecord
		err := reader.Read(&record)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read Parquet record: %w", err)
		}
		records <- record
	}
}

// WriteReport writes the violation list as a Parquet file for
// downstream tooling.
func WriteReport(path string, report *Report) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Violation](file)
	if len(report.Violations) > 0 {
		if _, err := writer.Write(report.Violations); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize report: %w", err)
	}
	return nil
}
