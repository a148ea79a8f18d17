// Package export builds the data packages served for access and
// portability requests. Bundles are written to local files in Parquet
// or JSON; shipping them to the requester is the caller's concern.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/google/uuid"
	"github.com/segmentio/parquet-go"
	"go.uber.org/zap"
)

// Config contains export bundle settings.
type Config struct {
	Directory string `yaml:"directory" mapstructure:"directory"`
	Format    string `yaml:"format" mapstructure:"format"` // parquet or json
}

// Record is one exportable data item. Payload is the stored JSON
// document for the category.
type Record struct {
	UserID     string    `csv:"user_id" parquet:"user_id" json:"user_id"`
	Category   string    `csv:"category" parquet:"category" json:"category"`
	StoredAt   time.Time `csv:"stored_at" parquet:"stored_at" json:"stored_at"`
	Restricted bool      `csv:"restricted" parquet:"restricted" json:"restricted"`
	Payload    string    `csv:"payload" parquet:"payload" json:"payload"`
}

// DataSource supplies the records to export for a user.
type DataSource interface {
	ExportRecords(ctx context.Context, userID string) ([]Record, error)
}

// FileExporter writes per-user export bundles to the local filesystem.
// It satisfies the workflow's Exporter contract.
type FileExporter struct {
	source DataSource
	config Config
	logger *logger.Logger
}

// NewFileExporter creates an exporter and ensures the output directory
// exists.
func NewFileExporter(source DataSource, config Config, log *logger.Logger) (*FileExporter, error) {
	if config.Format != "parquet" && config.Format != "json" {
		return nil, fmt.Errorf("unsupported export format: %s", config.Format)
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return &FileExporter{
		source: source,
		config: config,
		logger: log,
	}, nil
}

// Export assembles the full bundle for a user and returns where it was
// written. Bundle names carry a fresh id so repeated requests never
// overwrite earlier exports.
func (e *FileExporter) Export(ctx context.Context, userID string) (*dsr.ExportBundle, error) {
	records, err := e.source.ExportRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to collect records: %w", err)
	}

	name := fmt.Sprintf("export-%s.%s", uuid.New().String(), e.config.Format)
	path := filepath.Join(e.config.Directory, name)

	switch e.config.Format {
	case "parquet":
		err = writeParquet(path, records)
	case "json":
		err = writeJSON(path, records)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Info("export bundle written",
		zap.String("path", path),
		zap.Int("records", len(records)),
	)

	return &dsr.ExportBundle{
		Location:    path,
		RecordCount: len(records),
	}, nil
}

func writeParquet(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Record](file)
	if _, err := writer.Write(records); err != nil {
		return fmt.Errorf("failed to write Parquet records: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize Parquet file: %w", err)
	}
	return nil
}

func writeJSON(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to write JSON records: %w", err)
	}
	return nil
}
