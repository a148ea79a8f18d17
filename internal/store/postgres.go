// Package store persists consent records and data-subject requests in
// PostgreSQL. The engine keeps its in-memory histories authoritative;
// this layer is the durable copy that survives restarts.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/consent"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Store is the shared PostgreSQL handle for consent and request
// persistence.
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS consent_records (
	record_id    TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	consent_date TIMESTAMPTZ NOT NULL,
	record       JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_consent_user ON consent_records (user_id, consent_date);

CREATE TABLE IF NOT EXISTS subject_requests (
	request_id   TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	status       TEXT NOT NULL,
	request_date TIMESTAMPTZ NOT NULL,
	deadline     TIMESTAMPTZ NOT NULL,
	request      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_requests_user ON subject_requests (user_id);
CREATE INDEX IF NOT EXISTS idx_requests_deadline ON subject_requests (deadline) WHERE status NOT IN ('completed', 'rejected');
`

// New connects to PostgreSQL, configures the pool and ensures the
// schema exists.
func New(config Config, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	s := &Store{
		db:     db,
		logger: log,
	}

	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log.Info("Store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)

	return s, nil
}

// initialize verifies the connection and creates the tables.
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveConsent appends a consent record. The table is append-only; a
// duplicate record id is an error, never an update.
func (s *Store) SaveConsent(ctx context.Context, record consent.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal consent record: %w", err)
	}

	query := `
		INSERT INTO consent_records (record_id, user_id, consent_date, record)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, record.RecordID, record.UserID, record.ConsentDate, payload); err != nil {
		s.logger.Error("Failed to persist consent record",
			zap.Error(err),
			zap.String("record_id", record.RecordID),
		)
		return fmt.Errorf("failed to persist consent record: %w", err)
	}
	return nil
}

// LoadHistory returns a user's consent records, oldest first.
func (s *Store) LoadHistory(ctx context.Context, userID string) ([]consent.Record, error) {
	query := `
		SELECT record FROM consent_records
		WHERE user_id = $1
		ORDER BY consent_date ASC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load consent history: %w", err)
	}
	defer rows.Close()

	var records []consent.Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		var record consent.Record
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("unmarshal consent record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// SaveRequest upserts a data-subject request. Status changes replace
// the stored row; the full transition history lives in the audit log,
// not here.
func (s *Store) SaveRequest(ctx context.Context, req dsr.Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	query := `
		INSERT INTO subject_requests (request_id, user_id, status, request_date, deadline, request)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (request_id) DO UPDATE SET status = $3, request = $6`

	if _, err := s.db.ExecContext(ctx, query,
		req.RequestID, req.UserID, string(req.Status), req.RequestDate, req.ProcessingDeadline, payload,
	); err != nil {
		s.logger.Error("Failed to persist request",
			zap.Error(err),
			zap.String("request_id", req.RequestID),
		)
		return fmt.Errorf("failed to persist request: %w", err)
	}
	return nil
}

// LoadRequest returns one persisted request.
func (s *Store) LoadRequest(ctx context.Context, requestID string) (*dsr.Request, error) {
	var payload []byte
	query := `SELECT request FROM subject_requests WHERE request_id = $1`

	if err := s.db.GetContext(ctx, &payload, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", dsr.ErrUnknownRequest, requestID)
		}
		return nil, fmt.Errorf("failed to load request: %w", err)
	}

	var req dsr.Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal request: %w", err)
	}
	return &req, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// maskDatabaseURL masks credentials in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
