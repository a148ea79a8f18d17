package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

const userDataSchema = `
CREATE TABLE IF NOT EXISTS user_data (
	user_id    TEXT NOT NULL,
	category   TEXT NOT NULL,
	stored_at  TIMESTAMPTZ NOT NULL,
	legal_hold BOOLEAN NOT NULL DEFAULT FALSE,
	restricted BOOLEAN NOT NULL DEFAULT FALSE,
	payload    JSONB NOT NULL,
	PRIMARY KEY (user_id, category)
);
`

// UserData exposes the stored personal-data inventory as the action
// collaborators the request workflow drives: inventory, deletion,
// rectification and restriction.
type UserData struct {
	store *Store
}

// UserRecord is one stored data category for one user.
type UserRecord struct {
	UserID     string    `db:"user_id" json:"user_id"`
	Category   string    `db:"category" json:"category"`
	StoredAt   time.Time `db:"stored_at" json:"stored_at"`
	LegalHold  bool      `db:"legal_hold" json:"legal_hold"`
	Restricted bool      `db:"restricted" json:"restricted"`
	Payload    []byte    `db:"payload" json:"payload"`
}

// NewUserData ensures the inventory table exists.
func NewUserData(s *Store) (*UserData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, userDataSchema); err != nil {
		return nil, fmt.Errorf("failed to create user_data schema: %w", err)
	}
	return &UserData{store: s}, nil
}

// Inventory lists a user's stored categories for the erasure and
// restriction workflows.
func (u *UserData) Inventory(ctx context.Context, userID string) ([]dsr.StoredItem, error) {
	query := `
		SELECT category, stored_at, legal_hold FROM user_data
		WHERE user_id = $1
		ORDER BY category`

	var rows []struct {
		Category  string    `db:"category"`
		StoredAt  time.Time `db:"stored_at"`
		LegalHold bool      `db:"legal_hold"`
	}
	if err := u.store.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}

	items := make([]dsr.StoredItem, len(rows))
	for i, row := range rows {
		items[i] = dsr.StoredItem{
			Category:  row.Category,
			StoredAt:  row.StoredAt,
			LegalHold: row.LegalHold,
		}
	}
	return items, nil
}

// Delete removes the given categories for a user. Callers are expected
// to have excluded held categories already; a legal hold here is a
// hard refusal, not a skip.
func (u *UserData) Delete(ctx context.Context, userID string, categories []string) error {
	query := `
		DELETE FROM user_data
		WHERE user_id = $1 AND category = ANY($2) AND legal_hold = FALSE`

	result, err := u.store.db.ExecContext(ctx, query, userID, pq.Array(categories))
	if err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}

	deleted, _ := result.RowsAffected()
	if int(deleted) != len(categories) {
		return fmt.Errorf("deleted %d of %d categories; remainder under legal hold", deleted, len(categories))
	}

	u.store.logger.Info("user data deleted",
		zap.Int64("categories", deleted),
	)
	return nil
}

// Rectify merges caller-supplied corrections into a user's payloads.
// Each correction key is "category.field".
func (u *UserData) Rectify(ctx context.Context, userID string, corrections map[string]string) error {
	query := `
		UPDATE user_data
		SET payload = jsonb_set(payload, ARRAY[$3], to_jsonb($4::text))
		WHERE user_id = $1 AND category = $2`

	for key, value := range corrections {
		category, field, ok := splitCorrectionKey(key)
		if !ok {
			return fmt.Errorf("malformed correction key: %s", key)
		}
		result, err := u.store.db.ExecContext(ctx, query, userID, category, field, value)
		if err != nil {
			return fmt.Errorf("failed to rectify %s: %w", key, err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return fmt.Errorf("no stored data for category %s", category)
		}
	}
	return nil
}

// Restrict marks categories as processing-restricted without deleting
// them.
func (u *UserData) Restrict(ctx context.Context, userID string, categories []string) error {
	query := `
		UPDATE user_data
		SET restricted = TRUE
		WHERE user_id = $1 AND category = ANY($2)`

	if _, err := u.store.db.ExecContext(ctx, query, userID, pq.Array(categories)); err != nil {
		return fmt.Errorf("failed to restrict user data: %w", err)
	}
	return nil
}

// Records returns every stored record for a user, for export builds.
func (u *UserData) Records(ctx context.Context, userID string) ([]UserRecord, error) {
	query := `
		SELECT user_id, category, stored_at, legal_hold, restricted, payload
		FROM user_data
		WHERE user_id = $1
		ORDER BY category`

	var records []UserRecord
	if err := u.store.db.SelectContext(ctx, &records, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load user records: %w", err)
	}
	return records, nil
}

func splitCorrectionKey(key string) (category, field string, ok bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			if i == 0 || i == len(key)-1 {
				return "", "", false
			}
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}
