// Package consent maintains the append-only ledger of data-subject
// consent grants and withdrawals. Records are never mutated in place;
// a withdrawal is a new record referencing the one it supersedes, so
// the full history stays reconstructable.
package consent

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Errors returned by the ledger.
var (
	ErrNoHistory       = errors.New("no consent history for user")
	ErrUnknownPurpose  = errors.New("unknown consent purpose")
	ErrMissingUserID   = errors.New("consent record missing user id")
	ErrMissingPurposes = errors.New("consent record has no purposes")
)

// lockStripes bounds lock memory while still letting unrelated users
// proceed concurrently.
const lockStripes = 64

// Purpose describes one processing purpose inside a consent record.
// A purpose with Required set cannot be meaningfully withdrawn; the
// conflict is surfaced to the caller rather than silently resolved.
type Purpose struct {
	Purpose     string `json:"purpose"`
	Consented   bool   `json:"consented"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Record is one consent event for one user. Withdrawals reference the
// record they supersede via PriorRecordID.
type Record struct {
	RecordID               string    `json:"record_id"`
	UserID                 string    `json:"user_id"`
	ConsentDate            time.Time `json:"consent_date"`
	ConsentVersion         string    `json:"consent_version"`
	Purposes               []Purpose `json:"purposes"`
	Method                 string    `json:"method"`
	IP                     string    `json:"ip,omitempty"`
	UserAgent              string    `json:"user_agent,omitempty"`
	WithdrawalInstructions string    `json:"withdrawal_instructions,omitempty"`
	PriorRecordID          string    `json:"prior_record_id,omitempty"`

	// RequiredConflict is set when a withdrawal named a required
	// purpose. The purpose stays consented; resolving the conflict is
	// a policy decision for the caller.
	RequiredConflict bool `json:"required_conflict,omitempty"`
}

// Store persists consent records outside the process. The ledger keeps
// its in-memory history authoritative for the process lifetime and
// forwards appends to the store when one is configured.
type Store interface {
	SaveConsent(ctx context.Context, record Record) error
	LoadHistory(ctx context.Context, userID string) ([]Record, error)
}

// Ledger is the in-process consent history. Appends for the same user
// serialize on a striped lock; different users rarely contend.
type Ledger struct {
	mu      [lockStripes]sync.RWMutex
	history map[string][]Record
	histMu  sync.RWMutex
	store   Store
	logger  *logger.Logger
}

// NewLedger creates an empty ledger. store may be nil for purely
// in-memory operation.
func NewLedger(store Store, log *logger.Logger) *Ledger {
	return &Ledger{
		history: make(map[string][]Record),
		store:   store,
		logger:  log,
	}
}

func stripeFor(userID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return h.Sum32() % lockStripes
}

// RecordConsent appends a new consent record. It never overwrites:
// re-consenting after a withdrawal is simply another append. The
// record is assigned an id and timestamp if the caller left them zero.
func (l *Ledger) RecordConsent(ctx context.Context, record Record) (*Record, error) {
	if record.UserID == "" {
		return nil, ErrMissingUserID
	}
	if len(record.Purposes) == 0 {
		return nil, ErrMissingPurposes
	}

	if record.RecordID == "" {
		record.RecordID = uuid.New().String()
	}
	if record.ConsentDate.IsZero() {
		record.ConsentDate = time.Now().UTC()
	}
	record.Purposes = clonePurposes(record.Purposes)

	stripe := stripeFor(record.UserID)
	l.mu[stripe].Lock()
	defer l.mu[stripe].Unlock()

	if err := l.appendLocked(ctx, record); err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Debug("consent recorded",
			zap.String("record_id", record.RecordID),
			zap.Int("purposes", len(record.Purposes)),
		)
	}
	return &record, nil
}

// WithdrawConsent appends a withdrawal record: the named purposes are
// marked not consented while every other purpose carries forward from
// the user's current record. Withdrawing a required purpose does not
// remove it; it sets RequiredConflict on the new record so the caller
// can decide what the policy contradiction means for the relationship.
//
// The read of the current record and the append of the withdrawal
// happen under one stripe write lock, so concurrent withdrawals for
// the same user serialize and each carries the other's effect forward.
func (l *Ledger) WithdrawConsent(ctx context.Context, userID string, purposes []string) (*Record, error) {
	stripe := stripeFor(userID)
	l.mu[stripe].Lock()
	defer l.mu[stripe].Unlock()

	records, err := l.historyLocked(ctx, userID)
	if err != nil {
		return nil, err
	}
	current := records[len(records)-1]

	withdrawn := make(map[string]bool, len(purposes))
	for _, p := range purposes {
		withdrawn[p] = true
	}

	next := Record{
		RecordID:       uuid.New().String(),
		UserID:         userID,
		ConsentDate:    time.Now().UTC(),
		ConsentVersion: current.ConsentVersion,
		Method:         "withdrawal",
		Purposes:       current.Purposes,
		PriorRecordID:  current.RecordID,
	}

	matched := 0
	for i := range next.Purposes {
		p := &next.Purposes[i]
		if !withdrawn[p.Purpose] {
			continue
		}
		matched++
		if p.Required {
			next.RequiredConflict = true
			continue
		}
		p.Consented = false
	}
	if matched != len(withdrawn) {
		return nil, fmt.Errorf("%w: user %s", ErrUnknownPurpose, userID)
	}

	if err := l.appendLocked(ctx, next); err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Info("consent withdrawn",
			zap.String("record_id", next.RecordID),
			zap.Int("purposes", matched),
			zap.Bool("required_conflict", next.RequiredConflict),
		)
	}
	return &next, nil
}

// History returns every consent record for a user, oldest first. A
// user not in memory is loaded from the store when one is configured,
// so durable history survives restarts. The returned slice is a copy;
// callers cannot alter ledger state.
func (l *Ledger) History(ctx context.Context, userID string) ([]Record, error) {
	stripe := stripeFor(userID)
	l.mu[stripe].RLock()
	defer l.mu[stripe].RUnlock()

	return l.historyLocked(ctx, userID)
}

// Current returns the most recent consent record for a user.
func (l *Ledger) Current(ctx context.Context, userID string) (*Record, error) {
	records, err := l.History(ctx, userID)
	if err != nil {
		return nil, err
	}
	latest := records[len(records)-1]
	return &latest, nil
}

// historyLocked returns a copy of the user's history, falling back to
// the store on an in-memory miss and caching what it loads. Callers
// hold the user's stripe lock (read or write).
func (l *Ledger) historyLocked(ctx context.Context, userID string) ([]Record, error) {
	l.histMu.RLock()
	records, ok := l.history[userID]
	l.histMu.RUnlock()

	if !ok && l.store != nil {
		loaded, err := l.store.LoadHistory(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load consent history: %w", err)
		}
		if len(loaded) > 0 {
			l.histMu.Lock()
			if cached, again := l.history[userID]; again {
				records = cached
			} else {
				l.history[userID] = loaded
				records = loaded
			}
			l.histMu.Unlock()
			ok = true
		}
	}
	if !ok || len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, userID)
	}

	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r
		out[i].Purposes = clonePurposes(r.Purposes)
	}
	return out, nil
}

// appendLocked persists and records one consent record. Callers hold
// the user's stripe write lock.
func (l *Ledger) appendLocked(ctx context.Context, record Record) error {
	if l.store != nil {
		if err := l.store.SaveConsent(ctx, record); err != nil {
			return fmt.Errorf("persist consent record: %w", err)
		}
	}

	l.histMu.Lock()
	l.history[record.UserID] = append(l.history[record.UserID], record)
	l.histMu.Unlock()
	return nil
}

func clonePurposes(purposes []Purpose) []Purpose {
	out := make([]Purpose, len(purposes))
	copy(out, purposes)
	return out
}
