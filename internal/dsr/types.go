package dsr

import (
	"context"
	"errors"
	"time"
)

// Errors returned by the workflow.
var (
	ErrUnknownRequest    = errors.New("unknown request")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrUnknownType       = errors.New("unknown request type")
	ErrMissingUserID     = errors.New("request missing user id")
	ErrNoCorrections     = errors.New("rectification request carries no corrections")
	ErrActionFailed      = errors.New("request action failed")
)

// Type enumerates the data-subject rights a request can exercise.
type Type string

const (
	TypeAccess        Type = "access"
	TypeErasure       Type = "erasure"
	TypePortability   Type = "portability"
	TypeRectification Type = "rectification"
	TypeRestriction   Type = "restriction"
	TypeObjection     Type = "objection"
)

// Status is the workflow state of a request. Only Status ever mutates
// after submission, and only along the transition table.
type Status string

const (
	StatusPending    Status = "pending"
	StatusVerified   Status = "verified"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// transitions is the complete forward state machine. Completed and
// rejected are terminal; nothing skips a state.
var transitions = map[Status][]Status{
	StatusPending:    {StatusVerified, StatusRejected},
	StatusVerified:   {StatusProcessing, StatusRejected},
	StatusProcessing: {StatusCompleted},
	StatusCompleted:  {},
	StatusRejected:   {},
}

// Request is one data-subject request. ProcessingDeadline is computed
// at submission from the jurisdiction SLA and never changes; a request
// past its deadline stays in its current state and is the caller's
// monitoring concern.
type Request struct {
	RequestID          string            `json:"request_id"`
	UserID             string            `json:"user_id"`
	Type               Type              `json:"type"`
	RequestDate        time.Time         `json:"request_date"`
	VerificationMethod string            `json:"verification_method"`
	Status             Status            `json:"status"`
	ProcessingDeadline time.Time         `json:"processing_deadline"`
	Jurisdiction       string            `json:"jurisdiction"`
	Details            map[string]string `json:"details,omitempty"`
	Outcome            *Outcome          `json:"outcome,omitempty"`
}

// Outcome records what the processing action did. Erasure lists both
// what was deleted and what retention kept alive; nothing is skipped
// silently.
type Outcome struct {
	ExportLocation       string    `json:"export_location,omitempty"`
	ExportedRecords      int       `json:"exported_records,omitempty"`
	DeletedCategories    []string  `json:"deleted_categories,omitempty"`
	SkippedCategories    []string  `json:"skipped_categories,omitempty"`
	RestrictedCategories []string  `json:"restricted_categories,omitempty"`
	RectifiedFields      []string  `json:"rectified_fields,omitempty"`
	CompletedAt          time.Time `json:"completed_at"`
}

// StoredItem describes one data category held for a user, as reported
// by the storage collaborator. LegalHold marks categories under an
// active retention requirement that erasure must skip.
type StoredItem struct {
	Category  string    `json:"category"`
	StoredAt  time.Time `json:"stored_at"`
	LegalHold bool      `json:"legal_hold"`
}

// ExportBundle is the result of building a portability/access export.
type ExportBundle struct {
	Location    string `json:"location"`
	RecordCount int    `json:"record_count"`
}

// Exporter assembles access and portability packages. The workflow
// only validates and records the result; storage stays external.
type Exporter interface {
	Export(ctx context.Context, userID string) (*ExportBundle, error)
}

// Purger enumerates and deletes a user's stored categories.
type Purger interface {
	Inventory(ctx context.Context, userID string) ([]StoredItem, error)
	Delete(ctx context.Context, userID string, categories []string) error
}

// Rectifier applies caller-supplied field corrections.
type Rectifier interface {
	Rectify(ctx context.Context, userID string, corrections map[string]string) error
}

// Restrictor marks categories as processing-restricted without
// deleting them, for restriction and objection requests.
type Restrictor interface {
	Restrict(ctx context.Context, userID string, categories []string) error
}

// clone copies a request including its Outcome and Details, so a
// published request is never written through a copy handed out to a
// caller or built during a transition.
func (r *Request) clone() *Request {
	out := *r
	if r.Outcome != nil {
		outcome := *r.Outcome
		out.Outcome = &outcome
	}
	if r.Details != nil {
		details := make(map[string]string, len(r.Details))
		for k, v := range r.Details {
			details[k] = v
		}
		out.Details = details
	}
	return &out
}

func validType(t Type) bool {
	switch t {
	case TypeAccess, TypeErasure, TypePortability, TypeRectification, TypeRestriction, TypeObjection:
		return true
	}
	return false
}
