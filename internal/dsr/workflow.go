// Package dsr implements the data-subject request workflow: a strict
// forward state machine from intake to completion that drives export,
// erasure, rectification and restriction actions through external
// collaborators.
package dsr

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const lockStripes = 64

// Default response deadlines in days, keyed by jurisdiction.
var defaultSLADays = map[string]int{
	"gdpr": 30,
	"ccpa": 45,
	"lgpd": 15,
}

const fallbackSLADays = 30

// Collaborators are the external actions the workflow drives once a
// request reaches processing. Any of them may be nil; a request whose
// type needs a missing collaborator fails its processing transition.
type Collaborators struct {
	Exporter   Exporter
	Purger     Purger
	Rectifier  Rectifier
	Restrictor Restrictor
}

// Workflow tracks requests from submission to a terminal state. It
// owns its request history for the process lifetime; persistence is a
// collaborator concern.
type Workflow struct {
	mu       [lockStripes]sync.RWMutex
	requests map[string]*Request
	reqMu    sync.RWMutex
	actions  Collaborators
	slaDays  map[string]int
	logger   *logger.Logger
}

// NewWorkflow creates a workflow. slaOverrides replaces or extends the
// built-in jurisdiction SLA table.
func NewWorkflow(actions Collaborators, slaOverrides map[string]int, log *logger.Logger) *Workflow {
	sla := make(map[string]int, len(defaultSLADays))
	for jurisdiction, days := range defaultSLADays {
		sla[jurisdiction] = days
	}
	for jurisdiction, days := range slaOverrides {
		sla[strings.ToLower(jurisdiction)] = days
	}

	return &Workflow{
		requests: make(map[string]*Request),
		actions:  actions,
		slaDays:  sla,
		logger:   log,
	}
}

func stripeFor(requestID string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(requestID))
	return h.Sum32() % lockStripes
}

// SLADays returns the response deadline in days for a jurisdiction.
func (w *Workflow) SLADays(jurisdiction string) int {
	if days, ok := w.slaDays[strings.ToLower(jurisdiction)]; ok {
		return days
	}
	return fallbackSLADays
}

// Submit registers a new request in the pending state and returns its
// id. The processing deadline is fixed here from the jurisdiction SLA
// and never recomputed.
func (w *Workflow) Submit(req Request) (string, error) {
	if req.UserID == "" {
		return "", ErrMissingUserID
	}
	if !validType(req.Type) {
		return "", fmt.Errorf("%w: %s", ErrUnknownType, req.Type)
	}

	req.RequestID = uuid.New().String()
	if req.RequestDate.IsZero() {
		req.RequestDate = time.Now().UTC()
	}
	req.Status = StatusPending
	req.ProcessingDeadline = req.RequestDate.AddDate(0, 0, w.SLADays(req.Jurisdiction))
	req.Outcome = nil

	w.reqMu.Lock()
	w.requests[req.RequestID] = req.clone()
	w.reqMu.Unlock()

	if w.logger != nil {
		w.logger.Info("request submitted",
			zap.String("request_id", req.RequestID),
			zap.String("type", string(req.Type)),
			zap.Time("deadline", req.ProcessingDeadline),
		)
	}
	return req.RequestID, nil
}

// Get returns a copy of a request.
func (w *Workflow) Get(requestID string) (*Request, error) {
	stripe := stripeFor(requestID)
	w.mu[stripe].RLock()
	defer w.mu[stripe].RUnlock()

	req, err := w.lookup(requestID)
	if err != nil {
		return nil, err
	}
	return req.clone(), nil
}

// Advance moves a request to target. Transitions follow the state
// machine exactly: terminal states reject everything, and no state is
// skipped. Advancing into processing runs the request's action
// synchronously; an action failure leaves the request in verified so
// the transition can be retried.
//
// Stored requests are immutable once published: a transition works on
// a copy and replaces the map entry wholesale, so readers holding only
// reqMu (Get, Overdue) never observe a half-applied transition.
func (w *Workflow) Advance(ctx context.Context, requestID string, target Status) (*Request, error) {
	stripe := stripeFor(requestID)
	w.mu[stripe].Lock()
	defer w.mu[stripe].Unlock()

	current, err := w.lookup(requestID)
	if err != nil {
		return nil, err
	}

	if !allowed(current.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, target)
	}

	next := current.clone()

	if target == StatusProcessing {
		outcome, err := w.run(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionFailed, err)
		}
		next.Outcome = outcome
	}
	if target == StatusCompleted && next.Outcome != nil {
		next.Outcome.CompletedAt = time.Now().UTC()
	}

	previous := next.Status
	next.Status = target

	w.reqMu.Lock()
	w.requests[requestID] = next
	w.reqMu.Unlock()

	if w.logger != nil {
		w.logger.Info("request advanced",
			zap.String("request_id", requestID),
			zap.String("from", string(previous)),
			zap.String("to", string(target)),
		)
	}

	return next.clone(), nil
}

// run executes the type-specific action for a request entering
// processing.
func (w *Workflow) run(ctx context.Context, req *Request) (*Outcome, error) {
	switch req.Type {
	case TypeAccess, TypePortability:
		if w.actions.Exporter == nil {
			return nil, fmt.Errorf("no exporter configured")
		}
		bundle, err := w.actions.Exporter.Export(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		return &Outcome{
			ExportLocation:  bundle.Location,
			ExportedRecords: bundle.RecordCount,
		}, nil

	case TypeErasure:
		return w.runErasure(ctx, req)

	case TypeRectification:
		if w.actions.Rectifier == nil {
			return nil, fmt.Errorf("no rectifier configured")
		}
		corrections := req.Details
		if len(corrections) == 0 {
			return nil, ErrNoCorrections
		}
		if err := w.actions.Rectifier.Rectify(ctx, req.UserID, corrections); err != nil {
			return nil, fmt.Errorf("rectify: %w", err)
		}
		fields := make([]string, 0, len(corrections))
		for field := range corrections {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		return &Outcome{RectifiedFields: fields}, nil

	case TypeRestriction, TypeObjection:
		if w.actions.Restrictor == nil || w.actions.Purger == nil {
			return nil, fmt.Errorf("no restrictor configured")
		}
		items, err := w.actions.Purger.Inventory(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("inventory: %w", err)
		}
		categories := categoriesOf(items)
		if err := w.actions.Restrictor.Restrict(ctx, req.UserID, categories); err != nil {
			return nil, fmt.Errorf("restrict: %w", err)
		}
		return &Outcome{RestrictedCategories: categories}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, req.Type)
	}
}

// runErasure deletes every stored category that is not under an active
// retention requirement. Held categories are skipped and reported in
// the outcome, never deleted silently and never blocking the rest.
func (w *Workflow) runErasure(ctx context.Context, req *Request) (*Outcome, error) {
	if w.actions.Purger == nil {
		return nil, fmt.Errorf("no purger configured")
	}

	items, err := w.actions.Purger.Inventory(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("inventory: %w", err)
	}

	outcome := &Outcome{
		DeletedCategories: make([]string, 0, len(items)),
		SkippedCategories: make([]string, 0),
	}
	for _, item := range items {
		if item.LegalHold {
			outcome.SkippedCategories = append(outcome.SkippedCategories, item.Category)
			continue
		}
		outcome.DeletedCategories = append(outcome.DeletedCategories, item.Category)
	}
	sort.Strings(outcome.DeletedCategories)
	sort.Strings(outcome.SkippedCategories)

	if len(outcome.DeletedCategories) > 0 {
		if err := w.actions.Purger.Delete(ctx, req.UserID, outcome.DeletedCategories); err != nil {
			return nil, fmt.Errorf("delete: %w", err)
		}
	}

	if w.logger != nil && len(outcome.SkippedCategories) > 0 {
		w.logger.Warn("erasure skipped held categories",
			zap.String("request_id", req.RequestID),
			zap.Strings("skipped", outcome.SkippedCategories),
		)
	}
	return outcome, nil
}

// Overdue lists requests past their processing deadline that have not
// reached a terminal state. The workflow never escalates them itself;
// this feeds the caller's SLA monitoring.
func (w *Workflow) Overdue(now time.Time) []Request {
	w.reqMu.RLock()
	defer w.reqMu.RUnlock()

	var overdue []Request
	for _, req := range w.requests {
		if req.Status == StatusCompleted || req.Status == StatusRejected {
			continue
		}
		if now.After(req.ProcessingDeadline) {
			overdue = append(overdue, *req.clone())
		}
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].ProcessingDeadline.Before(overdue[j].ProcessingDeadline)
	})
	return overdue
}

func (w *Workflow) lookup(requestID string) (*Request, error) {
	w.reqMu.RLock()
	defer w.reqMu.RUnlock()
	req, ok := w.requests[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}
	return req, nil
}

func allowed(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func categoriesOf(items []StoredItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Category)
	}
	sort.Strings(out)
	return out
}
