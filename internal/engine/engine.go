// Package engine is the library-level facade of the privacy engine.
// It owns the detector, anonymizer, crypto keys, consent ledger, DSR
// workflow and compliance rules, and exposes the operations the
// surrounding application consumes.
package engine

import (
	"context"
	"errors"

	"github.com/dataveil/privacy-sentinel/internal/anonymize"
	"github.com/dataveil/privacy-sentinel/internal/compliance"
	"github.com/dataveil/privacy-sentinel/internal/consent"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
	"github.com/dataveil/privacy-sentinel/internal/vault"
)

// ErrNoKey is returned by crypto operations when the engine was built
// without the corresponding key material.
var ErrNoKey = errors.New("no key configured")

// DetectionCache lets a cache layer short-circuit repeat detections.
// Implementations must treat entries as immutable and must not store
// raw matched values; a hit returns matches with Value empty.
type DetectionCache interface {
	Get(ctx context.Context, text string) ([]pii.Match, bool)
	Set(ctx context.Context, text string, matches []pii.Match)
}

// Events receives notifications about engine activity, e.g. for a
// dashboard stream. Publish must not block.
type Events interface {
	Publish(eventType string, payload interface{})
}

// Event types published by the engine.
const (
	EventDetection  = "detection"
	EventConsent    = "consent_change"
	EventDSR        = "dsr_transition"
	EventAnonymized = "anonymization"
)

// Options carries the optional collaborators and key material.
type Options struct {
	EncryptionKey []byte // 16, 24 or 32 bytes; nil disables encrypt/decrypt
	PseudonymKey  []byte // HMAC key for pseudonymization
	ConsentStore  consent.Store
	Actions       dsr.Collaborators
	SLADays       map[string]int
	Retention     map[string]int
	MaxDepth      int
	Cache         DetectionCache
	Events        Events
}

// Engine bundles every privacy operation behind one facade. All
// methods are safe for concurrent use.
type Engine struct {
	detector   *pii.Detector
	anonymizer *anonymize.Anonymizer
	ledger     *consent.Ledger
	workflow   *dsr.Workflow
	rules      *compliance.Rules
	opts       Options
	logger     *logger.Logger
}

// New builds an engine from detector configuration and options.
func New(detectCfg pii.Config, opts Options, log *logger.Logger) (*Engine, error) {
	detector, err := pii.NewDetector(detectCfg, log)
	if err != nil {
		return nil, err
	}

	if opts.EncryptionKey != nil {
		if err := vault.ValidateKey(opts.EncryptionKey); err != nil {
			return nil, err
		}
	}

	return &Engine{
		detector:   detector,
		anonymizer: anonymize.New(detector, opts.MaxDepth, log),
		ledger:     consent.NewLedger(opts.ConsentStore, log),
		workflow:   dsr.NewWorkflow(opts.Actions, opts.SLADays, log),
		rules:      compliance.NewRules(opts.Retention),
		opts:       opts,
		logger:     log,
	}, nil
}

// Detect scans text for PII, consulting the detection cache when one
// is configured. Results are position-ordered and deterministic in
// span, kind and confidence. Raw matched values are scrubbed before an
// entry is cached, so Match.Value is empty on a cache hit; callers
// needing the value can slice the input with Start and End.
func (e *Engine) Detect(ctx context.Context, text string) []pii.Match {
	if e.opts.Cache != nil {
		if matches, ok := e.opts.Cache.Get(ctx, text); ok {
			return matches
		}
	}

	matches := e.detector.Detect(text)

	if e.opts.Cache != nil {
		e.opts.Cache.Set(ctx, text, matches)
	}
	e.publish(EventDetection, map[string]interface{}{"matches": len(matches)})
	return matches
}

// AnonymizeText replaces detected PII with placeholder tokens.
func (e *Engine) AnonymizeText(text string) anonymize.Result {
	result := e.anonymizer.Text(text)
	if len(result.Transforms) > 0 {
		e.publish(EventAnonymized, map[string]interface{}{"substitutions": len(result.Transforms)})
	}
	return result
}

// AnonymizeRecord recursively anonymizes every string leaf of a
// structured record.
func (e *Engine) AnonymizeRecord(record map[string]interface{}) (map[string]interface{}, error) {
	return e.anonymizer.Record(record)
}

// Encrypt seals plaintext under the engine's encryption key.
func (e *Engine) Encrypt(plaintext []byte) (*vault.EncryptedPayload, error) {
	if e.opts.EncryptionKey == nil {
		return nil, ErrNoKey
	}
	return vault.Encrypt(plaintext, e.opts.EncryptionKey)
}

// Decrypt opens a payload sealed by Encrypt.
func (e *Engine) Decrypt(payload *vault.EncryptedPayload) ([]byte, error) {
	if e.opts.EncryptionKey == nil {
		return nil, ErrNoKey
	}
	return vault.Decrypt(payload, e.opts.EncryptionKey)
}

// Hash derives a salted one-way digest of value; see vault.Hash.
func (e *Engine) Hash(value, salt []byte) (*vault.Digest, error) {
	return vault.Hash(value, salt)
}

// Pseudonymize maps id to a stable context-scoped pseudonym.
func (e *Engine) Pseudonymize(id, context string) (string, error) {
	if e.opts.PseudonymKey == nil {
		return "", ErrNoKey
	}
	return vault.Pseudonymize(e.opts.PseudonymKey, id, context), nil
}

// RecordConsent appends a consent record to the ledger.
func (e *Engine) RecordConsent(ctx context.Context, record consent.Record) (*consent.Record, error) {
	out, err := e.ledger.RecordConsent(ctx, record)
	if err != nil {
		return nil, err
	}
	e.publish(EventConsent, map[string]interface{}{"record_id": out.RecordID, "action": "grant"})
	return out, nil
}

// WithdrawConsent appends a withdrawal record for the named purposes.
func (e *Engine) WithdrawConsent(ctx context.Context, userID string, purposes []string) (*consent.Record, error) {
	out, err := e.ledger.WithdrawConsent(ctx, userID, purposes)
	if err != nil {
		return nil, err
	}
	e.publish(EventConsent, map[string]interface{}{"record_id": out.RecordID, "action": "withdrawal"})
	return out, nil
}

// ConsentHistory returns a user's full consent history, oldest first.
func (e *Engine) ConsentHistory(ctx context.Context, userID string) ([]consent.Record, error) {
	return e.ledger.History(ctx, userID)
}

// CurrentConsent returns a user's most recent consent record.
func (e *Engine) CurrentConsent(ctx context.Context, userID string) (*consent.Record, error) {
	return e.ledger.Current(ctx, userID)
}

// SubmitDSR registers a data-subject request and returns its id.
func (e *Engine) SubmitDSR(req dsr.Request) (string, error) {
	id, err := e.workflow.Submit(req)
	if err != nil {
		return "", err
	}
	e.publish(EventDSR, map[string]interface{}{"request_id": id, "status": string(dsr.StatusPending)})
	return id, nil
}

// AdvanceDSR moves a request to the target status, running the
// request's action when it enters processing.
func (e *Engine) AdvanceDSR(ctx context.Context, requestID string, target dsr.Status) (*dsr.Request, error) {
	req, err := e.workflow.Advance(ctx, requestID, target)
	if err != nil {
		return nil, err
	}
	e.publish(EventDSR, map[string]interface{}{"request_id": requestID, "status": string(req.Status)})
	return req, nil
}

// GetDSR returns a copy of a request.
func (e *Engine) GetDSR(requestID string) (*dsr.Request, error) {
	return e.workflow.Get(requestID)
}

// RetentionLimit returns the maximum retention in days for a category.
func (e *Engine) RetentionLimit(category string) (int, error) {
	return e.rules.RetentionLimit(category)
}

// TransferLegality assesses a cross-border transfer.
func (e *Engine) TransferLegality(src, dst string, categories []string) compliance.TransferAssessment {
	return e.rules.TransferLegality(src, dst, categories)
}

// Rules exposes the compliance rule set to external jobs such as the
// retention scanner.
func (e *Engine) Rules() *compliance.Rules {
	return e.rules
}

// Detector exposes the underlying detector for runtime kind toggling.
func (e *Engine) Detector() *pii.Detector {
	return e.detector
}

// Workflow exposes the DSR workflow for SLA monitoring.
func (e *Engine) Workflow() *dsr.Workflow {
	return e.workflow
}

func (e *Engine) publish(eventType string, payload interface{}) {
	if e.opts.Events != nil {
		e.opts.Events.Publish(eventType, payload)
	}
}
