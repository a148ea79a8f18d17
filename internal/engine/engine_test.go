package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dataveil/privacy-sentinel/internal/consent"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
)

// fakeCache records cache traffic for one test.
type fakeCache struct {
	entries map[string][]pii.Match
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]pii.Match)}
}

func (c *fakeCache) Get(ctx context.Context, text string) ([]pii.Match, bool) {
	c.gets++
	matches, ok := c.entries[text]
	return matches, ok
}

func (c *fakeCache) Set(ctx context.Context, text string, matches []pii.Match) {
	c.sets++
	c.entries[text] = matches
}

// fakeEvents collects published event types.
type fakeEvents struct {
	types []string
}

func (e *fakeEvents) Publish(eventType string, payload interface{}) {
	e.types = append(e.types, eventType)
}

func (e *fakeEvents) count(eventType string) int {
	n := 0
	for _, t := range e.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func defaultDetectConfig() pii.Config {
	return pii.Config{Detectors: []string{"all"}, MinConfidence: 0.35}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(defaultDetectConfig(), opts, logger.Nop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func TestNew(t *testing.T) {
	t.Run("RejectsBadKey", func(t *testing.T) {
		_, err := New(defaultDetectConfig(), Options{EncryptionKey: []byte("short")}, logger.Nop())
		if err == nil {
			t.Fatal("expected error for invalid key size")
		}
	})

	t.Run("RejectsBadDetectorConfig", func(t *testing.T) {
		_, err := New(pii.Config{Detectors: []string{"dna"}}, Options{}, logger.Nop())
		if err == nil {
			t.Fatal("expected error for unknown detector")
		}
	})
}

func TestDetectWithCache(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	events := &fakeEvents{}
	e := newTestEngine(t, Options{Cache: cache, Events: events})

	text := "reach me at user@example.com"

	first := e.Detect(ctx, text)
	if len(first) != 1 {
		t.Fatalf("expected 1 match, got %d", len(first))
	}
	if cache.sets != 1 {
		t.Errorf("expected 1 cache write, got %d", cache.sets)
	}

	second := e.Detect(ctx, text)
	if len(second) != 1 {
		t.Fatalf("cached detection lost the match: %+v", second)
	}
	if cache.sets != 1 {
		t.Errorf("cache hit still wrote: %d sets", cache.sets)
	}
	if cache.gets != 2 {
		t.Errorf("expected 2 cache reads, got %d", cache.gets)
	}

	// Cache hits skip the event; only the miss publishes.
	if got := events.count(EventDetection); got != 1 {
		t.Errorf("expected 1 detection event, got %d", got)
	}
}

func TestAnonymize(t *testing.T) {
	events := &fakeEvents{}
	e := newTestEngine(t, Options{Events: events})

	t.Run("Text", func(t *testing.T) {
		result := e.AnonymizeText("SSN: 078-05-1120")
		if strings.Contains(result.Sanitized, "078-05-1120") {
			t.Errorf("SSN survived: %q", result.Sanitized)
		}
		if events.count(EventAnonymized) != 1 {
			t.Errorf("expected 1 anonymization event, got %d", events.count(EventAnonymized))
		}
	})

	t.Run("CleanTextPublishesNothing", func(t *testing.T) {
		before := events.count(EventAnonymized)
		e.AnonymizeText("nothing here")
		if events.count(EventAnonymized) != before {
			t.Error("anonymization event published with zero transforms")
		}
	})

	t.Run("Record", func(t *testing.T) {
		out, err := e.AnonymizeRecord(map[string]interface{}{"email": "user@example.com"})
		if err != nil {
			t.Fatalf("AnonymizeRecord failed: %v", err)
		}
		if strings.Contains(out["email"].(string), "user@example.com") {
			t.Errorf("email survived: %v", out["email"])
		}
	})
}

func TestCryptoOperations(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)

	t.Run("EncryptDecryptRoundtrip", func(t *testing.T) {
		e := newTestEngine(t, Options{EncryptionKey: key})
		payload, err := e.Encrypt([]byte("cardholder data"))
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		plaintext, err := e.Decrypt(payload)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if string(plaintext) != "cardholder data" {
			t.Errorf("roundtrip mismatch: %q", plaintext)
		}
	})

	t.Run("NoEncryptionKey", func(t *testing.T) {
		e := newTestEngine(t, Options{})
		if _, err := e.Encrypt([]byte("x")); !errors.Is(err, ErrNoKey) {
			t.Errorf("Encrypt: expected ErrNoKey, got %v", err)
		}
		if _, err := e.Decrypt(nil); !errors.Is(err, ErrNoKey) {
			t.Errorf("Decrypt: expected ErrNoKey, got %v", err)
		}
	})

	t.Run("Pseudonymize", func(t *testing.T) {
		e := newTestEngine(t, Options{PseudonymKey: []byte("hmac-key")})
		first, err := e.Pseudonymize("user-1", "analytics")
		if err != nil {
			t.Fatalf("Pseudonymize failed: %v", err)
		}
		second, err := e.Pseudonymize("user-1", "analytics")
		if err != nil {
			t.Fatalf("Pseudonymize failed: %v", err)
		}
		if first != second {
			t.Error("pseudonyms not stable")
		}
	})

	t.Run("NoPseudonymKey", func(t *testing.T) {
		e := newTestEngine(t, Options{})
		if _, err := e.Pseudonymize("user-1", "ctx"); !errors.Is(err, ErrNoKey) {
			t.Errorf("expected ErrNoKey, got %v", err)
		}
	})

	t.Run("HashNeedsNoKey", func(t *testing.T) {
		e := newTestEngine(t, Options{})
		digest, err := e.Hash([]byte("value"), nil)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		if len(digest.Sum) == 0 || len(digest.Salt) == 0 {
			t.Errorf("incomplete digest: %+v", digest)
		}
	})
}

func TestConsentFlow(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{}
	e := newTestEngine(t, Options{Events: events})

	record := consent.Record{
		UserID: "user-1",
		Purposes: []consent.Purpose{
			{Purpose: "marketing", Consented: true},
			{Purpose: "analytics", Consented: true},
		},
	}
	if _, err := e.RecordConsent(ctx, record); err != nil {
		t.Fatalf("RecordConsent failed: %v", err)
	}
	if _, err := e.WithdrawConsent(ctx, "user-1", []string{"marketing"}); err != nil {
		t.Fatalf("WithdrawConsent failed: %v", err)
	}

	history, err := e.ConsentHistory(ctx, "user-1")
	if err != nil {
		t.Fatalf("ConsentHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("expected 2 records, got %d", len(history))
	}

	current, err := e.CurrentConsent(ctx, "user-1")
	if err != nil {
		t.Fatalf("CurrentConsent failed: %v", err)
	}
	if current.PriorRecordID == "" {
		t.Error("current record is not the withdrawal")
	}

	if got := events.count(EventConsent); got != 2 {
		t.Errorf("expected 2 consent events, got %d", got)
	}
}

type stubExporter struct{}

func (stubExporter) Export(ctx context.Context, userID string) (*dsr.ExportBundle, error) {
	return &dsr.ExportBundle{Location: "/tmp/export.json", RecordCount: 3}, nil
}

func TestDSRFlow(t *testing.T) {
	ctx := context.Background()
	events := &fakeEvents{}
	e := newTestEngine(t, Options{
		Actions: dsr.Collaborators{Exporter: stubExporter{}},
		Events:  events,
	})

	id, err := e.SubmitDSR(dsr.Request{UserID: "user-1", Type: dsr.TypeAccess, Jurisdiction: "gdpr"})
	if err != nil {
		t.Fatalf("SubmitDSR failed: %v", err)
	}

	for _, target := range []dsr.Status{dsr.StatusVerified, dsr.StatusProcessing, dsr.StatusCompleted} {
		if _, err := e.AdvanceDSR(ctx, id, target); err != nil {
			t.Fatalf("AdvanceDSR to %s failed: %v", target, err)
		}
	}

	req, err := e.GetDSR(id)
	if err != nil {
		t.Fatalf("GetDSR failed: %v", err)
	}
	if req.Status != dsr.StatusCompleted {
		t.Errorf("status = %s, want completed", req.Status)
	}
	if req.Outcome == nil || req.Outcome.ExportedRecords != 3 {
		t.Errorf("outcome = %+v", req.Outcome)
	}

	// Submission plus three transitions.
	if got := events.count(EventDSR); got != 4 {
		t.Errorf("expected 4 workflow events, got %d", got)
	}
}

func TestComplianceLookups(t *testing.T) {
	e := newTestEngine(t, Options{Retention: map[string]int{"marketing_data": 365}})

	days, err := e.RetentionLimit("marketing_data")
	if err != nil {
		t.Fatalf("RetentionLimit failed: %v", err)
	}
	if days != 365 {
		t.Errorf("override ignored: got %d", days)
	}

	assessment := e.TransferLegality("DE", "US", []string{"ssn"})
	if !assessment.Compliant || len(assessment.Safeguards) == 0 {
		t.Errorf("unexpected assessment: %+v", assessment)
	}
}
