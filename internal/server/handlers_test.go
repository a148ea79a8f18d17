package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/dataveil/privacy-sentinel/internal/config"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/engine"
	"github.com/dataveil/privacy-sentinel/internal/logger"
	"github.com/dataveil/privacy-sentinel/internal/pii"
)

func newTestServer(t *testing.T, opts engine.Options) *Server {
	t.Helper()

	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	cfg.WebSocket.Enabled = false

	eng, err := engine.New(pii.Config{
		Detectors:     cfg.Privacy.Detectors,
		MinConfidence: cfg.Privacy.MinConfidence,
	}, opts, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	return New(cfg, eng, Options{}, logger.Nop())
}

func do(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestDetectEndpoint(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec := do(t, s, http.MethodPost, "/v1/detect", map[string]string{
		"text": "Card: 4111111111111111, IP: 192.168.1.1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

func TestAnonymizeEndpoint(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec := do(t, s, http.MethodPost, "/v1/anonymize/text", map[string]string{
		"text": "SSN: 078-05-1120",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("078-05-1120")) {
		t.Errorf("SSN leaked into response: %s", rec.Body)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	t.Run("UnknownRequestIs404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/requests/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("UnknownConsentUserIs404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/consent/ghost/history", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("UnknownCategoryIs404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/retention/dreams", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("MissingKeyIs501", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/encrypt", map[string]string{"plaintext": "aGVsbG8="})
		if rec.Code != http.StatusNotImplemented {
			t.Errorf("status = %d, want 501", rec.Code)
		}
	})

	t.Run("MalformedBodyIs400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/detect", bytes.NewBufferString("{nope"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("InvalidTransitionIs409", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/requests", dsr.Request{
			UserID:       "user-1",
			Type:         dsr.TypeAccess,
			Jurisdiction: "gdpr",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body)
		}
		var created struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		path := fmt.Sprintf("/v1/requests/%s/advance", created.RequestID)
		rec = do(t, s, http.MethodPost, path, map[string]string{"target": "completed"})
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})
}

func TestConsentEndpoints(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec := do(t, s, http.MethodPost, "/v1/consent", map[string]interface{}{
		"user_id": "user-1",
		"purposes": []map[string]interface{}{
			{"purpose": "marketing", "consented": true},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodPost, "/v1/consent/user-1/withdraw", map[string]interface{}{
		"purposes": []string{"marketing"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("withdraw status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = do(t, s, http.MethodGet, "/v1/consent/user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d, body = %s", rec.Code, rec.Body)
	}
	var current struct {
		Purposes []struct {
			Purpose   string `json:"purpose"`
			Consented bool   `json:"consented"`
		} `json:"purposes"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &current); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(current.Purposes) != 1 || current.Purposes[0].Consented {
		t.Errorf("withdrawal not reflected: %+v", current.Purposes)
	}
}

func TestTransferAssessEndpoint(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec := do(t, s, http.MethodPost, "/v1/transfers/assess", map[string]interface{}{
		"source_country":      "DE",
		"destination_country": "US",
		"categories":          []string{"ssn"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var assessment struct {
		Compliant  bool     `json:"compliant"`
		Mechanism  string   `json:"mechanism"`
		Safeguards []string `json:"safeguards"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &assessment); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !assessment.Compliant || assessment.Mechanism != "standard_contractual_clauses" {
		t.Errorf("unexpected assessment: %+v", assessment)
	}
	if len(assessment.Safeguards) != 1 {
		t.Errorf("expected ssn safeguard, got %v", assessment.Safeguards)
	}
}

// fakeRequestStore is an in-memory RequestStore.
type fakeRequestStore struct {
	mu    sync.Mutex
	saved map[string]dsr.Request
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{saved: make(map[string]dsr.Request)}
}

func (f *fakeRequestStore) SaveRequest(ctx context.Context, req dsr.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[req.RequestID] = req
	return nil
}

func (f *fakeRequestStore) LoadRequest(ctx context.Context, requestID string) (*dsr.Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.saved[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dsr.ErrUnknownRequest, requestID)
	}
	out := req
	return &out, nil
}

func TestRequestPersistence(t *testing.T) {
	cfg := config.GetDefaults()
	cfg.RateLimit.Enabled = false
	cfg.WebSocket.Enabled = false

	eng, err := engine.New(pii.Config{
		Detectors:     cfg.Privacy.Detectors,
		MinConfidence: cfg.Privacy.MinConfidence,
	}, engine.Options{}, logger.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	requestStore := newFakeRequestStore()
	s := New(cfg, eng, Options{Store: requestStore}, logger.Nop())

	t.Run("SubmitMirrorsToStore", func(t *testing.T) {
		rec := do(t, s, http.MethodPost, "/v1/requests", dsr.Request{
			UserID:       "user-1",
			Type:         dsr.TypeAccess,
			Jurisdiction: "gdpr",
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body)
		}
		var created struct {
			RequestID string `json:"request_id"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}

		requestStore.mu.Lock()
		_, ok := requestStore.saved[created.RequestID]
		requestStore.mu.Unlock()
		if !ok {
			t.Error("submitted request not persisted")
		}
	})

	t.Run("ReadsBackAfterRestart", func(t *testing.T) {
		// A request known only to the store, as after a process restart.
		archived := dsr.Request{
			RequestID: "archived-1",
			UserID:    "user-2",
			Type:      dsr.TypeErasure,
			Status:    dsr.StatusCompleted,
		}
		if err := requestStore.SaveRequest(context.Background(), archived); err != nil {
			t.Fatalf("SaveRequest failed: %v", err)
		}

		rec := do(t, s, http.MethodGet, "/v1/requests/archived-1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
		}
		var out dsr.Request
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if out.Status != dsr.StatusCompleted {
			t.Errorf("status = %s, want completed", out.Status)
		}
	})

	t.Run("UnknownEverywhereIs404", func(t *testing.T) {
		rec := do(t, s, http.MethodGet, "/v1/requests/nowhere", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, engine.Options{})

	rec := do(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte(`"status":"healthy"`)) {
		t.Errorf("unexpected health body: %s", rec.Body)
	}
}
