package server

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dataveil/privacy-sentinel/internal/anonymize"
	"github.com/dataveil/privacy-sentinel/internal/compliance"
	"github.com/dataveil/privacy-sentinel/internal/consent"
	"github.com/dataveil/privacy-sentinel/internal/dsr"
	"github.com/dataveil/privacy-sentinel/internal/engine"
	"github.com/dataveil/privacy-sentinel/internal/vault"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type textRequest struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dsr.ErrUnknownRequest),
		errors.Is(err, consent.ErrNoHistory),
		errors.Is(err, compliance.ErrUnknownCategory):
		return http.StatusNotFound
	case errors.Is(err, dsr.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, vault.ErrAuthentication):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vault.ErrInvalidKeySize),
		errors.Is(err, vault.ErrPayloadShort),
		errors.Is(err, anonymize.ErrMaxDepth),
		errors.Is(err, consent.ErrUnknownPurpose),
		errors.Is(err, consent.ErrMissingUserID),
		errors.Is(err, consent.ErrMissingPurposes),
		errors.Is(err, dsr.ErrUnknownType),
		errors.Is(err, dsr.ErrMissingUserID),
		errors.Is(err, dsr.ErrNoCorrections):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoKey):
		return http.StatusNotImplemented
	case errors.Is(err, dsr.ErrActionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

// handleDetect scans the posted text and returns the matches found.
func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}

	matches := s.engine.Detect(r.Context(), req.Text)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
		"count":   len(matches),
	})
}

func (s *Server) handleAnonymizeText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.AnonymizeText(req.Text))
}

func (s *Server) handleAnonymizeRecord(w http.ResponseWriter, r *http.Request) {
	var record map[string]interface{}
	if !decodeBody(w, r, &record) {
		return
	}

	sanitized, err := s.engine.AnonymizeRecord(record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"record": sanitized})
}

type encryptRequest struct {
	Plaintext string `json:"plaintext"` // base64
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req encryptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	plaintext, err := base64.StdEncoding.DecodeString(req.Plaintext)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "plaintext must be base64"})
		return
	}

	payload, err := s.engine.Encrypt(plaintext)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	var payload vault.EncryptedPayload
	if !decodeBody(w, r, &payload) {
		return
	}

	plaintext, err := s.engine.Decrypt(&payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
}

type hashRequest struct {
	Value string `json:"value"`
	Salt  string `json:"salt,omitempty"` // hex, optional
}

func (s *Server) handleHash(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var salt []byte
	if req.Salt != "" {
		decoded, err := hex.DecodeString(req.Salt)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "salt must be hex"})
			return
		}
		salt = decoded
	}

	digest, err := s.engine.Hash([]byte(req.Value), salt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"digest": hex.EncodeToString(digest.Sum),
		"salt":   hex.EncodeToString(digest.Salt),
	})
}

type pseudonymizeRequest struct {
	ID      string `json:"id"`
	Context string `json:"context"`
}

func (s *Server) handlePseudonymize(w http.ResponseWriter, r *http.Request) {
	var req pseudonymizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pseudonym, err := s.engine.Pseudonymize(req.ID, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pseudonym": pseudonym})
}

func (s *Server) handleRecordConsent(w http.ResponseWriter, r *http.Request) {
	var record consent.Record
	if !decodeBody(w, r, &record) {
		return
	}

	out, err := s.engine.RecordConsent(r.Context(), record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

type withdrawRequest struct {
	Purposes []string `json:"purposes"`
}

func (s *Server) handleWithdrawConsent(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.engine.WithdrawConsent(r.Context(), userID, req.Purposes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleConsentHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.engine.ConsentHistory(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}

func (s *Server) handleCurrentConsent(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.CurrentConsent(r.Context(), mux.Vars(r)["userID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req dsr.Request
	if !decodeBody(w, r, &req) {
		return
	}

	id, err := s.engine.SubmitDSR(req)
	if err != nil {
		writeError(w, err)
		return
	}

	s.persistRequest(r, id)
	writeJSON(w, http.StatusCreated, map[string]string{"request_id": id})
}

type advanceRequest struct {
	Target dsr.Status `json:"target"`
}

func (s *Server) handleAdvanceRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["requestID"]

	var req advanceRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := s.engine.AdvanceDSR(r.Context(), requestID, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}

	s.persistRequest(r, requestID)
	writeJSON(w, http.StatusOK, out)
}

// handleGetRequest answers from the in-memory workflow first; requests
// that predate the current process are read back from the store.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := mux.Vars(r)["requestID"]

	out, err := s.engine.GetDSR(requestID)
	if err != nil {
		if s.store != nil && errors.Is(err, dsr.ErrUnknownRequest) {
			stored, loadErr := s.store.LoadRequest(r.Context(), requestID)
			if loadErr == nil {
				writeJSON(w, http.StatusOK, stored)
				return
			}
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// persistRequest mirrors the request's current state into the durable
// store. Persistence failures are logged, not surfaced: the in-memory
// workflow already holds the authoritative state.
func (s *Server) persistRequest(r *http.Request, requestID string) {
	if s.store == nil {
		return
	}
	req, err := s.engine.GetDSR(requestID)
	if err != nil {
		return
	}
	if err := s.store.SaveRequest(r.Context(), *req); err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to persist request",
			zap.String("dsr_id", requestID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleRetentionLimit(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]

	days, err := s.engine.RetentionLimit(category)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"max_days": days,
	})
}

type transferRequest struct {
	SourceCountry      string   `json:"source_country"`
	DestinationCountry string   `json:"destination_country"`
	Categories         []string `json:"categories"`
}

func (s *Server) handleTransferLegality(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.TransferLegality(req.SourceCountry, req.DestinationCountry, req.Categories))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.GetStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
