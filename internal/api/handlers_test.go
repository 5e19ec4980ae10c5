package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trade-signal-engine/config"
	"trade-signal-engine/internal/calibrate"
	"trade-signal-engine/internal/market"
	"trade-signal-engine/internal/pipeline"
)

type stubPipeline struct {
	store *calibrate.Store
}

func (s *stubPipeline) GenerateSignal(_ context.Context, instrument, timeframe string, _ int) *pipeline.Signal {
	return &pipeline.Signal{
		ID:         "test-signal",
		Timestamp:  time.Now().UTC(),
		Instrument: instrument,
		Timeframe:  timeframe,
		Decision:   market.DecisionNoTrade,
		Rationale:  "test",
	}
}

func (s *stubPipeline) Thresholds() *calibrate.Thresholds {
	return s.store.Current()
}

func newTestServer(authEnabled bool) *Server {
	return NewServer(
		config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		config.AuthConfig{Enabled: authEnabled, JWTSecret: "test-secret"},
		&stubPipeline{store: calibrate.NewStore(calibrate.Thresholds{MinConfidence: 70, ConsensusRequired: true})},
		nil, nil, nil,
		zerolog.Nop(),
	)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/health", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", body["status"])
	}
	if body["database"] != "disabled" {
		t.Errorf("Expected database disabled, got %v", body["database"])
	}
}

func TestHandleGenerateSignal(t *testing.T) {
	s := newTestServer(false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/signals/generate",
		strings.NewReader(`{"instrument":"BTCUSDT","timeframe":"1h"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var body struct {
		Success bool            `json:"success"`
		Data    pipeline.Signal `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body.Data.Instrument != "BTCUSDT" || body.Data.Timeframe != "1h" {
		t.Errorf("Unexpected signal: %+v", body.Data)
	}
}

func TestHandleGenerateSignalValidation(t *testing.T) {
	s := newTestServer(false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/signals/generate",
		strings.NewReader(`{"instrument":"BTCUSDT"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for missing timeframe, got %d", w.Code)
	}
}

func TestHandleThresholds(t *testing.T) {
	s := newTestServer(false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/thresholds", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var body struct {
		Data calibrate.Thresholds `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if body.Data.MinConfidence != 70 || body.Data.Version != 1 {
		t.Errorf("Unexpected thresholds: %+v", body.Data)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	s := newTestServer(true)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/thresholds", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", w.Code)
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	s := newTestServer(true)

	token, err := GenerateOperatorToken("test-secret", "ops", time.Hour)
	if err != nil {
		t.Fatalf("GenerateOperatorToken failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/thresholds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 with valid token, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	s := newTestServer(true)

	token, err := GenerateOperatorToken("other-secret", "ops", time.Hour)
	if err != nil {
		t.Fatalf("GenerateOperatorToken failed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/thresholds", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 with wrong secret, got %d", w.Code)
	}
}

func TestHandleCalibrateUnwired(t *testing.T) {
	s := newTestServer(false)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/v1/calibrate", nil)
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 without calibrator, got %d", w.Code)
	}
}
