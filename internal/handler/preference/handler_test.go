package preference_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/quhan/chatdeck/internal/handler/preference"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	r := chi.NewRouter()
	preference.New(t.TempDir()).RegisterRoutes(r)
	return r
}

func TestModelPreferenceRoundTrip(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/preferences/model", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var absent map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &absent); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if absent["model"] != nil {
		t.Fatalf("expected absent model before save, got %v", absent["model"])
	}

	body := bytes.NewBufferString(`{"model":"doubao-pro-32k"}`)
	req = httptest.NewRequest(http.MethodPut, "/preferences/model", body)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/preferences/model", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var saved map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if saved["model"] != "doubao-pro-32k" {
		t.Fatalf("expected saved model, got %v", saved["model"])
	}
}

func TestModelPreferenceRejectsEmpty(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/preferences/model", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestPreferenceReset(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/preferences/model", bytes.NewBufferString(`{"model":"doubao-lite"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/preferences", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/preferences/model", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["model"] != nil {
		t.Fatalf("expected model cleared after reset, got %v", result["model"])
	}
}

func TestSidebarPreference(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPut, "/preferences/sidebar", bytes.NewBufferString(`{"width":320}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/preferences/sidebar", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var result map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result["width"] != float64(320) {
		t.Fatalf("expected width 320, got %v", result["width"])
	}
}
