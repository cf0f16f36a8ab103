package observability

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/forms/submission", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion log, got %d", len(completed))
	}
	if completed[0].Level != zap.WarnLevel {
		t.Fatalf("expected warn level for 4xx, got %s", completed[0].Level)
	}
	if completed[0].ContextMap()["status"] != int64(http.StatusBadRequest) {
		t.Fatalf("expected status field, got %v", completed[0].ContextMap()["status"])
	}
}

func TestRecoveryMiddlewareWritesJSON(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestSanitizeStringStripsControlCharacters(t *testing.T) {
	if got := sanitizeString("a\nb\x00c", 10); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := sanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("expected truncation, got %q", got)
	}
}

func TestRequestLoggerRecordsFormReferer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSeeOther)
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/forms/contact", nil)
	req.Header.Set("Referer", "https://memorial.example/contact\n")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion log, got %d", len(completed))
	}
	if got := completed[0].ContextMap()["referer"]; got != "https://memorial.example/contact" {
		t.Fatalf("expected sanitized referer, got %v", got)
	}
}
