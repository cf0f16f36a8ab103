package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sl-c19-memorial/memorial-web/internal/platform/requestctx"
)

func TestWriteErrorEnvelope(t *testing.T) {
	ctx := requestctx.WithSessionID(context.Background(), "01J0SESSION")
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("invalid_form", "body could not\nbe parsed", http.StatusBadRequest).
		WithDetails(map[string]any{"form": "contact"}))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != "invalid_form" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if body["message"] != "body could not be parsed" {
		t.Fatalf("expected newline stripped message, got %v", body["message"])
	}
	if body["sessionId"] != "01J0SESSION" {
		t.Fatalf("expected session id from context, got %v", body["sessionId"])
	}
	if body["form"] != "contact" {
		t.Fatalf("expected details merged, got %v", body["form"])
	}
}

func TestNewErrorDefaultsStatus(t *testing.T) {
	err := NewError("boom", "failed", 0)
	if err.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 default, got %d", err.Status)
	}
}
