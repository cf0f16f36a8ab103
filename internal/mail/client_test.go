package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSendTemplateMailPostsPayload(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":[{"code":"EM_104","message":"Email request received"}],"message":"OK","request_id":"req-123","object":"email"}`))
	}))
	defer srv.Close()

	client, err := NewClient("secret-token", WithBaseURL(srv.URL+"/"), WithFrom(Address{Address: "noreply@example.org", Name: "Memorial"}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	id, err := client.SendTemplateMail(context.Background(), TemplateRequest{
		TemplateKey: "tmpl-1",
		To:          []Recipient{{EmailAddress: Address{Address: "info@example.org"}}},
		ReplyTo:     []Address{{Address: "jane@example.com", Name: "Jane"}},
		MergeInfo:   map[string]string{"name": "Jane", "ref": "01HSESSION"},
		Attachments: []Attachment{{Content: "aGVsbG8=", MimeType: "text/plain", Name: "hello.txt"}},
	})
	if err != nil {
		t.Fatalf("SendTemplateMail returned error: %v", err)
	}
	if id != "req-123" {
		t.Fatalf("expected request id req-123, got %q", id)
	}
	if gotPath != "/email/template" {
		t.Fatalf("expected /email/template, got %s", gotPath)
	}
	if gotAuth != "Zoho-enczapikey secret-token" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody["mail_template_key"] != "tmpl-1" {
		t.Fatalf("expected template key in body, got %v", gotBody["mail_template_key"])
	}
	from, _ := gotBody["from"].(map[string]any)
	if from["address"] != "noreply@example.org" {
		t.Fatalf("expected default from address, got %v", from)
	}
	to, _ := gotBody["to"].([]any)
	if len(to) != 1 {
		t.Fatalf("expected one recipient, got %v", gotBody["to"])
	}
	merge, _ := gotBody["merge_info"].(map[string]any)
	if merge["ref"] != "01HSESSION" {
		t.Fatalf("expected ref merge field, got %v", merge)
	}
	if _, ok := gotBody["htmlbody"]; ok {
		t.Fatalf("htmlbody should be omitted when empty")
	}
}

func TestSendTemplateMailReturnsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"TM_3201","message":"Mandatory field missing","request_id":"req-err","details":[{"code":"SERR_157","message":"Invalid API Token found","target":"token"}]}}`))
	}))
	defer srv.Close()

	client, err := NewClient("token", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.SendTemplateMail(context.Background(), TemplateRequest{
		TemplateKey: "tmpl",
		To:          []Recipient{{EmailAddress: Address{Address: "info@example.org"}}},
	})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *ProviderError, got %T", err)
	}
	if perr.Code != "TM_3201" || perr.RequestID != "req-err" || len(perr.Details) != 1 {
		t.Fatalf("unexpected provider error %#v", perr)
	}
}

func TestSendTemplateMailHonoursTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	client, err := NewClient("token", WithBaseURL(srv.URL), WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = client.SendTemplateMail(context.Background(), TemplateRequest{
		TemplateKey: "tmpl",
		To:          []Recipient{{EmailAddress: Address{Address: "info@example.org"}}},
	})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if errors.Is(err, ErrProvider) {
		t.Fatalf("transport failures must not be reported as provider rejections")
	}
}

func TestSendTemplateMailValidatesRequest(t *testing.T) {
	client, err := NewClient("token")
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.SendTemplateMail(context.Background(), TemplateRequest{To: []Recipient{{}}}); err == nil {
		t.Fatalf("expected error without template key")
	}
	if _, err := client.SendTemplateMail(context.Background(), TemplateRequest{TemplateKey: "t"}); err == nil {
		t.Fatalf("expected error without recipients")
	}
}

func TestNewClientRequiresToken(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Fatalf("expected error for empty token")
	}
}
