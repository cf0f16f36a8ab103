package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.zeptomail.com/v1.1"
	defaultTimeout = 30 * time.Second
	templatePath   = "/email/template"
	maxErrorBody   = 64 << 10
)

// ErrProvider is wrapped by every failure reported by the mail provider.
var ErrProvider = errors.New("mail: provider rejected request")

// Address is an e-mail identity.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// Recipient wraps an address the way the provider expects in "to".
type Recipient struct {
	EmailAddress Address `json:"email_address"`
}

// Attachment is an inline file, base64 encoded.
type Attachment struct {
	Content  string `json:"content"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name"`
}

// TemplateRequest is one template send.
type TemplateRequest struct {
	TemplateKey string            `json:"mail_template_key"`
	From        Address           `json:"from"`
	To          []Recipient       `json:"to"`
	ReplyTo     []Address         `json:"reply_to,omitempty"`
	MergeInfo   map[string]string `json:"merge_info,omitempty"`
	Attachments []Attachment      `json:"attachments,omitempty"`
	HTMLBody    string            `json:"htmlbody,omitempty"`
}

// Sender sends template mail and returns the provider's request id.
type Sender interface {
	SendTemplateMail(ctx context.Context, req TemplateRequest) (string, error)
}

// ProviderError carries the provider diagnostics for a failed send.
type ProviderError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
	Details   []ProviderErrorDetail
}

// ProviderErrorDetail is one entry of the provider's error details.
type ProviderErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Target  string `json:"target,omitempty"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	parts := []string{fmt.Sprintf("mail: provider status %d", e.Status)}
	if e.Code != "" {
		parts = append(parts, "code "+e.Code)
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	for _, d := range e.Details {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Code, d.Message))
	}
	return strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match ErrProvider.
func (e *ProviderError) Unwrap() error { return ErrProvider }

// Client is a ZeptoMail template API binding.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	from       Address
	logger     *zap.Logger
}

// Option customises the client.
type Option func(*Client)

// WithBaseURL overrides the API root (tests, regional endpoints).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url = strings.TrimRight(strings.TrimSpace(url), "/"); url != "" {
			c.baseURL = url
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithFrom sets the sender used when a request has none.
func WithFrom(from Address) Option {
	return func(c *Client) { c.from = from }
}

// NewClient builds a client authenticated with a send-mail token.
func NewClient(token string, opts ...Option) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("mail: token is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		token:      strings.TrimPrefix(token, "Zoho-enczapikey "),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.logger = c.logger.With(zap.String("component", "zeptomail-client"))
	return c, nil
}

type sendResponse struct {
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
	Error     *struct {
		Code      string                `json:"code"`
		Message   string                `json:"message"`
		RequestID string                `json:"request_id"`
		Details   []ProviderErrorDetail `json:"details"`
	} `json:"error"`
}

// SendTemplateMail posts req to the template endpoint and returns the provider request id.
func (c *Client) SendTemplateMail(ctx context.Context, req TemplateRequest) (string, error) {
	if req.From.Address == "" {
		req.From = c.from
	}
	if req.TemplateKey == "" {
		return "", errors.New("mail: template key is required")
	}
	if len(req.To) == 0 {
		return "", errors.New("mail: at least one recipient is required")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("mail: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+templatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("mail: build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Zoho-enczapikey "+c.token)

	c.logger.Debug("sending template mail",
		zap.Int("recipients", len(req.To)),
		zap.Int("attachments", len(req.Attachments)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("mail: send: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return "", fmt.Errorf("mail: read response: %w", err)
	}

	var parsed sendResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{Status: resp.StatusCode}
		if decodeErr == nil && parsed.Error != nil {
			perr.Code = parsed.Error.Code
			perr.Message = parsed.Error.Message
			perr.RequestID = parsed.Error.RequestID
			perr.Details = parsed.Error.Details
		} else {
			perr.Message = strings.TrimSpace(string(raw))
		}
		c.logger.Warn("template mail rejected",
			zap.Int("status", perr.Status),
			zap.String("code", perr.Code),
			zap.String("provider_request_id", perr.RequestID),
		)
		return "", perr
	}
	if decodeErr != nil {
		return "", fmt.Errorf("mail: decode response: %w", decodeErr)
	}

	c.logger.Debug("template mail accepted", zap.String("provider_request_id", parsed.RequestID))
	return parsed.RequestID, nil
}
