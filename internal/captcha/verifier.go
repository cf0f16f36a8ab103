package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultVerifyURL  = "https://hcaptcha.com/siteverify"
	defaultTokenField = "h-captcha-response"
	defaultTimeout    = 30 * time.Second
)

// ErrUnavailable is wrapped when the verification service could not give an answer.
var ErrUnavailable = errors.New("captcha: verification service unavailable")

// Validator checks the CAPTCHA proof carried in a form's fields. A false result means the proof
// was rejected; an error means no verdict could be obtained.
type Validator interface {
	Validate(ctx context.Context, fields map[string]string) (bool, error)
}

// Verifier calls the hCaptcha siteverify endpoint.
type Verifier struct {
	httpClient *http.Client
	verifyURL  string
	secret     string
	siteKey    string
	tokenField string
	logger     *zap.Logger
}

// Option customises the verifier.
type Option func(*Verifier)

// WithVerifyURL overrides the siteverify endpoint.
func WithVerifyURL(u string) Option {
	return func(v *Verifier) {
		if u = strings.TrimSpace(u); u != "" {
			v.verifyURL = u
		}
	}
}

// WithSiteKey sends the site key along so the service can check the token was issued for it.
func WithSiteKey(key string) Option {
	return func(v *Verifier) { v.siteKey = strings.TrimSpace(key) }
}

// WithTokenField sets the form field holding the token.
func WithTokenField(field string) Option {
	return func(v *Verifier) {
		if field = strings.TrimSpace(field); field != "" {
			v.tokenField = field
		}
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.httpClient = &http.Client{Timeout: d}
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		if client != nil {
			v.httpClient = client
		}
	}
}

// WithLogger sets the verifier logger.
func WithLogger(logger *zap.Logger) Option {
	return func(v *Verifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// NewVerifier builds a verifier for the given account secret.
func NewVerifier(secret string, opts ...Option) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("captcha: secret is required")
	}
	v := &Verifier{
		httpClient: &http.Client{Timeout: defaultTimeout},
		verifyURL:  defaultVerifyURL,
		secret:     secret,
		tokenField: defaultTokenField,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v, nil
}

// TokenField returns the form field the token is read from.
func (v *Verifier) TokenField() string { return v.tokenField }

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Hostname   string   `json:"hostname"`
	ErrorCodes []string `json:"error-codes"`
}

// Validate reads the token from fields and asks the service about it. A missing token is a
// rejection, not an error.
func (v *Verifier) Validate(ctx context.Context, fields map[string]string) (bool, error) {
	token := strings.TrimSpace(fields[v.tokenField])
	if token == "" {
		v.logger.Debug("captcha token missing", zap.String("field", v.tokenField))
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)
	if v.siteKey != "" {
		form.Set("sitekey", v.siteKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return false, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if !parsed.Success {
		v.logger.Info("captcha rejected", zap.Strings("error_codes", parsed.ErrorCodes))
	}
	return parsed.Success, nil
}
