package forms

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/sl-c19-memorial/memorial-web/internal/captcha"
	"github.com/sl-c19-memorial/memorial-web/internal/mail"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/httpx"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/observability"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/requestctx"
)

const metricNamespace = "github.com/sl-c19-memorial/memorial-web/internal/forms"

// ErrorCode is the client-facing failure code of a form submission.
type ErrorCode string

const (
	// CodeCaptchaUnavailable: the CAPTCHA service could not be reached or answered garbage.
	CodeCaptchaUnavailable ErrorCode = "ERR_FRM_01"
	// CodeCaptchaRejected: the CAPTCHA proof was refused.
	CodeCaptchaRejected ErrorCode = "ERR_FRM_02"
	// CodeDispatchFailed: the mail provider did not accept the message.
	CodeDispatchFailed ErrorCode = "ERR_FRM_03"
)

// Outcome is the result of one pipeline run.
type Outcome struct {
	SessionID string
	Success   bool
	Code      ErrorCode
	MailID    string
}

// Deps wires a Pipeline.
type Deps struct {
	Definition   Definition
	Mailer       mail.Sender
	Captcha      captcha.Validator
	TokenField   string
	MaxBodyBytes int64
	Logger       *zap.Logger
	Meter        metric.Meter
	NewSessionID func() string
}

// Pipeline handles one form endpoint: parse, verify, build, send, respond.
type Pipeline struct {
	def          Definition
	mailer       mail.Sender
	captcha      captcha.Validator
	tokenField   string
	maxBodyBytes int64
	logger       *zap.Logger
	newSessionID func() string
	submissions  metric.Int64Counter
}

// NewPipeline validates deps and builds a pipeline.
func NewPipeline(deps Deps) (*Pipeline, error) {
	if err := deps.Definition.Validate(); err != nil {
		return nil, err
	}
	if deps.Mailer == nil {
		return nil, errors.New("forms: mailer is required")
	}
	if deps.Definition.Captcha && deps.Captcha == nil {
		return nil, fmt.Errorf("forms: %s requires a captcha validator", deps.Definition.Name)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := deps.NewSessionID
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	counter, err := meter.Int64Counter(
		"forms.submissions",
		metric.WithDescription("Form submissions by form and outcome"),
	)
	if err != nil {
		logger.Warn("forms: unable to register submissions metric", zap.Error(err))
	}

	return &Pipeline{
		def:          deps.Definition,
		mailer:       deps.Mailer,
		captcha:      deps.Captcha,
		tokenField:   strings.TrimSpace(deps.TokenField),
		maxBodyBytes: deps.MaxBodyBytes,
		logger:       logger.With(zap.String("form", deps.Definition.Name)),
		newSessionID: newID,
		submissions:  counter,
	}, nil
}

// Name returns the form name, used as its route segment.
func (p *Pipeline) Name() string { return p.def.Name }

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := p.newSessionID()
	ctx := requestctx.WithSessionID(r.Context(), sessionID)
	logger := observability.FromContext(ctx)
	if logger == requestctx.NoopLogger() {
		logger = p.logger
	} else {
		logger = logger.With(zap.String("form", p.def.Name))
	}
	logger = logger.With(zap.String("session_id", sessionID))
	ctx = observability.WithLogger(ctx, logger)
	r = r.WithContext(ctx)

	sub, err := Parse(w, r, p.maxBodyBytes)
	if err != nil {
		logger.Warn("form body rejected", zap.Error(err))
		p.record(ctx, "invalid")
		message := "unable to parse form body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "form body exceeds the permitted size"
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_form", message, http.StatusBadRequest))
		return
	}

	outcome := p.Process(ctx, sessionID, sub)
	p.respond(w, r, outcome)
}

// Process runs the pipeline on an already parsed submission.
func (p *Pipeline) Process(ctx context.Context, sessionID string, sub Submission) Outcome {
	logger := observability.FromContext(ctx)
	outcome := Outcome{SessionID: sessionID}

	if p.def.Captcha {
		ok, err := p.captcha.Validate(ctx, sub.Fields)
		if err != nil {
			logger.Error("captcha verification unavailable", zap.Error(err))
			outcome.Code = CodeCaptchaUnavailable
			p.record(ctx, string(outcome.Code))
			return outcome
		}
		if !ok {
			logger.Warn("captcha verification failed")
			outcome.Code = CodeCaptchaRejected
			p.record(ctx, string(outcome.Code))
			return outcome
		}
	}

	req, err := p.BuildRequest(sessionID, sub)
	if err != nil {
		logger.Error("unable to build mail request", zap.Error(err))
		outcome.Code = CodeDispatchFailed
		p.record(ctx, string(outcome.Code))
		return outcome
	}

	mailID, err := p.mailer.SendTemplateMail(ctx, req)
	if err != nil {
		logger.Error("mail dispatch failed", zap.Error(err))
		outcome.Code = CodeDispatchFailed
		p.record(ctx, string(outcome.Code))
		return outcome
	}

	logger.Info("mail dispatch succeeded", zap.String("mail_id", mailID))
	outcome.Success = true
	outcome.MailID = mailID
	p.record(ctx, "success")
	return outcome
}

// BuildRequest assembles the template mail for a submission.
func (p *Pipeline) BuildRequest(sessionID string, sub Submission) (mail.TemplateRequest, error) {
	merge := make(map[string]string, len(sub.Fields)+1)
	for k, v := range sub.Fields {
		merge[k] = v
	}
	if p.tokenField != "" {
		delete(merge, p.tokenField)
	}
	for _, box := range p.def.Checkboxes {
		if merge[box] == "on" {
			merge[box] = "Yes"
		} else {
			merge[box] = "No"
		}
	}

	req := mail.TemplateRequest{
		TemplateKey: p.def.TemplateKey,
		To:          make([]mail.Recipient, 0, len(p.def.Recipients)),
	}
	for _, addr := range p.def.Recipients {
		req.To = append(req.To, mail.Recipient{EmailAddress: mail.Address{Address: addr}})
	}
	if email := sub.Fields[p.def.ReplyTo.EmailField]; email != "" {
		req.ReplyTo = []mail.Address{{Address: email, Name: sub.Fields[p.def.ReplyTo.NameField]}}
	}

	if p.def.HTMLBodyTitle != "" {
		body, err := RenderHTMLBody(fmt.Sprintf("%s: %s", p.def.HTMLBodyTitle, sessionID), merge)
		if err != nil {
			return mail.TemplateRequest{}, err
		}
		req.HTMLBody = body
	}

	merge["ref"] = sessionID
	req.MergeInfo = merge

	if p.def.Attachments {
		for _, field := range sub.FileFields() {
			for _, f := range sub.Files[field] {
				req.Attachments = append(req.Attachments, toAttachment(f))
			}
		}
	}
	return req, nil
}

func toAttachment(f File) mail.Attachment {
	mt, _, _ := strings.Cut(mimetype.Detect(f.Data).String(), ";")
	if mt == "application/octet-stream" && f.ContentType != "" {
		mt = f.ContentType
	}
	return mail.Attachment{
		Content:  base64.StdEncoding.EncodeToString(f.Data),
		MimeType: strings.TrimSpace(mt),
		Name:     f.Name,
	}
}

func (p *Pipeline) respond(w http.ResponseWriter, r *http.Request, outcome Outcome) {
	switch p.def.Response {
	case ResponseRedirect:
		target := fmt.Sprintf("%s?success=%t&requestId=%s", refererPath(r), outcome.Success, url.QueryEscape(outcome.SessionID))
		http.Redirect(w, r, target, http.StatusSeeOther)
	default:
		if outcome.Success {
			httpx.WriteJSON(w, http.StatusOK, map[string]any{
				"success":   true,
				"sessionId": outcome.SessionID,
			})
			return
		}
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
			"success":   false,
			"sessionId": outcome.SessionID,
			"error":     string(outcome.Code),
		})
	}
}

// refererPath returns the path of the Referer header, or "/" when it is absent or unusable.
func refererPath(r *http.Request) string {
	ref := strings.TrimSpace(r.Referer())
	if ref == "" {
		return "/"
	}
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	// Collapse "//host" style paths so the redirect stays on this site.
	return "/" + strings.TrimLeft(u.Path, "/")
}

func (p *Pipeline) record(ctx context.Context, outcome string) {
	if p.submissions == nil {
		return
	}
	p.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("form", p.def.Name),
		attribute.String("outcome", outcome),
	))
}
