package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"MEMORIAL_MAIL_FROM_ADDRESS":             "noreply@memorial.lk",
		"MEMORIAL_FORMS_CONTACT_RECIPIENTS":      "info@memorial.lk, team@memorial.lk",
		"MEMORIAL_FORMS_CONTACT_TEMPLATE_KEY":    "tpl-contact",
		"MEMORIAL_FORMS_SUBMISSION_RECIPIENT":    "submissions@memorial.lk",
		"MEMORIAL_FORMS_SUBMISSION_TEMPLATE_KEY": "tpl-submission",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if got := cfg.Site.Locales; len(got) != 3 || got[0] != "en" || got[1] != "si" || got[2] != "ta" {
		t.Errorf("unexpected default locales %v", got)
	}
	if cfg.Site.DefaultLocale != "en" {
		t.Errorf("expected default locale en, got %s", cfg.Site.DefaultLocale)
	}
	if cfg.Mail.APIURL != defaultMailAPIURL {
		t.Errorf("unexpected mail api url %s", cfg.Mail.APIURL)
	}
	if len(cfg.Forms.ContactRecipients) != 2 || cfg.Forms.ContactRecipients[1] != "team@memorial.lk" {
		t.Errorf("unexpected contact recipients %v", cfg.Forms.ContactRecipients)
	}
	if cfg.Forms.MaxBodyBytes != defaultMaxBodyBytes {
		t.Errorf("unexpected body limit %d", cfg.Forms.MaxBodyBytes)
	}
	if cfg.Captcha.TokenField != "h-captcha-response" {
		t.Errorf("unexpected captcha field %s", cfg.Captcha.TokenField)
	}
	if cfg.RateLimits.FormsPerMinute != defaultFormsPerMinute {
		t.Errorf("unexpected forms rate limit %d", cfg.RateLimits.FormsPerMinute)
	}
	if cfg.Analytics.Topic != "" {
		t.Errorf("expected analytics disabled by default, got %s", cfg.Analytics.Topic)
	}
}

func TestLoadResolvesSecrets(t *testing.T) {
	env := baseEnv()
	env["MEMORIAL_MAIL_TOKEN"] = "sm://zeptomail-token"
	env["MEMORIAL_CAPTCHA_SECRET"] = "secret://hcaptcha-secret"
	env["MEMORIAL_SERVER_PORT"] = "9090"
	env["MEMORIAL_SITE_LOCALES"] = "EN,SI"

	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved:" + ref, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithSecretResolver(resolver),
		WithRequiredSecrets("Mail.Token", "Captcha.Secret"),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Mail.Token != "resolved:secret://zeptomail-token" {
		t.Errorf("unexpected mail token %q", cfg.Mail.Token)
	}
	if cfg.Captcha.Secret != "resolved:secret://hcaptcha-secret" {
		t.Errorf("unexpected captcha secret %q", cfg.Captcha.Secret)
	}
	if len(refs) != 2 {
		t.Errorf("expected two resolutions, got %v", refs)
	}
	if cfg.Site.Locales[1] != "si" {
		t.Errorf("expected lower-cased locales, got %v", cfg.Site.Locales)
	}
}

func TestLoadReportsMissingSecrets(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Mail.Token"),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %v", err)
	}
	if names := missing.Names(); len(names) != 1 || names[0] != "Mail.Token" {
		t.Fatalf("unexpected missing names %v", names)
	}
	if redacted := missing.RedactedNames(); len(redacted) != 1 || redacted[0] == "Mail.Token" {
		t.Fatalf("expected redacted name, got %v", redacted)
	}
}

func TestLoadSecretResolverFailure(t *testing.T) {
	env := baseEnv()
	env["MEMORIAL_MAIL_TOKEN"] = "secret://zeptomail-token"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if secretErr.Ref != "secret://zeptomail-token" {
		t.Fatalf("unexpected ref %s", secretErr.Ref)
	}
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{"MEMORIAL_SITE_DEFAULT_LOCALE": "fr"}),
		WithoutSystemEnv(), WithEnvFile(""),
	)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := map[string]bool{}
	for _, f := range validation.Fields() {
		fields[f] = true
	}
	for _, want := range []string{"Site.DefaultLocale", "Mail.FromAddress", "Forms.ContactRecipients", "Forms.SubmissionTemplateKey"} {
		if !fields[want] {
			t.Errorf("expected %s in validation fields %v", want, validation.Fields())
		}
	}
}

func TestLoadDefinitionsFileRelaxesFormFields(t *testing.T) {
	env := map[string]string{
		"MEMORIAL_MAIL_FROM_ADDRESS":      "noreply@memorial.lk",
		"MEMORIAL_FORMS_DEFINITIONS_FILE": "forms.yaml",
	}
	if _, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")); err != nil {
		t.Fatalf("expected definitions file to replace per-form settings, got %v", err)
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport MEMORIAL_SERVER_PORT=7000\nMEMORIAL_GEO_DATASET='gs://memorial/geo.json'\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	env := baseEnv()
	env["MEMORIAL_SERVER_PORT"] = "7500"
	cfg, err := Load(context.Background(), WithEnvFile(path), WithEnvMap(env), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7500" {
		t.Errorf("expected explicit map to win, got %s", cfg.Server.Port)
	}
	if cfg.Geo.DatasetURI != "gs://memorial/geo.json" {
		t.Errorf("expected dataset from .env, got %s", cfg.Geo.DatasetURI)
	}
}
