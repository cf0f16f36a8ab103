package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultLogLevel            = "info"
	defaultLocale              = "en"
	defaultGeoDataset          = "data/geo_latest.json"
	defaultGeoCacheTTL         = time.Hour
	defaultMailAPIURL          = "https://api.zeptomail.com/v1.1"
	defaultMailFromName        = "COVID-19 Memorial"
	defaultOutboundTimeout     = 30 * time.Second
	defaultMaxBodyBytes        = 20 << 20
	defaultCaptchaVerifyURL    = "https://hcaptcha.com/siteverify"
	defaultCaptchaTokenField   = "h-captcha-response"
	defaultFormsPerMinute      = 10
	defaultSecurityEnvironment = "local"
	defaultSecretFallbackFile  = ".secrets.local"
)

var defaultLocales = []string{"en", "si", "ta"}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server     ServerConfig
	Logging    LoggingConfig
	Site       SiteConfig
	Geo        GeoConfig
	Mail       MailConfig
	Forms      FormsConfig
	Captcha    CaptchaConfig
	Analytics  AnalyticsConfig
	RateLimits RateLimitConfig
	Security   SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig selects the zap level.
type LoggingConfig struct {
	Level string
}

// SiteConfig describes the public site the API serves.
type SiteConfig struct {
	Locales        []string
	DefaultLocale  string
	AllowedOrigins []string
}

// GeoConfig points at the province/district/city dataset.
type GeoConfig struct {
	// DatasetURI is a local path or a gs://bucket/object reference.
	DatasetURI string
	CacheTTL   time.Duration
}

// MailConfig holds the ZeptoMail credentials and sender identity.
type MailConfig struct {
	APIURL      string
	Token       string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// FormsConfig configures the two intake forms.
type FormsConfig struct {
	ContactRecipients     []string
	ContactTemplateKey    string
	SubmissionRecipient   string
	SubmissionTemplateKey string
	MaxBodyBytes          int64
	// DefinitionsFile, when set, replaces the built-in form definitions with a YAML file.
	DefinitionsFile string
}

// CaptchaConfig configures the hCaptcha verification call.
type CaptchaConfig struct {
	VerifyURL  string
	Secret     string
	SiteKey    string
	TokenField string
	Timeout    time.Duration
}

// AnalyticsConfig selects the Pub/Sub topic filter events go to. Empty topic means log only.
type AnalyticsConfig struct {
	ProjectID string
	Topic     string
}

// RateLimitConfig controls request throttling on the form endpoints.
type RateLimitConfig struct {
	FormsPerMinute int
}

// SecurityConfig groups environment and secret lookup settings.
type SecurityConfig struct {
	Environment        string
	SecretProjectID    string
	SecretFallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	out := slices.Clone(e.names)
	sort.Strings(out)
	return out
}

// RedactedNames returns hashed identifiers safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that wins over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks secret fields (e.g. "Mail.Token") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map) so callers can
// build the logger and secret fetcher before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for k, v := range dotEnv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load assembles the configuration from defaults, .env overrides, environment variables and
// Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "MEMORIAL_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "MEMORIAL_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "MEMORIAL_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "MEMORIAL_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "MEMORIAL_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Logging: LoggingConfig{
			Level: stringWithDefault(lookup, "MEMORIAL_LOG_LEVEL", defaultLogLevel),
		},
		Site: SiteConfig{
			Locales:        csvWithDefault(lookup, "MEMORIAL_SITE_LOCALES", defaultLocales),
			DefaultLocale:  strings.ToLower(stringWithDefault(lookup, "MEMORIAL_SITE_DEFAULT_LOCALE", defaultLocale)),
			AllowedOrigins: csvWithDefault(lookup, "MEMORIAL_SITE_ALLOWED_ORIGINS", nil),
		},
		Geo: GeoConfig{
			DatasetURI: stringWithDefault(lookup, "MEMORIAL_GEO_DATASET", defaultGeoDataset),
			CacheTTL:   durationWithDefault(lookup, "MEMORIAL_GEO_CACHE_TTL", defaultGeoCacheTTL),
		},
		Mail: MailConfig{
			APIURL:      stringWithDefault(lookup, "MEMORIAL_MAIL_API_URL", defaultMailAPIURL),
			Token:       stringWithDefault(lookup, "MEMORIAL_MAIL_TOKEN", ""),
			FromAddress: stringWithDefault(lookup, "MEMORIAL_MAIL_FROM_ADDRESS", ""),
			FromName:    stringWithDefault(lookup, "MEMORIAL_MAIL_FROM_NAME", defaultMailFromName),
			Timeout:     durationWithDefault(lookup, "MEMORIAL_MAIL_TIMEOUT", defaultOutboundTimeout),
		},
		Forms: FormsConfig{
			ContactRecipients:     csvWithDefault(lookup, "MEMORIAL_FORMS_CONTACT_RECIPIENTS", nil),
			ContactTemplateKey:    stringWithDefault(lookup, "MEMORIAL_FORMS_CONTACT_TEMPLATE_KEY", ""),
			SubmissionRecipient:   stringWithDefault(lookup, "MEMORIAL_FORMS_SUBMISSION_RECIPIENT", ""),
			SubmissionTemplateKey: stringWithDefault(lookup, "MEMORIAL_FORMS_SUBMISSION_TEMPLATE_KEY", ""),
			MaxBodyBytes:          int64(intWithDefault(lookup, "MEMORIAL_FORMS_MAX_BODY_BYTES", defaultMaxBodyBytes)),
			DefinitionsFile:       stringWithDefault(lookup, "MEMORIAL_FORMS_DEFINITIONS_FILE", ""),
		},
		Captcha: CaptchaConfig{
			VerifyURL:  stringWithDefault(lookup, "MEMORIAL_CAPTCHA_VERIFY_URL", defaultCaptchaVerifyURL),
			Secret:     stringWithDefault(lookup, "MEMORIAL_CAPTCHA_SECRET", ""),
			SiteKey:    stringWithDefault(lookup, "MEMORIAL_CAPTCHA_SITE_KEY", ""),
			TokenField: stringWithDefault(lookup, "MEMORIAL_CAPTCHA_TOKEN_FIELD", defaultCaptchaTokenField),
			Timeout:    durationWithDefault(lookup, "MEMORIAL_CAPTCHA_TIMEOUT", defaultOutboundTimeout),
		},
		Analytics: AnalyticsConfig{
			ProjectID: stringWithDefault(lookup, "MEMORIAL_ANALYTICS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "MEMORIAL_ANALYTICS_TOPIC", ""),
		},
		RateLimits: RateLimitConfig{
			FormsPerMinute: intWithDefault(lookup, "MEMORIAL_RATELIMIT_FORMS_PER_MIN", defaultFormsPerMinute),
		},
		Security: SecurityConfig{
			Environment:        strings.ToLower(stringWithDefault(lookup, "MEMORIAL_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			SecretProjectID:    stringWithDefault(lookup, "MEMORIAL_SECRET_PROJECT_ID", ""),
			SecretFallbackFile: stringWithDefault(lookup, "MEMORIAL_SECRET_FALLBACK_FILE", defaultSecretFallbackFile),
		},
	}

	if cfg.Analytics.ProjectID == "" {
		cfg.Analytics.ProjectID = cfg.Security.SecretProjectID
	}
	for i, locale := range cfg.Site.Locales {
		cfg.Site.Locales[i] = strings.ToLower(locale)
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Mail.Token", &cfg.Mail.Token},
		{"Captcha.Secret", &cfg.Captcha.Secret},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name == "" || slices.Contains(missing, name) {
			continue
		}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "sm://"), "secret://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if len(cfg.Site.Locales) == 0 {
		missing = append(missing, "Site.Locales")
	}
	if !slices.Contains(cfg.Site.Locales, cfg.Site.DefaultLocale) {
		missing = append(missing, "Site.DefaultLocale")
	}
	if strings.TrimSpace(cfg.Geo.DatasetURI) == "" {
		missing = append(missing, "Geo.DatasetURI")
	}
	if strings.TrimSpace(cfg.Mail.APIURL) == "" {
		missing = append(missing, "Mail.APIURL")
	}
	if strings.TrimSpace(cfg.Mail.FromAddress) == "" {
		missing = append(missing, "Mail.FromAddress")
	}
	if cfg.Forms.MaxBodyBytes <= 0 {
		missing = append(missing, "Forms.MaxBodyBytes")
	}
	if cfg.Forms.DefinitionsFile == "" {
		if len(cfg.Forms.ContactRecipients) == 0 {
			missing = append(missing, "Forms.ContactRecipients")
		}
		if cfg.Forms.ContactTemplateKey == "" {
			missing = append(missing, "Forms.ContactTemplateKey")
		}
		if cfg.Forms.SubmissionRecipient == "" {
			missing = append(missing, "Forms.SubmissionRecipient")
		}
		if cfg.Forms.SubmissionTemplateKey == "" {
			missing = append(missing, "Forms.SubmissionTemplateKey")
		}
	}
	if strings.TrimSpace(cfg.Captcha.TokenField) == "" {
		missing = append(missing, "Captcha.TokenField")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return slices.Clone(fallback)
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
