package handlers

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/text/language"

	"github.com/sl-c19-memorial/memorial-web/internal/platform/httpx"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/requestctx"
)

// LocaleResolver picks the content locale from ?locale= or Accept-Language.
type LocaleResolver struct {
	supported []string
	fallback  string
	matcher   language.Matcher
}

// NewLocaleResolver builds a resolver. The fallback must be one of supported.
func NewLocaleResolver(supported []string, fallback string) (*LocaleResolver, error) {
	if len(supported) == 0 {
		return nil, fmt.Errorf("handlers: at least one locale is required")
	}
	normalized := make([]string, 0, len(supported))
	tags := make([]language.Tag, 0, len(supported))
	for _, locale := range supported {
		locale = normalizeLocale(locale)
		tag, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("handlers: invalid locale %q: %w", locale, err)
		}
		normalized = append(normalized, locale)
		tags = append(tags, tag)
	}
	fallback = normalizeLocale(fallback)
	if !slices.Contains(normalized, fallback) {
		return nil, fmt.Errorf("handlers: fallback locale %q is not supported", fallback)
	}
	// The matcher returns the first tag on no match, so the fallback goes first.
	idx := slices.Index(normalized, fallback)
	normalized[0], normalized[idx] = normalized[idx], normalized[0]
	tags[0], tags[idx] = tags[idx], tags[0]

	return &LocaleResolver{
		supported: normalized,
		fallback:  fallback,
		matcher:   language.NewMatcher(tags),
	}, nil
}

// Fallback returns the default locale.
func (l *LocaleResolver) Fallback() string { return l.fallback }

// Resolve returns the locale for r. An explicit ?locale= that is not supported is an error.
func (l *LocaleResolver) Resolve(r *http.Request) (string, error) {
	if raw := r.URL.Query().Get("locale"); strings.TrimSpace(raw) != "" {
		locale := normalizeLocale(raw)
		if !slices.Contains(l.supported, locale) {
			return "", fmt.Errorf("unsupported locale %q", raw)
		}
		return locale, nil
	}
	accept := r.Header.Get("Accept-Language")
	if strings.TrimSpace(accept) == "" {
		return l.fallback, nil
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return l.fallback, nil
	}
	_, index, confidence := l.matcher.Match(tags...)
	if confidence == language.No {
		return l.fallback, nil
	}
	return l.supported[index], nil
}

// Middleware stores the resolved locale on the request context.
func (l *LocaleResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale, err := l.Resolve(r)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("unsupported_locale", err.Error(), http.StatusBadRequest).
				WithDetails(map[string]any{"supported": l.supported}))
			return
		}
		w.Header().Set("Content-Language", locale)
		next.ServeHTTP(w, r.WithContext(requestctx.WithLocale(r.Context(), locale)))
	})
}

func normalizeLocale(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(trimmed, "_", "-"))
}
