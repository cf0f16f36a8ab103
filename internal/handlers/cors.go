package handlers

import (
	"net/http"

	"github.com/rs/cors"
)

// CORSMiddleware lets the static site, served from another origin, post forms and read the geo
// endpoints. Returns nil when no origins are configured.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		return nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", "X-Requested-With"},
		ExposedHeaders: []string{"X-Request-Id", "X-Cloud-Trace-Context"},
		MaxAge:         600,
	})
	return c.Handler
}
