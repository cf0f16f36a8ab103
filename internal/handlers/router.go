package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sl-c19-memorial/memorial-web/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	formsPath   string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	forms  RouteRegistrar
	geo    RouteRegistrar
	filter RouteRegistrar

	formMiddlewares []func(http.Handler) http.Handler
	apiMiddlewares  []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix   = "/api/v1"
	defaultFormsPrefix = "/api/forms"
	defaultTimeout     = 60 * time.Second
	errorNotFoundCode  = "route_not_found"
)

// NewRouter constructs the chi router with shared middleware and the forms, geo and filter groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath:  defaultAPIPrefix,
		formsPath: defaultFormsPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.formsPath, func(group chi.Router) {
		for _, mw := range cfg.formMiddlewares {
			if mw != nil {
				group.Use(mw)
			}
		}
		if cfg.forms != nil {
			cfg.forms(group)
			return
		}
		registerNotImplemented(group, "forms")
	})

	r.Route(cfg.basePath, func(api chi.Router) {
		for _, mw := range cfg.apiMiddlewares {
			if mw != nil {
				api.Use(mw)
			}
		}
		mount := func(path string, registrar RouteRegistrar, name string) {
			api.Route(path, func(group chi.Router) {
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/geo", cfg.geo, "geo")
		mount("/filter", cfg.filter, "filter")
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithFormRoutes configures the registrar responsible for the form intake endpoints.
func WithFormRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.forms = reg
	}
}

// WithFormMiddlewares configures middlewares applied to the form group (rate limiting).
func WithFormMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.formMiddlewares = append(cfg.formMiddlewares, mw...)
	}
}

// WithAPIMiddlewares configures middlewares applied to the /api/v1 group.
func WithAPIMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.apiMiddlewares = append(cfg.apiMiddlewares, mw...)
	}
}

// WithGeoRoutes configures the registrar responsible for geo endpoints.
func WithGeoRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.geo = reg
	}
}

// WithFilterRoutes configures the registrar responsible for filter endpoints.
func WithFilterRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.filter = reg
	}
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
