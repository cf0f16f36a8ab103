package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sl-c19-memorial/memorial-web/internal/geo"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/httpx"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/requestctx"
)

const geoCacheControl = "public, max-age=3600"

// GeoHandlers exposes the province/district/city lists.
type GeoHandlers struct {
	dataset       *geo.Dataset
	defaultLocale string
}

// NewGeoHandlers constructs geo handlers over an immutable dataset.
func NewGeoHandlers(dataset *geo.Dataset, defaultLocale string) *GeoHandlers {
	if defaultLocale == "" {
		defaultLocale = "en"
	}
	return &GeoHandlers{dataset: dataset, defaultLocale: defaultLocale}
}

// Routes registers geo endpoints against the provided router.
func (h *GeoHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/provinces", h.listProvinces)
	r.Get("/provinces/{provinceId}/districts", h.listDistricts)
	r.Get("/districts/{districtId}/cities", h.listCities)
}

type geoOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func toOptions(nodes []geo.Node, locale string) []geoOption {
	out := make([]geoOption, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, geoOption{ID: n.ID.String(), Name: n.Name(locale)})
	}
	return out
}

func (h *GeoHandlers) locale(ctx context.Context) string {
	if locale, ok := requestctx.Locale(ctx); ok {
		return locale
	}
	return h.defaultLocale
}

func (h *GeoHandlers) listProvinces(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	locale := h.locale(r.Context())
	provinces, err := h.dataset.Provinces(locale)
	if err != nil {
		writeGeoError(r.Context(), w, err)
		return
	}
	w.Header().Set("Cache-Control", geoCacheControl)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"locale":    locale,
		"provinces": toOptions(provinces, locale),
	})
}

func (h *GeoHandlers) listDistricts(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	locale := h.locale(r.Context())
	province := geo.ID(chi.URLParam(r, "provinceId"))
	if _, ok := h.dataset.Province(province); !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("province_not_found", "province not found", http.StatusNotFound))
		return
	}
	w.Header().Set("Cache-Control", geoCacheControl)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"locale":    locale,
		"province":  province,
		"districts": toOptions(h.dataset.Districts(province), locale),
	})
}

func (h *GeoHandlers) listCities(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	locale := h.locale(r.Context())
	district := geo.ID(chi.URLParam(r, "districtId"))
	if _, ok := h.dataset.District(district); !ok {
		httpx.WriteError(r.Context(), w, httpx.NewError("district_not_found", "district not found", http.StatusNotFound))
		return
	}
	cities, err := h.dataset.Cities(district, locale)
	if err != nil {
		writeGeoError(r.Context(), w, err)
		return
	}
	w.Header().Set("Cache-Control", geoCacheControl)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"locale":   locale,
		"district": district,
		"cities":   toOptions(cities, locale),
	})
}

func (h *GeoHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h == nil || h.dataset == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("geo_unavailable", "geo dataset is not loaded", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func writeGeoError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, geo.ErrUnknownLocale) {
		httpx.WriteError(ctx, w, httpx.NewError("unsupported_locale", err.Error(), http.StatusBadRequest))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("geo_error", err.Error(), http.StatusInternalServerError))
}
