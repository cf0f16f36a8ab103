package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sl-c19-memorial/memorial-web/internal/filter"
	"github.com/sl-c19-memorial/memorial-web/internal/geo"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/httpx"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/requestctx"
)

const maxDispatchBody = 16 << 10

// FilterHandlers serves the filter view model and runs filter transitions.
type FilterHandlers struct {
	geo      *GeoHandlers
	observer filter.Observer
}

// FilterOption customises FilterHandlers.
type FilterOption func(*FilterHandlers)

// WithFilterObserver reports each dispatched transition (analytics).
func WithFilterObserver(o filter.Observer) FilterOption {
	return func(h *FilterHandlers) { h.observer = o }
}

// NewFilterHandlers constructs filter handlers sharing the geo dataset.
func NewFilterHandlers(geoHandlers *GeoHandlers, opts ...FilterOption) *FilterHandlers {
	h := &FilterHandlers{geo: geoHandlers}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers filter endpoints against the provided router.
func (h *FilterHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/options", h.options)
	r.Post("/dispatch", h.dispatch)
}

type filterOptionsResponse struct {
	Locale    string            `json:"locale"`
	Selection filter.Selection  `json:"selection"`
	Provinces []geoOption       `json:"provinces"`
	Districts []geoOption       `json:"districts"`
	Cities    []geoOption       `json:"cities"`
	AgeRanges []filter.AgeRange `json:"ageRanges"`
	Genders   []filter.Gender   `json:"genders"`
}

// options returns the four dropdowns for a selection; district and city lists are empty while
// their parent is unset.
func (h *FilterHandlers) options(w http.ResponseWriter, r *http.Request) {
	if !h.geo.ready(w, r) {
		return
	}
	q := r.URL.Query()
	sel := filter.Selection{
		Province: geo.ID(q.Get("province")),
		District: geo.ID(q.Get("district")),
	}
	if err := sel.Validate(); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_selection", err.Error(), http.StatusBadRequest))
		return
	}

	locale := h.geo.locale(r.Context())
	ds := h.geo.dataset
	provinces, err := ds.Provinces(locale)
	if err != nil {
		writeGeoError(r.Context(), w, err)
		return
	}
	cities, err := ds.Cities(sel.District, locale)
	if err != nil {
		writeGeoError(r.Context(), w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, filterOptionsResponse{
		Locale:    locale,
		Selection: sel,
		Provinces: toOptions(provinces, locale),
		Districts: toOptions(ds.Districts(sel.Province), locale),
		Cities:    toOptions(cities, locale),
		AgeRanges: filter.AgeRanges,
		Genders:   filter.Genders,
	})
}

type dispatchRequest struct {
	Selection filter.Selection `json:"selection"`
	Action    struct {
		Type  string `json:"type"`
		Value geo.ID `json:"value"`
	} `json:"action"`
}

type dispatchResponse struct {
	Selection filter.Selection `json:"selection"`
	Query     string           `json:"query"`
}

func (h *FilterHandlers) dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxDispatchBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "request body must be {selection, action}", http.StatusBadRequest))
		return
	}
	if err := req.Selection.Validate(); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_selection", err.Error(), http.StatusBadRequest))
		return
	}
	action, err := filter.ParseAction(req.Action.Type, req.Action.Value.String())
	if err != nil {
		code := "invalid_request"
		if errors.Is(err, filter.ErrUnknownAction) {
			code = "unknown_action"
		}
		httpx.WriteError(r.Context(), w, httpx.NewError(code, err.Error(), http.StatusBadRequest))
		return
	}

	var query url.Values
	m := filter.NewMachine(
		filter.WithSelection(req.Selection),
		filter.WithObserver(h.observer),
		filter.WithListener(func(_ context.Context, s filter.Selection) { query = s.Query() }),
	)
	next := m.Dispatch(r.Context(), action)

	requestctx.Logger(r.Context()).Debug("filter dispatched",
		zap.String("action", action.Type()),
		zap.String("query", query.Encode()),
	)
	httpx.WriteJSON(w, http.StatusOK, dispatchResponse{
		Selection: next,
		Query:     query.Encode(),
	})
}
