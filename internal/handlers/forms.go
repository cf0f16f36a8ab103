package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/sl-c19-memorial/memorial-web/internal/forms"
)

// FormRoutes mounts each pipeline at POST /{name}.
func FormRoutes(pipelines ...*forms.Pipeline) RouteRegistrar {
	return func(r chi.Router) {
		for _, p := range pipelines {
			if p != nil {
				r.Post("/"+p.Name(), p.ServeHTTP)
			}
		}
	}
}
