package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/capes/internal/heroservice"
	"github.com/starford/capes/internal/media"
	"github.com/starford/capes/internal/parser"
)

// RouterConfig carries the HTTP-level limits and optional endpoints.
type RouterConfig struct {
	Limits         parser.Limits
	MaxBodyBytes   int64
	AllowedOrigins []string
	// Media, if non-nil, is served at GET /media/*.
	Media *media.FS
	// Events, if non-nil, is mounted at GET /events.
	Events http.Handler
}

// NewRouter creates a chi router with all catalog routes mounted.
func NewRouter(svc *heroservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Limits, cfg.MaxBodyBytes)

	r := chi.NewRouter()
	r.Use(CORS(cfg.AllowedOrigins))

	r.Route("/resources", func(r chi.Router) {
		r.Get("/", h.ListHeroes)
		r.Post("/", h.CreateHero)
		r.Get("/{id}", h.GetHero)
		r.Put("/{id}", h.UpdateHero)
		r.Delete("/{id}", h.DeleteHero)
		r.Delete("/{id}/image", h.RemoveImage)
	})

	if cfg.Media != nil {
		r.Get("/media/*", NewMediaHandler(cfg.Media).ServeFile)
	}

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
