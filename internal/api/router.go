package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/sheltertrack/internal/api/middleware"
	"github.com/kiranshivaraju/sheltertrack/internal/api/response"
	"github.com/kiranshivaraju/sheltertrack/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
// RateLimit, Metrics and MetricsMiddleware are optional.
type Dependencies struct {
	Auth              *mw.Auth
	RateLimit         *mw.RateLimit
	Metrics           http.Handler
	MetricsMiddleware func(http.Handler) http.Handler

	HealthHandler  http.HandlerFunc
	SpeciesHandler http.HandlerFunc

	IntakeHandler    http.HandlerFunc
	ListInHandler    http.HandlerFunc
	ListOutHandler   http.HandlerFunc
	GetHandler       http.HandlerFunc
	EditHandler      http.HandlerFunc
	MarkOutHandler   http.HandlerFunc
	MoveHandler      http.HandlerFunc
	RemarkHandler    http.HandlerFunc
	StatsHandler     http.HandlerFunc
	SearchHandler    http.HandlerFunc
	RemoveHandler    http.HandlerFunc
	ExportHandler    http.HandlerFunc
	ArchiveHandler   http.HandlerFunc
	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	if deps.MetricsMiddleware != nil {
		r.Use(deps.MetricsMiddleware)
	}

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/species", orNotImplemented(deps.SpeciesHandler))

		r.Route("/api/v1/animals", func(r chi.Router) {
			r.Post("/in", orNotImplemented(deps.IntakeHandler))
			r.Get("/in", orNotImplemented(deps.ListInHandler))
			r.Get("/out", orNotImplemented(deps.ListOutHandler))
			r.Post("/out/{jobID}", orNotImplemented(deps.MarkOutHandler))
			r.Get("/stats", orNotImplemented(deps.StatsHandler))

			r.Get("/{jobID}", orNotImplemented(deps.GetHandler))
			r.Put("/{jobID}", orNotImplemented(deps.EditHandler))
			r.Post("/{jobID}/move", orNotImplemented(deps.MoveHandler))
			r.Put("/{jobID}/remark", orNotImplemented(deps.RemarkHandler))

			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

				r.Get("/logs", orNotImplemented(deps.SearchHandler))
				r.Get("/export", orNotImplemented(deps.ExportHandler))
				r.Post("/export/archive", orNotImplemented(deps.ArchiveHandler))
				r.Delete("/{jobID}", orNotImplemented(deps.RemoveHandler))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(models.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
