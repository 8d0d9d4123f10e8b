// Package api wires the HTTP surface: routing, CORS, validation, the
// error-to-status mapping and the media write endpoints.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/bcrapp/bcr-backend/pkg/auth"
	"github.com/bcrapp/bcr-backend/pkg/config"
	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/media"
	"github.com/bcrapp/bcr-backend/pkg/metrics"
	"github.com/bcrapp/bcr-backend/pkg/ratelimit"
	"github.com/bcrapp/bcr-backend/pkg/scrape"
	"github.com/bcrapp/bcr-backend/pkg/service"
)

type Server struct {
	svc     *service.Service
	library *media.Library
	authz   *auth.Authorizer
	limiter *ratelimit.Limiter
	cfg     config.Config
}

func NewServer(svc *service.Service, library *media.Library, authz *auth.Authorizer, limiter *ratelimit.Limiter, cfg config.Config) *Server {
	return &Server{svc: svc, library: library, authz: authz, limiter: limiter, cfg: cfg}
}

// Router builds the chi mux with the full endpoint surface.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: s.cfg.CORSAllowCredentials,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/rankings/{category}", s.handleRankings)
	r.Get("/rankings/{category}/abc/{tier}", s.handleProvincialRankings)
	r.Get("/player/search", s.handlePlayerSearch)
	r.Get("/player/{playerID}", s.handlePlayerProfile)
	r.Get("/players/search", s.handlePlayerSearch)
	r.Get("/tournaments/search", s.handleTournamentSearch)
	r.Get("/tournaments/live", s.handleLiveTournaments)
	r.Get("/tournament/{tournamentID}/draws", s.handleTournamentDraws)
	r.Get("/abc/calendar", s.handleCalendar)
	r.Get("/news", s.handleNews)

	r.Route("/media", func(r chi.Router) {
		r.Get("/photos/{playerID}", s.handleListPhotos)
		r.Post("/photos/{playerID}", s.handleUploadPhoto)
		r.Delete("/photos/{playerID}/{photoID}", s.handleDeletePhoto)
		r.Get("/avatar/{playerID}", s.handleGetAvatar)
		r.Post("/avatar/{playerID}", s.handleUploadAvatar)
	})

	r.Post("/cache/clear", s.handleCacheClear)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	if s.cfg.MediaBackend == "local" {
		fs := http.StripPrefix("/media-files/", http.FileServer(http.Dir(s.cfg.MediaRoot)))
		r.Get("/media-files/*", fs.ServeHTTP)
	}

	return r
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response: %v", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// respondServiceError maps the failure taxonomy onto HTTP statuses. Upstream
// failures are retryable 502s; the server itself never auto-retries.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scrape.ErrUnavailable):
		logger.Error("upstream unavailable: %v", err)
		respondError(w, http.StatusBadGateway, "upstream source unavailable")
	case errors.Is(err, scrape.ErrParseFailure):
		logger.Error("upstream parse failure: %v", err)
		respondError(w, http.StatusBadGateway, "upstream page could not be parsed")
	case errors.Is(err, auth.ErrPermissionDenied):
		respondError(w, http.StatusForbidden, "permission denied")
	case errors.Is(err, auth.ErrNotConfigured):
		respondError(w, http.StatusServiceUnavailable, "credential verification not configured")
	default:
		logger.Error("internal error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
