package api

import (
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bcrapp/bcr-backend/pkg/auth"
	"github.com/bcrapp/bcr-backend/pkg/models"
	"github.com/bcrapp/bcr-backend/pkg/ratelimit"
)

const maxUploadBytes = 10 << 20

// Photo owners are addressed by member-style ids; keep the charset tight
// since the id ends up in object keys.
var playerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"cache_entries": s.svc.CacheLen(),
	})
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	scope, err := models.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var resp models.RankingResponse
	if scope == models.ScopeProvincial {
		// Tier A is the elite table and the provincial default.
		tier := models.TierA
		if raw := r.URL.Query().Get("tier"); raw != "" {
			if tier, err = models.ParseTier(raw); err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		resp, err = s.svc.ProvincialRankings(r.Context(), category, tier)
	} else {
		resp, err = s.svc.NationalRankings(r.Context(), category, r.URL.Query().Get("province"))
	}
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProvincialRankings(w http.ResponseWriter, r *http.Request) {
	category, err := models.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	tier, err := models.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.svc.ProvincialRankings(r.Context(), category, tier)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

var numericIDPattern = regexp.MustCompile(`^\d{1,12}$`)

func (s *Server) handlePlayerProfile(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if !numericIDPattern.MatchString(playerID) {
		respondError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	profile, err := s.svc.PlayerProfile(r.Context(), playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (s *Server) handlePlayerSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("name")
	if query == "" {
		query = r.URL.Query().Get("q")
	}
	results, err := s.svc.SearchPlayers(r.Context(), query)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) handleTournamentSearch(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.SearchTournaments(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLiveTournaments(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.LiveTournaments(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Tournament ids are upstream GUIDs; anything else is rejected before it can
// reach a fetch URL.
var tournamentGUIDPattern = regexp.MustCompile(`^[0-9A-Fa-f-]{36}$`)

func (s *Server) handleTournamentDraws(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	if !tournamentGUIDPattern.MatchString(tournamentID) {
		respondError(w, http.StatusBadRequest, "invalid tournament id")
		return
	}
	resp, err := s.svc.TournamentDraws(r.Context(), tournamentID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.Calendar(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	resp, err := s.svc.News(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if !playerIDPattern.MatchString(playerID) {
		respondError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	photos, err := s.library.ListPhotos(playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, photos)
}

func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if !playerIDPattern.MatchString(playerID) {
		respondError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	if !s.limiter.Allow("media_write", ratelimit.ClientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	identity := auth.Resolve(r)
	tag, err := s.authz.AuthorizeUpload(identity, playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	data, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	addedBy := "self"
	if identity.Mode == auth.ModeMedia {
		addedBy = "media"
	}
	photo, err := s.library.CreatePhoto(playerID, data, addedBy, tag)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, photo)
}

func (s *Server) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	photoID := chi.URLParam(r, "photoID")
	if !playerIDPattern.MatchString(playerID) || photoID == "" {
		respondError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if !s.limiter.Allow("media_delete", ratelimit.ClientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	photo, found, err := s.library.GetPhoto(playerID, photoID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}

	if err := s.authz.AuthorizeDelete(auth.Resolve(r), photo.OwnershipTag); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.library.DeletePhoto(playerID, photoID); err != nil {
		respondServiceError(w, err)
		return
	}

	remaining, err := s.library.ListPhotos(playerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, remaining)
}

func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if !playerIDPattern.MatchString(playerID) {
		respondError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	url := s.library.AvatarURL(playerID)
	var payload interface{}
	if url != "" {
		payload = url
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"avatar_url": payload})
}

func (s *Server) handleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if !playerIDPattern.MatchString(playerID) {
		respondError(w, http.StatusBadRequest, "invalid player id")
		return
	}
	if !s.limiter.Allow("media_avatar", ratelimit.ClientIP(r)) {
		respondError(w, http.StatusTooManyRequests, "too many requests")
		return
	}

	// Avatars are personal: only the standard-mode owner may set one.
	identity := auth.Resolve(r)
	if identity.Mode != auth.ModeStandard {
		respondError(w, http.StatusForbidden, "permission denied")
		return
	}
	if _, err := s.authz.AuthorizeUpload(identity, playerID); err != nil {
		respondServiceError(w, err)
		return
	}

	data, err := readImageUpload(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	url, err := s.library.SetAvatar(playerID, data)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	cleared := s.svc.ClearCache(prefix)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cleared": cleared,
		"prefix":  prefix,
	})
}

// readImageUpload accepts either a multipart "file" field or a raw image
// body, capped at maxUploadBytes. An empty payload is a validation error.
func readImageUpload(r *http.Request) ([]byte, error) {
	var src io.Reader

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, errInvalidUpload
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errInvalidUpload
		}
		defer file.Close()
		src = file
	} else {
		src = r.Body
	}

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return nil, errInvalidUpload
	}
	if len(data) == 0 {
		return nil, errEmptyUpload
	}
	if len(data) > maxUploadBytes {
		return nil, errUploadTooLarge
	}
	return data, nil
}

var (
	errInvalidUpload  = uploadError("invalid upload payload")
	errEmptyUpload    = uploadError("empty file")
	errUploadTooLarge = uploadError("file too large")
)

type uploadError string

func (e uploadError) Error() string { return string(e) }
