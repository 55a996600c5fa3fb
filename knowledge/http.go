package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Routes returns the knowledge HTTP API, meant to be mounted under /api.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/submit-file", s.handleHTTPSubmit)
	r.Get("/sites", s.handleHTTPListSites)
	r.Get("/sites/{domain}", s.handleHTTPGetSite)
	r.Put("/sites/{domain}", s.handleHTTPUpsertSite)
	r.Get("/sites/{domain}/files", s.handleHTTPListFiles)
	r.Get("/files", s.handleHTTPGetFile)
	r.Get("/files/{fileID}/history", s.handleHTTPFileHistory)
	r.Get("/search", s.handleHTTPSearch)
	r.Get("/contributions", s.handleHTTPContributions)
	r.Get("/leaderboard", s.handleHTTPLeaderboard)
	r.Get("/stats", s.handleHTTPStats)
	return r
}

func (s *Service) handleHTTPSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	res, err := s.Submit(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleHTTPListSites(w http.ResponseWriter, r *http.Request) {
	var (
		sites []*Site
		err   error
	)
	if q := r.URL.Query().Get("q"); q != "" {
		sites, err = s.SearchSites(r.Context(), q, queryInt(r, "limit", 0))
	} else {
		sites, err = s.ListSites(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Service) handleHTTPGetSite(w http.ResponseWriter, r *http.Request) {
	sc, err := s.Context(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if sc == nil {
		writeServiceError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Service) handleHTTPUpsertSite(w http.ResponseWriter, r *http.Request) {
	var req SiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	req.Domain = chi.URLParam(r, "domain")
	site, created, err := s.UpsertSite(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, site)
}

func (s *Service) handleHTTPListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.ListFiles(r.Context(), chi.URLParam(r, "domain"), r.URL.Query().Get("glob"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Service) handleHTTPGetFile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("domain") == "" || q.Get("path") == "" {
		writeError(w, http.StatusBadRequest, errors.New("domain and path are required"))
		return
	}
	f, err := s.GetFile(r.Context(), q.Get("domain"), q.Get("path"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if f == nil {
		writeServiceError(w, ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Service) handleHTTPFileHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.FileHistory(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Service) handleHTTPSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("q") == "" {
		writeError(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}
	files, err := s.SearchFiles(r.Context(), q.Get("q"), q.Get("domain"), queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Service) handleHTTPContributions(w http.ResponseWriter, r *http.Request) {
	list, err := s.ListContributions(r.Context(), r.URL.Query().Get("contributor"), queryInt(r, "limit", 50))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Service) handleHTTPLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.Leaderboard(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Service) handleHTTPStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": verr.Error(),
			"field": verr.Field,
		})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
