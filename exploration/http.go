package exploration

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Routes returns the exploration HTTP API, meant to be mounted at
// /api/explorations.
func (o *Orchestrator) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", o.handleHTTPStart)
	r.Get("/", o.handleHTTPList)
	r.Get("/{id}", o.handleHTTPGet)
	return r
}

func (o *Orchestrator) handleHTTPStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	e, err := o.Start(r.Context(), &req)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, e)
}

func (o *Orchestrator) handleHTTPList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	var (
		list []*Exploration
		err  error
	)
	if st := r.URL.Query().Get("status"); st != "" {
		list, err = o.ListByStatus(r.Context(), Status(st), limit)
	} else {
		list, err = o.List(r.Context(), limit)
	}
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, list)
	}
}

func (o *Orchestrator) handleHTTPGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, err := o.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("exploration %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
