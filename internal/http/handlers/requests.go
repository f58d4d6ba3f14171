package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"aiprofile/internal/domain"
)

type requestStatusResponse struct {
	ID         string      `json:"id"`
	Status     string      `json:"status"`
	Kind       domain.Kind `json:"kind,omitempty"`
	Detail     string      `json:"detail,omitempty"`
	ImagePaths []string    `json:"imagePaths,omitempty"`
}

// RequestStatus reports a job's progress. Live state comes from the status
// store; jobs that have aged out of it fall back to the persisted success
// record.
func (a *App) RequestStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := a.Status.Get(r.Context(), id)
	if err == nil {
		resp := requestStatusResponse{ID: id, Status: string(entry.State), Kind: entry.Kind, Detail: entry.Detail}
		if entry.State == "done" {
			if rec, recErr := a.Responses.GetByID(r.Context(), id); recErr == nil {
				resp.ImagePaths = rec.ImagePaths
			}
		}
		a.json(w, http.StatusOK, resp)
		return
	}
	if !isNotFound(err) {
		a.Logger.Error().Err(err).Str("job_id", id).Msg("http: status lookup failed")
		a.error(w, http.StatusInternalServerError, domain.KindUnknown, "status lookup failed")
		return
	}

	rec, err := a.Responses.GetByID(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			a.error(w, http.StatusNotFound, domain.KindUnknown, "unknown job")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("http: record lookup failed")
		a.error(w, http.StatusInternalServerError, domain.KindUnknown, "record lookup failed")
		return
	}
	a.json(w, http.StatusOK, requestStatusResponse{ID: id, Status: "done", ImagePaths: rec.ImagePaths})
}
