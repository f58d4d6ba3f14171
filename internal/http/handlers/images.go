package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"aiprofile/internal/domain"
)

type processResponse struct {
	ID         string   `json:"id"`
	ImagePaths []string `json:"imagePaths"`
}

// ImagesProcess runs a job synchronously and returns its stored output
// paths. It writes the same success and failure records as the queue path,
// so a job id resolves identically however it was submitted.
func (a *App) ImagesProcess(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeJob(w, r)
	if !ok {
		return
	}

	paths, err := a.Jobs.Execute(r.Context(), req)
	if err != nil {
		kind := a.Jobs.RecordFailure(r.Context(), req.ID, err)
		a.error(w, failureStatus(kind), kind, err.Error())
		return
	}
	a.json(w, http.StatusOK, processResponse{ID: req.ID, ImagePaths: paths})
}

// ImagesEnqueue submits a job to the work queue and returns immediately.
func (a *App) ImagesEnqueue(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeJob(w, r)
	if !ok {
		return
	}

	if err := a.Queue.Publish(r.Context(), req); err != nil {
		a.Logger.Error().Err(err).Str("job_id", req.ID).Msg("http: enqueue failed")
		a.error(w, http.StatusServiceUnavailable, domain.KindUnknown, "queue unavailable")
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"id": req.ID, "status": "QUEUED"})
}

func (a *App) decodeJob(w http.ResponseWriter, r *http.Request) (*domain.JobRequest, bool) {
	var req domain.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, domain.KindMalformed, "invalid payload")
		return nil, false
	}
	if err := req.Validate(); err != nil {
		a.error(w, http.StatusBadRequest, domain.KindMalformed, err.Error())
		return nil, false
	}
	return &req, true
}

// failureStatus maps a job failure to an HTTP status for the synchronous
// path. Backend and infrastructure trouble is a 502, everything else a 500.
func failureStatus(kind domain.Kind) int {
	switch kind {
	case domain.KindMalformed:
		return http.StatusBadRequest
	case domain.KindGenerateFail, domain.KindBuildFail:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// isNotFound is shared by the lookup handlers.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
