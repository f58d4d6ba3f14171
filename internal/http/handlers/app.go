// Package handlers implements the HTTP API: synchronous processing for
// development, queue submission, and status lookups.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"aiprofile/internal/domain"
	"aiprofile/internal/infra"
	"aiprofile/internal/status"
)

// JobService executes jobs and records their outcomes.
type JobService interface {
	Execute(ctx context.Context, req *domain.JobRequest) ([]string, error)
	RecordFailure(ctx context.Context, jobID string, err error) domain.Kind
}

// Enqueuer submits jobs to the work queue.
type Enqueuer interface {
	Publish(ctx context.Context, req *domain.JobRequest) error
}

// StatusReader reads advisory job progress.
type StatusReader interface {
	Get(ctx context.Context, jobID string) (*status.Entry, error)
}

// BackendPinger checks generation-backend liveness.
type BackendPinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Jobs      JobService
	Queue     Enqueuer
	Status    StatusReader
	Backend   BackendPinger
	Responses domain.ResponseRepository
	Logger    infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, httpCode int, kind domain.Kind, detail string) {
	a.json(w, httpCode, map[string]string{
		"error":  string(kind),
		"detail": detail,
	})
}
