package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BackendStatus reports whether the generation backend answers.
func (a *App) BackendStatus(w http.ResponseWriter, r *http.Request) {
	backend := "up"
	code := http.StatusOK
	if err := a.Backend.Ping(r.Context()); err != nil {
		backend = "down"
		code = http.StatusServiceUnavailable
	}
	a.json(w, code, map[string]string{"status": "ok", "backend": backend})
}
