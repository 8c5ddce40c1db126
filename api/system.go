package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type SystemHandler struct {
	// Ping reports whether the database is reachable. Nil skips the check.
	Ping func(ctx context.Context) error
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

type versionResponse struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime"`
}

func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ping(ctx); err != nil {
			logger.Error("health check", slog.Any("err", err))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Service: "jobboard"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Service: "jobboard"})
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, versionResponse{Version: version, BuildTime: buildTime})
	}
}
