package handlers

import (
	"context"
	"net/http"

	"github.com/cloo-solutions/ragsync/internal/api"
	"github.com/cloo-solutions/ragsync/internal/service"
)

type HealthChecker interface {
	Check(ctx context.Context) service.HealthInfo
}

type HealthHandler struct {
	svc HealthChecker
}

func NewHealthHandler(svc HealthChecker) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health reports 200 when the index answers and 503 when it is degraded.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	info := h.svc.Check(r.Context())
	status := http.StatusOK
	if info.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	api.JSON(w, status, info)
}
