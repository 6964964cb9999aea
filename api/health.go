package api

import (
	"context"
	"net/http"
	"time"
)

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler 提供存活与就绪探针
type HealthHandler struct {
	ready   func(ctx context.Context) error
	timeout time.Duration
}

// NewHealthHandler 创建 HealthHandler；ready 为 nil 时总是就绪
func NewHealthHandler(ready func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ready: ready, timeout: 2 * time.Second}
}

// RegisterRoutes 注册 /healthz 与 /readyz
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /readyz", h.readyz)
}

func (h *HealthHandler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

func (h *HealthHandler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready", Error: err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}
