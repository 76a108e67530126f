package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"licensegate/internal/services"
)

// HealthHandler handles the liveness probe and the root service banner.
// Neither endpoint may touch the document store.
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HealthCheck())
}

// Home handles GET /
func (h *HealthHandler) Home(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Info())
}
