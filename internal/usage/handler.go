package usage

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docstore-backend/internal/resilience"
	"docstore-backend/internal/shared/server/middleware"
	"docstore-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the usage service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches usage routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/usage", h.stats)
}

func (h *Handler) stats(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	stats, err := h.Svc.Stats(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, resilience.ErrUnavailable) {
			respond.Error(c, http.StatusServiceUnavailable, "database_unavailable", "usage statistics temporarily unavailable", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load usage statistics", nil)
		return
	}

	respond.OK(c, stats)
}
