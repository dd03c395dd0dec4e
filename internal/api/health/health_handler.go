package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/FACorreiaa/go-account-service/internal/api"
	"github.com/FACorreiaa/go-account-service/internal/types"
)

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
	StatusUp       = "up"
	StatusDown     = "down"
)

const defaultTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerImpl struct {
	db      Pinger
	timeout time.Duration
	logger  *slog.Logger
}

func NewHandlerImpl(db Pinger, timeout time.Duration, logger *slog.Logger) *HandlerImpl {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HandlerImpl{
		db:      db,
		timeout: timeout,
		logger:  logger,
	}
}

// HealthCheck godoc
// @Summary      Health check
// @Description  Reports whether the service and its database are reachable. Always answers 200.
// @Tags         Health
// @Produce      json
// @Success      200 {object} types.HealthResponse "Service health"
// @Router       /health [get]
func (h *HandlerImpl) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := types.HealthResponse{
		Status: StatusHealthy,
		Services: map[string]string{
			"backend":  StatusUp,
			"database": StatusUp,
		},
	}
	if err := h.db.Ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "Database health check failed", slog.Any("error", err))
		resp.Status = StatusDegraded
		resp.Services["database"] = StatusDown
	}

	api.WriteJSONResponse(w, r, http.StatusOK, resp)
}
