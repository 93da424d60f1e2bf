package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"topicgraph/pkg/common"
)

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	engine TopicService
	logger *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(engine TopicService, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{engine: engine, logger: logger}
}

// Health reports the process is up, with registry stats
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"stats":  h.engine.Stats(),
	})
}

// Ready reports whether the oracle can serve classification requests. A
// worker with any model missing is not ready.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	health, err := h.engine.Health(r.Context())
	if err != nil || !health.Ready() {
		h.logger.Warn("Readiness check failed", zap.Error(err), zap.String("oracle", health.Status))
		status := "not_ready"
		if err == nil && health.ModelLoaded {
			status = "degraded"
		}
		common.RespondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": status,
			"oracle": health,
		})
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"oracle": health,
	})
}
