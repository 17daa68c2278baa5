package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"cloudgate/pkg/platform/httputil"
)

// HealthURL reports process and dependency health.
const HealthURL = "/health"

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler answers 200 while every checker passes. A nil checker means
// there is nothing beyond the process to check.
func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Health(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
