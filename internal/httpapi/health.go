package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mailfang/mailfang/internal/store"
)

// HealthHandler provides the liveness endpoint, grounded in the teacher's
// internal/handler/health.go but reduced to mailfang's single dependency:
// the embedded SQLite pool.
type HealthHandler struct {
	store *store.Store
}

func NewHealthHandler(st *store.Store) *HealthHandler {
	return &HealthHandler{store: st}
}

// Healthz pings the SQLite pool and returns 200 if reachable, 503 otherwise.
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ok"
	httpCode := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
	})
}
