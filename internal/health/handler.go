package health

import (
	"context"
	"net/http"
	"time"

	"course-service/internal/httputil"
	"course-service/internal/metrics"

	"github.com/go-chi/chi/v5"
)

const checkTimeout = 2 * time.Second

// CheckFunc reports whether a dependency is usable.
type CheckFunc func(ctx context.Context) error

type check struct {
	name string
	fn   CheckFunc
}

type Handler struct {
	checks  []check
	metrics *metrics.HealthMetrics
}

func NewHandler(m *metrics.HealthMetrics) *Handler {
	return &Handler{metrics: m}
}

// AddCheck registers a readiness dependency. Checks run in registration order.
func (h *Handler) AddCheck(name string, fn CheckFunc) {
	h.checks = append(h.checks, check{name: name, fn: fn})
}

// Names lists the registered dependencies.
func (h *Handler) Names() []string {
	names := make([]string, len(h.checks))
	for i, c := range h.checks {
		names[i] = c.name
	}
	return names
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK

	for _, c := range h.checks {
		start := time.Now()
		err := c.fn(ctx)
		h.metrics.RecordDependencyCheck(ctx, c.name, time.Since(start), err)

		if err != nil {
			resp.Checks[c.name] = err.Error()
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = "ok"
	}

	httputil.RespondWithJSON(w, status, resp)
}
