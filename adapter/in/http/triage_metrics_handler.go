package http

import (
	"time"

	"triage_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
)

// MetricsHandler exposes latency percentiles, classification counters and
// any extra sources registered at startup (pools, alert hub, worker pool).
type MetricsHandler struct {
	registry *metrics.Registry
	sources  map[string]func() any
}

func NewMetricsHandler(registry *metrics.Registry) *MetricsHandler {
	if registry == nil {
		registry = metrics.Global()
	}
	return &MetricsHandler{registry: registry, sources: make(map[string]func() any)}
}

// AddSource registers a named snapshot function. Call before serving.
func (h *MetricsHandler) AddSource(name string, fn func() any) {
	h.sources[name] = fn
}

func (h *MetricsHandler) Register(app fiber.Router) {
	app.Get("/metrics", h.Metrics)
}

func (h *MetricsHandler) Metrics(c *fiber.Ctx) error {
	body := h.registry.Snapshot()
	if pools := metrics.AllPoolStats(); len(pools) > 0 {
		body["db_pools"] = pools
	}
	for name, fn := range h.sources {
		body[name] = fn()
	}
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return c.JSON(body)
}
