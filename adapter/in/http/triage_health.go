package http

import (
	"context"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	statusHealthy      = "healthy"
	statusUnhealthy    = "unhealthy"
	statusUnconfigured = "unconfigured"
	statusDegraded     = "degraded"
)

// BreakerStater reports a circuit breaker state such as "closed" or "open".
type BreakerStater interface {
	State() string
}

type HealthHandler struct {
	db      *pgxpool.Pool
	redis   *redis.Client
	mongo   *mongo.Client
	ai      BreakerStater
	env     string
	started time.Time
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{started: time.Now()}
}

func NewHealthHandlerWithDeps(db *pgxpool.Pool, redis *redis.Client, mongo *mongo.Client, ai BreakerStater, env string) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		mongo:   mongo,
		ai:      ai,
		env:     env,
		started: time.Now(),
	}
}

func (h *HealthHandler) Register(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready checks every downstream dependency. A configured dependency that
// fails its check marks the service degraded; the response stays 200
// because chat keeps working on fallbacks.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	services := fiber.Map{
		"postgres": h.checkPing(ctx, h.db != nil, func(ctx context.Context) error { return h.db.Ping(ctx) }),
		"redis":    h.checkPing(ctx, h.redis != nil, func(ctx context.Context) error { return h.redis.Ping(ctx).Err() }),
		"mongodb":  h.checkPing(ctx, h.mongo != nil, func(ctx context.Context) error { return h.mongo.Ping(ctx, readpref.Primary()) }),
		"ai_api":   h.checkAI(),
	}

	status := statusHealthy
	for _, v := range services {
		if v.(fiber.Map)["status"] == statusUnhealthy {
			status = statusDegraded
			break
		}
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"services":  services,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"runtime": fiber.Map{
			"environment":    h.env,
			"uptime_seconds": int64(time.Since(h.started).Seconds()),
			"goroutines":     runtime.NumGoroutine(),
		},
	})
}

func (h *HealthHandler) checkPing(ctx context.Context, configured bool, ping func(context.Context) error) fiber.Map {
	if !configured {
		return fiber.Map{"status": statusUnconfigured}
	}
	start := time.Now()
	if err := ping(ctx); err != nil {
		return fiber.Map{"status": statusUnhealthy, "error": err.Error()}
	}
	return fiber.Map{"status": statusHealthy, "latency_ms": time.Since(start).Milliseconds()}
}

// checkAI reads the breaker instead of calling the provider.
func (h *HealthHandler) checkAI() fiber.Map {
	if h.ai == nil {
		return fiber.Map{"status": statusUnconfigured, "fallback": "rule_based"}
	}
	state := h.ai.State()
	if state == "open" {
		return fiber.Map{"status": statusUnhealthy, "breaker": state, "fallback": "rule_based"}
	}
	return fiber.Map{"status": statusHealthy, "breaker": state}
}
