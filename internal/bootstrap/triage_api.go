package bootstrap

import (
	"strings"
	"time"

	"triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/database"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

const (
	alertStreamPath = "/api/v1/alerts/stream"
	maxChatBody     = 64 * 1024
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),

		ReadBufferSize:  16384,
		WriteBufferSize: 16384,

		// go-json for request and response bodies
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          1 * 1024 * 1024,
		ReadTimeout:        30 * time.Second,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger(deps.Metrics))

	// SSE responses must not be buffered by the compressor.
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == alertStreamPath
		},
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health and metrics
	var ai http.BreakerStater
	if deps.LLM != nil {
		ai = deps.LLM
	}
	http.NewHealthHandlerWithDeps(deps.DB, deps.Redis, deps.MongoDB, ai, cfg.Environment).Register(app)

	metricsHandler := http.NewMetricsHandler(deps.Metrics)
	metricsHandler.AddSource("alert_hub", func() any { return deps.AlertHub.GetMetrics() })
	if deps.DB != nil {
		metricsHandler.AddSource("pgxpool", func() any { return database.GetPoolStats(deps.DB) })
	}
	if deps.Redis != nil {
		metricsHandler.AddSource("redis", func() any { return database.GetRedisStats(deps.Redis) })
	}
	if deps.LLM != nil {
		metricsHandler.AddSource("llm_breaker", func() any { return deps.LLM.State() })
	}
	metricsHandler.Register(app)

	// API routes
	api := app.Group("/api/v1")

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMin, time.Minute)
	http.NewTriageHandler(deps.Service).Register(api,
		rateLimiter.Handler(),
		middleware.JSONOnly(),
		middleware.MaxBodySize(maxChatBody),
	)
	http.NewAlertStreamHandler(deps.AlertHub, logger.Component("http")).Register(api)

	logger.Info("API configured (store=%T, recorder=%T, llm=%t, kafka=%t)",
		deps.Store, deps.Recorder, deps.LLM != nil, deps.Kafka != nil)

	return app, func() {
		rateLimiter.Close()
		cleanup()
	}, nil
}
