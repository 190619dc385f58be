package bootstrap

import (
	"context"
	"time"

	"triage_server/adapter/out/llm"
	"triage_server/adapter/out/messaging"
	"triage_server/adapter/out/mongodb"
	"triage_server/adapter/out/persistence"
	"triage_server/adapter/out/realtime"
	"triage_server/config"
	"triage_server/core/port/out"
	"triage_server/core/service/classification"
	"triage_server/core/service/handoff"
	"triage_server/core/service/triage"
	"triage_server/infra/database"
	"triage_server/pkg/logger"
	"triage_server/pkg/metrics"
	"triage_server/pkg/snowflake"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client
	Metrics *metrics.Registry

	Catalog *classification.Catalog
	IDs     *snowflake.Generator

	// Store holds live conversation state.
	Store out.ConversationStore
	// Sinks writes directly to Postgres / Mongo (or memory). The worker
	// drains persist jobs into it.
	Sinks *persistence.MultiRecorder
	// Recorder is what the API hands the service: Sinks, or a stream
	// recorder in async mode.
	Recorder out.TriageRecorder
	Handoffs out.HandoffQuery

	LLM      *llm.ReplyGenerator
	AlertHub *realtime.AlertHub
	Kafka    *messaging.KafkaAlertPublisher

	Service *triage.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg, Metrics: metrics.Global()}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Postgres: pgxpool for readiness, sqlx for the recorder
	if cfg.DatabaseURL != "" {
		db, err := database.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.DB = db
		cleanups = append(cleanups, func() { db.Close() })

		sqlDB, err := database.NewSQLX(cfg.DatabaseURL, database.DefaultSQLConfig())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		deps.SQLDB = sqlDB
		cleanups = append(cleanups, func() { sqlDB.Close() })
		metrics.RegisterPool("postgres", sqlDB.DB)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := persistence.EnsureSchema(ctx, sqlDB); err != nil {
			logger.Warn("Failed to ensure triage schema: %v", err)
		}
		cancel()
		logger.Info("Postgres connected")
	} else {
		logger.Warn("DATABASE_URL not set, triage records are kept in memory")
	}

	// Redis
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// MongoDB
	var archive *mongodb.ArchiveAdapter
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				mongoClient.Disconnect(ctx)
			})

			archive = mongodb.NewArchiveAdapter(mongoClient.Database(cfg.MongoDBName), cfg.ArchiveRetention())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := archive.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to ensure archive indexes: %v", err)
			}
			cancel()
		}
	}

	// Catalog and IDs
	catalog := classification.MustDefaultCatalog()
	if cfg.PatternCatalogPath != "" {
		loaded, err := classification.LoadCatalog(cfg.PatternCatalogPath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		catalog = loaded
		logger.Info("Pattern catalog loaded from %s", cfg.PatternCatalogPath)
	}
	deps.Catalog = catalog

	ids, err := snowflake.NewGenerator(cfg.NodeID)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.IDs = ids

	// Conversation state
	if deps.Redis != nil {
		deps.Store = persistence.NewRedisConversationStore(deps.Redis, cfg.StateTTL())
	} else {
		logger.Warn("Redis not available, conversation state is process-local")
		deps.Store = persistence.NewMemoryConversationStore()
	}

	// Recorders
	var sinks []out.TriageRecorder
	if deps.SQLDB != nil {
		pg := persistence.NewTriageRecorderAdapter(deps.SQLDB)
		sinks = append(sinks, pg)
		deps.Handoffs = pg
	} else {
		mem := persistence.NewMemoryRecorder()
		sinks = append(sinks, mem)
		deps.Handoffs = mem
	}
	if archive != nil {
		sinks = append(sinks, archive)
	}
	deps.Sinks = persistence.NewMultiRecorder(sinks...)
	deps.Recorder = deps.Sinks

	if cfg.PersistAsync {
		switch {
		case deps.Redis == nil:
			logger.Warn("PERSIST_ASYNC set but Redis is unavailable, persisting inline")
		case deps.SQLDB == nil:
			logger.Warn("PERSIST_ASYNC set without DATABASE_URL, persisting inline")
		default:
			producer := messaging.NewRedisProducer(deps.Redis, cfg.StreamMaxLen)
			deps.Recorder = messaging.NewStreamRecorder(producer)
			logger.Info("Persisting through stream %s", messaging.StreamPersist)
		}
	}

	// Alerts
	deps.AlertHub = realtime.NewAlertHub(logger.Component("alerts"))
	if len(cfg.KafkaBrokers) > 0 {
		deps.Kafka = messaging.NewKafkaAlertPublisher(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		kafka := deps.Kafka
		cleanups = append(cleanups, func() {
			if err := kafka.Close(); err != nil {
				logger.Warn("Kafka writer close failed: %v", err)
			}
		})
		logger.Info("Kafka alert publisher configured (topic=%s)", cfg.KafkaAlertTopic)
	}

	// Replies
	var replies out.ReplyGenerator
	if cfg.OpenAIAPIKey != "" {
		deps.LLM = llm.NewReplyGenerator(llm.Config{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.LLMModel,
			MaxTokens:   cfg.LLMMaxTokens,
			Temperature: cfg.LLMTemperature,
			Timeout:     cfg.LLMTimeout(),
		}, logger.Component("llm"))
		replies = deps.LLM
	} else {
		logger.Info("OPENAI_API_KEY not set, using rule-based replies")
	}

	// Service
	analyzer := classification.NewAnalyzer(catalog, classification.DefaultRiskPolicy())
	builder := handoff.NewBuilder(catalog, handoff.Policy{
		AngerThreshold: cfg.EscalationAngerThreshold,
		ExcerptRunes:   cfg.SummaryExcerptRunes,
	}, ids)

	svc := triage.NewService(triage.NewEngine(analyzer, builder), deps.Store, replies)
	svc.SetRecorder(deps.Recorder)
	svc.SetHandoffQuery(deps.Handoffs)
	svc.AddAlertPublisher(deps.AlertHub)
	if deps.Kafka != nil {
		svc.AddAlertPublisher(deps.Kafka)
	}
	svc.SetMetrics(deps.Metrics)
	svc.SetRetryPolicy(cfg.StateMaxRetries, 0)
	svc.SetSideEffectTimeout(cfg.SideEffectTimeout())
	deps.Service = svc

	return deps, cleanup, nil
}
