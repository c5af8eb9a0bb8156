package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/brightsmile/clinic-assistant/cmd/mainconfig"
	"github.com/brightsmile/clinic-assistant/internal/clinic"
	"github.com/brightsmile/clinic-assistant/internal/config"
	"github.com/brightsmile/clinic-assistant/internal/dialogue"
	"github.com/brightsmile/clinic-assistant/internal/llm"
	"github.com/brightsmile/clinic-assistant/internal/observability/metrics"
	"github.com/brightsmile/clinic-assistant/internal/scheduling"
	"github.com/brightsmile/clinic-assistant/internal/session"
	"github.com/brightsmile/clinic-assistant/internal/webchat"
	"github.com/brightsmile/clinic-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic assistant",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_store", cfg.SessionStore,
		"scheduler_backend", cfg.SchedulerBackend,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()
	info := clinic.Default()

	var scheduler scheduling.Scheduler
	switch cfg.SchedulerBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			logger.Error("DATABASE_URL is required when SCHEDULER_BACKEND=postgres")
			os.Exit(1)
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		scheduler = scheduling.NewPostgresScheduler(pool, info, logger)
	case "memory":
		scheduler = scheduling.NewMemoryScheduler(info, logger)
	default:
		logger.Error("unknown scheduler backend", "backend", cfg.SchedulerBackend)
		os.Exit(1)
	}

	var store session.Store
	switch cfg.SessionStore {
	case "redis":
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		store = session.NewRedisStore(client, dialogue.NodeInitial, cfg.SessionTimeout, logger)
	case "memory":
		mem := session.NewMemoryStore(dialogue.NodeInitial, cfg.SessionTimeout, logger)
		mem.StartSweeper(cfg.SweepInterval)
		defer mem.Stop()
		store = mem
	default:
		logger.Error("unknown session store", "store", cfg.SessionStore)
		os.Exit(1)
	}

	var transcripts *dialogue.TranscriptStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open transcript db", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		transcripts = dialogue.NewTranscriptStore(db)
	}

	var gateway dialogue.Gateway
	switch cfg.LLMProvider {
	case "bedrock":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		gw, err := llm.NewBedrockGateway(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID, logger)
		if err != nil {
			logger.Error("failed to build bedrock gateway", "error", err)
			os.Exit(1)
		}
		gateway = gw
	case "gemini":
		gw, err := llm.NewGeminiGateway(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID, logger)
		if err != nil {
			logger.Error("failed to build gemini gateway", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gw.Close() }()
		gateway = gw
	case "stub":
		logger.Warn("running with the stub gateway; no model is attached")
		gateway = llm.NewStubGateway()
	default:
		logger.Error("unknown llm provider", "provider", cfg.LLMProvider)
		os.Exit(1)
	}

	registry := dialogue.NewRegistry()
	dialogue.NewHandlers(info, scheduler, logger, nil).Register(registry)
	factory := dialogue.NewFactory(info, nil)
	if err := dialogue.ValidateGraph(factory, registry); err != nil {
		logger.Error("dialogue graph is inconsistent", "error", err)
		os.Exit(1)
	}

	convMetrics := metrics.NewConversationMetrics(nil)

	engine := dialogue.NewEngine(dialogue.EngineConfig{
		Store:       store,
		Gateway:     gateway,
		Registry:    registry,
		Nodes:       factory,
		Transcripts: transcripts,
		Metrics:     convMetrics,
		Logger:      logger,
		TurnTimeout: cfg.TurnTimeout,
		MaxHops:     cfg.MaxActionHops,
	})

	router := webchat.NewRouter(webchat.RouterConfig{
		Logger:         logger,
		Chat:           webchat.NewHandler(engine, logger),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
