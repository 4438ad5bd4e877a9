package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	eventadapter "github.com/diogoX451/agentnet/internal/adapters/events"
	storeadapter "github.com/diogoX451/agentnet/internal/adapters/store"
	"github.com/diogoX451/agentnet/internal/agents"
	"github.com/diogoX451/agentnet/internal/api"
	"github.com/diogoX451/agentnet/internal/config"
	"github.com/diogoX451/agentnet/internal/core/ports"
	"github.com/diogoX451/agentnet/internal/core/service"
	"github.com/diogoX451/agentnet/internal/definitions"
	natsevents "github.com/diogoX451/agentnet/internal/events/nats"
	"github.com/diogoX451/agentnet/internal/logging"
	"github.com/diogoX451/agentnet/internal/metrics"
	"github.com/diogoX451/agentnet/internal/store"
	"github.com/diogoX451/agentnet/internal/store/memory"
	redisstore "github.com/diogoX451/agentnet/internal/store/redis"
	"github.com/diogoX451/agentnet/internal/tracing"
	"github.com/diogoX451/agentnet/pkg/types"
)

func main() {
	cfg, err := config.Load(types.Getenv("AGENTNET_CONFIG", ""))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Enabled:  cfg.Tracing.Enabled,
		Exporter: cfg.Tracing.Exporter,
	})
	if err != nil {
		logger.Fatal("tracing setup failed", zap.Error(err))
	}

	collector := metrics.NewCollector("agentnet")

	// Eventos: log sempre, NATS quando habilitado
	publishers := eventadapter.Multi{eventadapter.NewLogPublisher(logger)}
	if cfg.NATS.Enabled {
		logger.Info("connecting to NATS", zap.String("url", cfg.NATS.URL))
		bus, err := natsevents.New(natsevents.Config{
			URL:           cfg.NATS.URL,
			Name:          "agentnet-api",
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		})
		if err != nil {
			logger.Fatal("failed to connect to NATS", zap.Error(err))
		}
		if err := bus.SetupStreams(); err != nil {
			logger.Fatal("failed to setup streams", zap.Error(err))
		}
		publisher := eventadapter.NewBusPublisher(bus)
		defer publisher.Close()
		publishers = append(publishers, publisher)
	}
	var events ports.EventPublisher = publishers

	// Agentes
	agentList, err := agents.FromConfig(cfg.Agents)
	if err != nil {
		logger.Fatal("invalid agent catalog", zap.Error(err))
	}
	manager := agents.NewManager(agents.NewHTTPTransport(agents.HTTPTransportConfig{}), agents.ManagerConfig{
		ProbeInterval:    cfg.Health.Interval,
		ProbeTimeout:     cfg.Health.Timeout,
		FailureThreshold: cfg.Health.FailureThreshold,
		RequestTimeout:   cfg.Dispatch.RequestTimeout,
		RateLimit:        cfg.Dispatch.RateLimit,
		RateBurst:        cfg.Dispatch.RateBurst,
		Breaker: agents.BreakerConfig{
			Enabled:     cfg.Dispatch.Breaker.Enabled,
			MaxFailures: cfg.Dispatch.Breaker.MaxFailures,
			OpenTimeout: cfg.Dispatch.Breaker.OpenTimeout,
		},
	}, logger, agents.WithEventPublisher(events), agents.WithMetrics(collector))
	if err := agents.RegisterAll(manager, agentList); err != nil {
		logger.Fatal("failed to register agents", zap.Error(err))
	}
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("failed to start agent manager", zap.Error(err))
	}

	// Persistência
	var executions store.ExecutionStore
	if cfg.Redis.Enabled {
		logger.Info("connecting to Redis", zap.String("addr", cfg.Redis.Addr))
		rs, err := redisstore.New(redisstore.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			ExecutionTTL: cfg.Redis.ExecutionTTL,
		})
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		executions = rs
	} else {
		executions = memory.New()
	}
	defer executions.Close()

	engine := service.NewEngine(manager, storeadapter.NewExecutionRepository(executions), service.EngineConfig{
		DefaultStepTimeout: cfg.Engine.DefaultStepTimeout,
		RetryDelay:         cfg.Engine.RetryDelay,
		WaitPollInterval:   cfg.Engine.WaitPollInterval,
		SaveAttempts:       cfg.Engine.SaveAttempts,
		SaveRetryDelay:     cfg.Engine.SaveRetryDelay,
	}, logger, service.WithEvents(events), service.WithMetrics(collector))

	if cfg.Workflows.Dir != "" {
		defs, err := definitions.LoadDir(cfg.Workflows.Dir)
		if err != nil {
			logger.Fatal("failed to load workflows", zap.Error(err))
		}
		for _, def := range defs {
			if err := engine.RegisterWorkflow(def); err != nil {
				logger.Fatal("failed to register workflow", zap.String("workflow_id", def.ID), zap.Error(err))
			}
		}
	}

	retention, err := service.NewRetentionJob(engine, cfg.Engine.CleanupSchedule, cfg.Engine.Retention, logger)
	if err != nil {
		logger.Fatal("invalid retention config", zap.Error(err))
	}
	retention.Start()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      api.NewServer(manager, engine, collector.Handler(), logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server is ready to handle requests", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("could not listen", zap.String("addr", srv.Addr), zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	retention.Stop()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", zap.Error(err))
	}
	manager.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
