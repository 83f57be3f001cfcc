package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/api"
	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/db"
	"github.com/wuwenbin0122/agent-platform/internal/llm"
	"github.com/wuwenbin0122/agent-platform/internal/services"
	"github.com/wuwenbin0122/agent-platform/internal/trace"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
	"github.com/wuwenbin0122/agent-platform/internal/vector"
	"github.com/wuwenbin0122/agent-platform/internal/ws"
)

// store is what both the Postgres and the in-memory backends provide.
type store interface {
	auth.UserStore
	services.Store
	services.MessageStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger: failed to build: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *utils.Config, logger *zap.Logger) error {
	ctx := context.Background()
	logger.Info("starting", zap.String("app", cfg.App.Name), zap.String("version", cfg.App.Version))

	shutdownTracing, err := trace.Init(ctx, cfg.LangChain, cfg.App.Name, cfg.App.Version, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
		shutdownTracing = func(context.Context) error { return nil }
	}

	primary, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var messages services.MessageStore = primary
	probeDatabase := primary.Ping
	if cfg.Mongo.URI != "" {
		mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		defer func() {
			if err := mongoStore.Close(context.Background()); err != nil {
				logger.Warn("mongo close error", zap.Error(err))
			}
		}()
		if err := mongoStore.EnsureCollections(ctx); err != nil {
			return err
		}
		messages = mongoStore
		probeDatabase = func(ctx context.Context) error {
			if err := primary.Ping(ctx); err != nil {
				return err
			}
			return mongoStore.Ping(ctx)
		}
		logger.Info("messages stored in mongo", zap.String("database", cfg.Mongo.Database))
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = db.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory rate limiting", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	authService, err := auth.NewService(primary, auth.Options{
		Secret:            cfg.Security.SecretKey,
		Algorithm:         cfg.Security.Algorithm,
		TTL:               cfg.Security.AccessTokenExpire,
		BcryptCost:        cfg.Security.BcryptRounds,
		PasswordMinLength: cfg.Security.PasswordMinLength,
	})
	if err != nil {
		return err
	}

	llmRouter := llm.NewRouter(cfg, llm.RouterOptions{
		Timeout:    cfg.Timeouts.LLM,
		MaxRetries: 2,
		Logger:     logger.Named("llm"),
	})

	vectorService := vector.NewService(cfg, vector.WithLogger(logger.Named("vector")))
	vectorService.Initialize(ctx)
	defer vectorService.Close()

	agentService := services.NewAgentService(primary, messages, llmRouter, cfg, logger.Named("agents"))

	handler := api.NewHandler(api.Deps{
		Config:      cfg,
		Logger:      logger,
		Auth:        authService,
		Agents:      agentService,
		Sockets:     services.NewWebSocketService(agentService),
		Connections: ws.NewManager(logger.Named("ws")),
		Probes: api.Probes{
			Database: func(ctx context.Context) (bool, error) {
				if err := probeDatabase(ctx); err != nil {
					return false, err
				}
				return true, nil
			},
			VectorDB: vectorService.HealthCheck,
			LLM:      llmRouter.HealthCheck,
			Cache:    redisProbe(redisClient),
		},
	})

	server := &http.Server{
		Addr:              cfg.App.Addr(),
		Handler:           newRouter(cfg, logger, handler, redisClient),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Timeouts.LLM + cfg.Timeouts.HTTP,
		IdleTimeout:       cfg.Performance.KeepAlive,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handler.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
	return nil
}

func openStore(ctx context.Context, cfg *utils.Config, logger *zap.Logger) (store, func(), error) {
	if cfg.Database.InMemory() {
		logger.Warn("using in-memory store, data is lost on restart")
		return db.NewMemory(), func() {}, nil
	}

	if err := db.Migrate(cfg.Database.URL); err != nil {
		return nil, nil, err
	}

	postgres, err := db.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Ping(ctx); err != nil {
		postgres.Close()
		return nil, nil, err
	}

	logger.Info("postgres connected")
	return postgres, postgres.Close, nil
}

func redisProbe(client *redis.Client) api.Probe {
	if client == nil {
		return nil
	}
	return func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			return false, err
		}
		return true, nil
	}
}
