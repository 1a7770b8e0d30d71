package configuration

import (
	"context"
	"fmt"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/cache"
	"github.com/anik12136/uiu-pathshala-server/internal/db"
	"github.com/anik12136/uiu-pathshala-server/internal/handler"
	"github.com/anik12136/uiu-pathshala-server/internal/hub"
	"github.com/anik12136/uiu-pathshala-server/internal/metrics"
	"github.com/anik12136/uiu-pathshala-server/internal/repo"
	"github.com/anik12136/uiu-pathshala-server/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Container struct {
	ChatHandler    handler.ChatHandler
	UserHandler    handler.UserHandler
	MonitorHandler handler.MonitorHandler
	Hub            *hub.Hub
	Config         Config
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Registry       *prometheus.Registry

	// private - for cleanup
	mongoClient *mongo.Database
	cache       cache.Cache
}

func BuildContainer() (*Container, error) {
	config, err := LoadConfig(ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(config.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	logger.Info("config loaded",
		zap.String("database", config.ChatDatabase.Database),
		zap.Int("app_port", config.Server.AppPort),
		zap.Int("socket_port", config.Server.SocketPort),
		zap.Bool("redis_enabled", config.Redis.Url != ""),
	)

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := db.EnsureConversationIndexes(ctx, con.Collection(config.ChatDatabase.ConversationsCollection)); err != nil {
		return nil, err
	}
	if err := db.EnsureUserIndexes(ctx, con.Collection(config.ChatDatabase.UsersCollection)); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	var nameCache cache.Cache
	if config.Redis.Url != "" {
		rc, err := cache.NewRedisCache(config.Redis.Url)
		if err != nil {
			return nil, err
		}
		nameCache = rc
	}

	conversationRepo := repo.NewConversationRepository(con, config.ChatDatabase.ConversationsCollection, logger, m)
	userRepo := repo.NewUserRepository(con, config.ChatDatabase.UsersCollection, logger, m)

	userService := service.NewUserService(userRepo, nameCache, time.Duration(config.Redis.UserCacheTTLSeconds)*time.Second, logger)
	conversationService := service.NewConversationService(conversationRepo, userService, logger, m)

	// Hub sends through the service; the service pushes through the hub.
	Hub := hub.NewHub(conversationService, logger, m, config.Server.AllowedOrigins)
	conversationService.SetNotifier(Hub)

	return &Container{
		ChatHandler:    handler.NewChatHandler(conversationService, logger),
		UserHandler:    handler.NewUserHandler(userService, logger),
		MonitorHandler: handler.NewMonitorHandler(hub.NewMonitorService(Hub), nameCache, logger),
		Hub:            Hub,
		Config:         *config,
		Logger:         logger,
		Metrics:        m,
		Registry:       registry,
		mongoClient:    con,
		cache:          nameCache,
	}, nil
}

// NewLogger builds the zap logger described by cfg.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	return zc.Build()
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	// Stop the hub first (closes all WebSocket connections)
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.cache != nil {
		if err := c.cache.Close(); err != nil && c.Logger != nil {
			c.Logger.Warn("failed to close cache", zap.Error(err))
		}
	}

	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	// Sync logger
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	return nil
}
