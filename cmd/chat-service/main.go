package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"socialchat-backend/internal/database"
	chatHandler "socialchat-backend/internal/handler/http/chat"
	followHandler "socialchat-backend/internal/handler/http/follow"
	wsHandler "socialchat-backend/internal/handler/ws"
	"socialchat-backend/internal/middleware"
	"socialchat-backend/internal/repository/cassandra"
	"socialchat-backend/internal/repository/cockroach"
	"socialchat-backend/internal/repository/redis"
	chatService "socialchat-backend/internal/service/chat"
	cryptoService "socialchat-backend/internal/service/crypto"
	followService "socialchat-backend/internal/service/follow"
	"socialchat-backend/pkg/audit"
	"socialchat-backend/pkg/config"
	"socialchat-backend/pkg/e2ee"
	"socialchat-backend/pkg/jwt"
	"socialchat-backend/pkg/lockout"
	"socialchat-backend/pkg/logger"
	"socialchat-backend/pkg/metrics"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.JWT.Secret == "" {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry)

	// 2. Connect to CockroachDB
	ctx := context.Background()
	db, err := database.NewDB(ctx, &cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer db.Close()

	// 3. Connect to Redis with degraded mode support
	redisDB := database.NewRedisDB(&cfg.Redis)
	defer redisDB.Close()

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	redisDB.StartHealthCheck(healthCtx, 10*time.Second)

	// 4. Message store
	var messageRepo chatService.MessageStore
	var cassandraDB *database.CassandraDB
	switch cfg.Chat.MessageStore {
	case config.MessageStoreCassandra:
		cassandraDB, err = database.NewCassandraDB(&cfg.Cassandra)
		if err != nil {
			logger.Log.Fatal("Failed to connect to Cassandra", zap.Error(err))
		}
		defer cassandraDB.Close()
		messageRepo = cassandra.NewMessageRepository(cassandraDB)
	default:
		messageRepo = cockroach.NewMessageRepository(db.Pool)
	}
	logger.Log.Info("Message store ready", zap.String("store", cfg.Chat.MessageStore))

	// 5. Initialize Repositories
	keysRepo := cockroach.NewKeysRepository(db.Pool)
	followRepo := cockroach.NewFollowRepository(db.Pool)
	presenceRepo := redis.NewPresenceRepository(redisDB)

	lockoutManager := lockout.NewLockoutManager(redisDB.Client, lockout.LockoutConfig{
		MaxAttempts:  cfg.Lockout.MaxAttempts,
		LockDuration: cfg.Lockout.Duration,
	})
	auditLogger := audit.NewAuditLogger(redisDB.Client)

	// 6. Connection registry and fan-out
	registry := wsHandler.NewRegistry(presenceRepo)
	var broadcaster chatService.Broadcaster = registry

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	if cfg.Chat.Fanout == config.FanoutRedis {
		relay := wsHandler.NewRedisRelay(redisDB.Client, registry)
		broadcaster = relay
		go func() {
			if err := relay.Run(relayCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.Error("Chat relay stopped", zap.Error(err))
			}
		}()
	}
	logger.Log.Info("Chat fan-out ready", zap.String("fanout", cfg.Chat.Fanout))

	// 7. Initialize Services
	cryptoSvc := cryptoService.NewService(keysRepo, lockoutManager, auditLogger, e2ee.KDFParams{
		MemoryKiB:  cfg.Crypto.KDFMemoryKiB,
		Iterations: cfg.Crypto.KDFIterations,
		Threads:    cfg.Crypto.KDFThreads,
	})
	chatSvc := chatService.NewService(followRepo, messageRepo, keysRepo, cryptoSvc, broadcaster, auditLogger)
	followSvc := followService.NewService(followRepo)

	// 8. Initialize Handlers
	authenticator := middleware.NewAuthenticator(jwtManager, middleware.NewRedisRevocationChecker(redisDB.Client))
	chatHdlr := chatHandler.NewHandler(cryptoSvc, chatSvc)
	followHdlr := followHandler.NewHandler(followSvc)
	wsHdlr := wsHandler.NewHandler(registry, chatSvc, authenticator, cfg.Chat.HandshakeTimeout, cfg.Server.AllowedOrigins)

	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	prometheusMiddleware := middleware.NewPrometheusMiddleware(appMetrics)
	keyRateLimiter := middleware.NewRateLimiter(redisDB.Client, "chat_keys", 10, time.Minute)

	// 9. Setup Gin Router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.SetTrustedProxies(nil)

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	router.Use(prometheusMiddleware.Handler())

	probes := map[string]func(*gin.Context) error{
		"cockroachdb": func(c *gin.Context) error { return db.Ping(c.Request.Context()) },
		"redis":       func(c *gin.Context) error { return redisDB.Ping(c.Request.Context()) },
	}
	if cassandraDB != nil {
		probes["cassandra"] = func(c *gin.Context) error { return cassandraDB.Ping(c.Request.Context()) }
	}
	router.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName, probes))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	// The channel authenticates its own handshake
	router.GET("/v1/ws/chat", wsHdlr.ServeWS)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authenticator))
	{
		chatGroup := v1.Group("/chat")
		{
			chatGroup.POST("/keys", keyRateLimiter.Middleware(), chatHdlr.GenerateKeys)
			chatGroup.GET("/keys/:user_id", chatHdlr.GetPublicKey)
			chatGroup.POST("/history/:user_id", chatHdlr.GetHistory)
			chatGroup.DELETE("/messages/:message_id", chatHdlr.DeleteMessage)
		}

		followerGroup := v1.Group("/follower")
		{
			followerGroup.POST("/follow/:user_id", followHdlr.Follow)
			followerGroup.POST("/unfollow/:user_id", followHdlr.Unfollow)
		}
	}

	// 10. Start server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Chat service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("env", cfg.Server.Environment))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 11. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Hijacked chat connections are not tracked by Shutdown
	registry.Close()
	stopRelay()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}
