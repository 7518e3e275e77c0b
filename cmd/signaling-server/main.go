package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"ringring-backend/internal/database"
	authHandler "ringring-backend/internal/handler/http/auth"
	callHandler "ringring-backend/internal/handler/http/call"
	contactHandler "ringring-backend/internal/handler/http/contact"
	presenceHandler "ringring-backend/internal/handler/http/presence"
	pushHandler "ringring-backend/internal/handler/http/push"
	userHandler "ringring-backend/internal/handler/http/user"
	wsHandler "ringring-backend/internal/handler/ws"
	"ringring-backend/internal/middleware"
	"ringring-backend/internal/presence"
	"ringring-backend/internal/repository/cassandra"
	"ringring-backend/internal/repository/cockroach"
	redisRepo "ringring-backend/internal/repository/redis"
	authService "ringring-backend/internal/service/auth"
	callService "ringring-backend/internal/service/call"
	contactService "ringring-backend/internal/service/contact"
	"ringring-backend/internal/service/storage"
	userService "ringring-backend/internal/service/user"
	"ringring-backend/internal/signaling"
	"ringring-backend/pkg/audit"
	"ringring-backend/pkg/config"
	"ringring-backend/pkg/constants"
	"ringring-backend/pkg/jwt"
	"ringring-backend/pkg/logger"
	"ringring-backend/pkg/metrics"
	"ringring-backend/pkg/push"
	"ringring-backend/pkg/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 1. Metrics
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	database.InitRedisMetrics()

	// 2. CockroachDB: users and the call ledger
	var pool *pgxpool.Pool
	err = resilience.Retry(ctx, "connect cockroachdb", 5, 2*time.Second, func(ctx context.Context) error {
		var err error
		pool, err = database.NewCockroachDB(ctx, cfg.Database)
		return err
	})
	if err != nil {
		logger.Fatal("Failed to connect to CockroachDB", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("Connected to CockroachDB", zap.String("host", cfg.Database.Host))

	if err := database.ApplyMigrations(ctx, pool); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}

	userRepo := cockroach.NewUserRepository(pool)
	callRepo := cockroach.NewCallRepository(pool)
	contactRepo := cockroach.NewContactRepository(pool)

	// 3. Redis: presence mirror, token revocation, push tokens
	redisDB := database.NewRedisDB(cfg.Redis)
	defer redisDB.Close()
	if err := redisDB.HealthCheck(ctx); err != nil {
		logger.Warn("Redis unavailable at startup, running degraded", zap.Error(err))
	}
	go redisDB.StartHealthCheck(ctx, 10*time.Second)

	sessionRepo := redisRepo.NewSessionRepository(redisDB)
	presenceRepo := redisRepo.NewPresenceRepository(redisDB)
	pushTokenRepo := redisRepo.NewPushTokenRepository(redisDB)

	// 4. Cassandra call-event journal (optional)
	var journal callService.Journal
	if cfg.Cassandra.Enabled {
		cassandraDB, err := database.NewCassandraDB(cfg.Cassandra)
		if err != nil {
			logger.Warn("Cassandra unavailable, call-event journal disabled", zap.Error(err))
		} else {
			defer cassandraDB.Close()
			eventRepo := cassandra.NewCallEventRepository(cassandraDB)
			if err := eventRepo.EnsureSchema(ctx); err != nil {
				logger.Warn("Failed to ensure call-event schema", zap.Error(err))
			}
			journal = eventRepo
		}
	}

	// 5. MinIO avatars (optional)
	var avatars *storage.AvatarStore
	if cfg.MinIO.Enabled {
		avatars, err = storage.NewMinioAvatarStore(cfg.MinIO)
		if err != nil {
			logger.Fatal("Failed to create MinIO client", zap.Error(err))
		}
		if err := avatars.EnsureBucket(ctx); err != nil {
			logger.Warn("Avatar bucket check failed", zap.Error(err))
		}
	}

	// 6. Services
	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, cfg.JWT.AccessTokenExpiry)

	var userSvc *userService.Service
	if avatars != nil {
		userSvc = userService.NewService(userRepo, avatars)
	} else {
		userSvc = userService.NewService(userRepo, nil)
	}

	identity, err := authService.NewIdentityProvider(ctx, cfg.Identity)
	if err != nil {
		logger.Fatal("Failed to initialize identity provider", zap.Error(err))
	}
	authSvc := authService.NewService(identity, userRepo, sessionRepo, jwtManager, userSvc, appMetrics)
	authSvc.SetAuditor(audit.NewLogger(redisDB.Client))
	if avatars != nil {
		authSvc.SetAvatarMirror(avatars)
	}

	blocks := contactService.NewBlockList()
	contactSvc := contactService.NewService(contactRepo, userRepo, userSvc, blocks)
	if n, err := contactSvc.LoadBlocks(ctx); err != nil {
		logger.Fatal("Failed to load block list", zap.Error(err))
	} else {
		logger.Info("Block list loaded", zap.Int("relations", n))
	}

	callSvc := callService.NewService(callRepo, userRepo, userSvc)
	if n, err := callSvc.ReconcilePending(ctx); err != nil {
		logger.Warn("Failed to reconcile pending calls", zap.Error(err))
	} else if n > 0 {
		logger.Info("Pending calls closed as missed", zap.Int64("count", n))
	}

	if cfg.Push.Provider == "mock" && cfg.Server.Environment == "production" {
		logger.Fatal("PUSH_PROVIDER=mock is not allowed in production")
	}
	pushProvider, err := push.NewProvider(ctx, push.ProviderType(cfg.Push.Provider))
	if err != nil {
		logger.Fatal("Failed to initialize push provider", zap.Error(err))
	}
	pushSvc := push.NewService(pushProvider, pushTokenRepo)

	recorderOpts := []callService.RecorderOption{callService.WithMetrics(appMetrics)}
	if journal != nil {
		recorderOpts = append(recorderOpts, callService.WithJournal(journal))
	}
	recorder := callService.NewRecorder(callRepo, recorderOpts...)
	go recorder.Run(ctx)

	// 7. Signaling
	registry := presence.NewRegistry()
	router := signaling.NewRouter(registry,
		signaling.WithRingTimeout(cfg.Signaling.RingTimeout),
		signaling.WithBlockList(blocks),
	)
	hub := wsHandler.NewSignalingHub(router, registry,
		wsHandler.WithRecorder(recorder),
		wsHandler.WithNotifier(pushSvc),
		wsHandler.WithPresenceMirror(presenceRepo),
		wsHandler.WithProfiles(userSvc),
		wsHandler.WithMetrics(appMetrics),
		wsHandler.WithMaxConnections(cfg.Signaling.MaxConnections),
		wsHandler.WithSweepInterval(cfg.Signaling.SweepInterval),
		wsHandler.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	// 8. HTTP
	authHdlr := authHandler.NewHandler(authSvc)
	userHdlr := userHandler.NewHandler(userSvc)
	pushHdlr := pushHandler.NewHandler(pushSvc)
	callHdlr := callHandler.NewHandler(callSvc)
	contactHdlr := contactHandler.NewHandler(contactSvc)
	presenceHdlr := presenceHandler.NewHandler(presenceRepo, hub)

	engine := gin.New()
	engine.Use(middleware.HealthCheck(cfg.Server.ServiceName))
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.SecurityHeaders())
	engine.Use(middleware.CORSMiddleware(cfg.Server.AllowedOrigins))
	engine.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	engine.GET("/metrics", middleware.MetricsHandler(prometheus.DefaultGatherer))

	requireAuth := middleware.AuthMiddleware(jwtManager, authSvc)
	loginLimiter := middleware.NewRateLimiter(redisDB, "login", 20, time.Minute)

	v1 := engine.Group("/v1")
	{
		rest := v1.Group("")
		rest.Use(middleware.Timeout(constants.DefaultTimeout))

		rest.POST("/auth/google", loginLimiter.Middleware(), authHdlr.GoogleLogin)
		rest.POST("/auth/logout", requireAuth, authHdlr.Logout)

		users := rest.Group("/users", requireAuth)
		users.GET("/me", userHdlr.GetMe)
		users.POST("/me/ring-number", userHdlr.AssignRingNumber)
		users.GET("/ring/:ringNumber", userHdlr.LookupByRingNumber)
		users.POST("/me/push-tokens", pushHdlr.RegisterToken)

		contacts := rest.Group("/contacts", requireAuth)
		contacts.GET("/search", contactHdlr.Search)
		contacts.GET("", contactHdlr.List)
		contacts.POST("", contactHdlr.Add)
		contacts.PUT("/:contactId", contactHdlr.Update)
		contacts.DELETE("/:contactId", contactHdlr.Delete)
		contacts.PATCH("/:contactId/favorite", contactHdlr.ToggleFavorite)
		contacts.PATCH("/:contactId/block", contactHdlr.Block)

		rest.GET("/calls/history", requireAuth, callHdlr.GetCallHistory)
		rest.GET("/presence/online", requireAuth, presenceHdlr.GetOnlineUsers)

		v1.GET("/calls/ws/signaling", requireAuth, hub.ServeWS)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Signaling server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("signaling", "/v1/calls/ws/signaling"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	<-hubDone
	recorder.Stop()

	logger.Info("Server exited")
}
