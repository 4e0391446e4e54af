package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "authcore/api/swagger" // swagger docs
	"authcore/internal/cache"
	"authcore/internal/config"
	"authcore/internal/database"
	"authcore/internal/handler"
	"authcore/internal/logger"
	"authcore/internal/metrics"
	"authcore/internal/middleware"
	"authcore/internal/repository"
	"authcore/internal/service"
	"authcore/internal/websocket"
	"authcore/pkg/jwt"
	"authcore/pkg/password"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           authcore API
// @version         1.0
// @description     Session and authorization engine: login, single active session per user, role to view permissions.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load("configs/.env")
	if err != nil {
		logrus.Fatalf("Configuration error: %v", err)
	}
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DSN(), database.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Info("Connected to PostgreSQL successfully.")

	m := metrics.New()

	var decisions service.DecisionCache
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, permission cache disabled")
		} else {
			defer func() { _ = rdb.Close() }()
			decisions = cache.NewPermissionCache(rdb, cfg.PermissionCacheTTL, log)
			log.WithField("addr", cfg.RedisAddr).Info("permission cache enabled")
		}
	}

	codec, err := jwt.NewCodec(cfg.SecretKey, cfg.Algorithm)
	if err != nil {
		log.Fatalf("Token codec: %v", err)
	}
	hasher := password.NewHasher(cfg.BcryptCost)

	wsHub := websocket.NewHub(m, log)
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	userRepo := repository.NewUserRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	viewRepo := repository.NewViewRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	statusRepo := repository.NewStatusRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	authService := service.NewAuthService(service.AuthDeps{
		Users:            userRepo,
		Tokens:           tokenRepo,
		Permissions:      permRepo,
		Audit:            auditRepo,
		Tx:               txManager,
		Codec:            codec,
		Hasher:           hasher,
		Notifier:         wsHub,
		Metrics:          m,
		Logger:           log,
		TokenTTL:         cfg.TokenTTL(),
		DisabledStatuses: cfg.DisabledStatuses,
	})
	resolver := service.NewPermissionResolver(permRepo, decisions, cfg.DisabledStatuses, m)
	guard := service.NewGuard(authService, resolver, m, log)

	adminDeps := service.AdminDeps{
		Users:       userRepo,
		Tokens:      tokenRepo,
		Roles:       roleRepo,
		Views:       viewRepo,
		Permissions: permRepo,
		Statuses:    statusRepo,
		Audit:       auditRepo,
		Tx:          txManager,
		Cache:       decisions,
		Notifier:    wsHub,
		Logger:      log,
	}
	roleService := service.NewRoleService(adminDeps)
	viewService := service.NewViewService(adminDeps)
	userService := service.NewUserService(adminDeps, hasher, m)
	auditService := service.NewAuditService(auditRepo)

	seedAdmin := service.SeedAdmin{Username: cfg.AdminUsername, Email: cfg.AdminEmail, Password: cfg.AdminPassword}
	if err := service.NewSeeder(adminDeps, hasher).Seed(ctx, handler.AdminViews(), seedAdmin); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	reaper, err := service.NewSessionReaper(tokenRepo, cfg.ReaperSchedule, m, log)
	if err != nil {
		log.Fatalf("Session reaper: %v", err)
	}
	reaper.Start()

	// Initialize Handlers
	gate := middleware.NewGate(guard)
	limiter := middleware.NewLoginLimiter(cfg.LoginRatePerMinute, cfg.LoginRateBurst)
	authHandler := handler.NewAuthHandler(authService, gate, limiter)
	userHandler := handler.NewUserHandler(userService, authService, gate)
	roleHandler := handler.NewRoleHandler(roleService, gate)
	viewHandler := handler.NewViewHandler(viewService, gate)
	auditHandler := handler.NewAuditHandler(auditService, gate)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), middleware.ErrorHandling(log))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, guard)
	})

	authHandler.RegisterRoutes(router.Group(""))
	userHandler.RegisterRoutes(router.Group(""))
	roleHandler.RegisterRoutes(router.Group(""))
	viewHandler.RegisterRoutes(router.Group(""))
	auditHandler.RegisterRoutes(router.Group(""))

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("Server listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown failed")
	}
	<-reaper.Stop().Done()
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
