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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/mehmetcc/hospital-equipment-service/docs"
	"github.com/mehmetcc/hospital-equipment-service/internal/account"
	"github.com/mehmetcc/hospital-equipment-service/internal/authentication"
	"github.com/mehmetcc/hospital-equipment-service/internal/password"
	"github.com/mehmetcc/hospital-equipment-service/internal/token"
	"github.com/mehmetcc/hospital-equipment-service/internal/utils"
)

// @title           Hospital Equipment Service API
// @version         1.0
// @description     Authentication, token lifecycle and account administration for the hospital equipment service.
//
// @host      localhost:8000
// @BasePath  /api/v1
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	// load config
	cfg, err := utils.LoadConfig(".env")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// init logger
	logger, err := utils.NewLogger(cfg.Log)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	// init database
	db, err := utils.InitDatabase(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to the database", zap.Error(err))
	}
	if err := db.AutoMigrate(&account.Account{}, &authentication.RefreshToken{}); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	//
	// WIRE UP SERVICES
	//
	hasher, err := password.NewHasher(cfg.Password.HasherConfig())
	if err != nil {
		logger.Fatal("invalid password hashing settings", zap.Error(err))
	}
	codec, err := token.NewCodec(cfg.Token.Secret, cfg.Token.Algorithm)
	if err != nil {
		logger.Fatal("invalid token settings", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := authentication.NewMetrics(registry)

	recordRepo := authentication.NewRefreshTokenRepository(db)
	accountRepo := account.NewAccountRepository(db)
	accountService := account.NewAccountService(accountRepo, hasher, recordRepo, logger)
	authService := authentication.NewAuthenticationService(
		accountService,
		recordRepo,
		codec,
		hasher,
		metrics,
		logger,
		cfg.Token.AccessTTL,
		cfg.Token.RefreshTTL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Bootstrap.Enabled() {
		fullName := cfg.Bootstrap.FullName
		created, err := accountService.EnsureAdmin(ctx, account.NewAccount{
			Username: cfg.Bootstrap.Username,
			Email:    cfg.Bootstrap.Email,
			Password: cfg.Bootstrap.Password,
			FullName: &fullName,
		})
		if err != nil {
			logger.Fatal("failed to bootstrap administrator", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap administrator created", zap.String("username", cfg.Bootstrap.Username))
		}
	}

	// init Gin router
	router := gin.New()
	router.Use(utils.RequestID(), utils.AccessLog(logger), gin.Recovery())

	//
	// SWAGGER (protected by Basic Auth, not JWT)
	//
	if cfg.Admin.Username != "" {
		swaggerGroup := router.Group("/swagger", gin.BasicAuth(gin.Accounts{
			cfg.Admin.Username: cfg.Admin.Password,
		}))
		swaggerGroup.GET("/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	loginLimiter := utils.NewLoginLimiter(cfg.RateLimit.LoginPerSecond)
	authentication.NewAuthHandler(api, authService, accountService, utils.RateLimit(loginLimiter), logger)

	adminGroup := api.Group("/")
	adminGroup.Use(
		authentication.AuthMiddleware(authService, logger),
		authentication.RoleMiddleware(logger, account.Admin),
	)
	account.NewAccountHandler(adminGroup, accountService, logger)

	//
	// START SERVER AND TOKEN REAPER
	//
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	reaper := authentication.NewReaper(recordRepo, cfg.Token.CleanupInterval, codec.Now, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return reaper.Run(gctx)
	})
	g.Go(func() error {
		// graceful shutdown
		<-gctx.Done()
		logger.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
