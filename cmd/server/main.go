// Package main runs the event platform HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/secure-events/backend/config"
	"github.com/secure-events/backend/internal/auth"
	"github.com/secure-events/backend/internal/certificates"
	"github.com/secure-events/backend/internal/middleware"
	"github.com/secure-events/backend/internal/registrations"
	"github.com/secure-events/backend/internal/sessions"
	"github.com/secure-events/backend/internal/worker"
	"github.com/secure-events/backend/pkg/database"
	"github.com/secure-events/backend/pkg/queue"
	"github.com/secure-events/backend/pkg/redis"
	"github.com/secure-events/backend/pkg/response"
	"github.com/secure-events/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			CertificatesBucket:   cfg.AWS.CertificatesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	signer, err := certificates.LoadSigner(cfg.Signing.KeyFile)
	if err != nil {
		logger.Fatal("signing key", zap.Error(err))
	}

	// Auth: accounts, pending two-step handles, lockout and replay state.
	lockoutPolicy := auth.LockoutPolicy{
		MaxFailures: cfg.Auth.MaxFailures,
		Window:      cfg.Auth.FailureWindow,
		Cooldown:    cfg.Auth.LockoutCooldown,
	}
	accountRepo := auth.NewRepository(pool)
	pendingStore := auth.NewRedisPendingStore(rdb.Client)
	lockoutStore := auth.NewRedisLockoutStore(rdb.Client, lockoutPolicy)
	authService := auth.NewService(accountRepo, pendingStore, lockoutStore, lockoutStore, cfg.Auth, logger)

	// Sessions
	sessionStore := sessions.NewPostgresStore(pool, cfg.Auth.SessionTTL)
	authHandler := auth.NewHandler(authService, sessionStore, logger)

	// Registrations
	registrationRepo := registrations.NewPostgresRepository(pool)
	registrationHandler := registrations.NewHandler(registrationRepo, logger)

	// Certificates
	jobQueue := queue.NewQueue(rdb.Client, logger)
	certRepo := certificates.NewPostgresRepository(pool)
	var artifacts certificates.ArtifactQueue
	if s3Client != nil {
		artifacts = jobQueue
	}
	certEngine := certificates.NewEngine(certRepo, registrationRepo, signer, artifacts, cfg.Signing.VerifyBaseURL, logger)
	certHandler := certificates.NewHandler(certEngine, logger)
	artifactProcessor := worker.NewArtifactProcessor(certRepo, s3Client, jobQueue, logger)

	// Session cleanup
	janitor := worker.NewJanitor(sessionStore, time.Hour, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/verify-totp", authHandler.VerifyTOTP)
	}

	// Public certificate verification: anyone holding a certificate ID can
	// check authenticity without credentials.
	router.GET("/certificates/:id/verify", certHandler.Verify)

	// Protected API (session token required)
	api := router.Group("")
	api.Use(middleware.Session(sessionStore))
	{
		api.POST("/auth/logout", authHandler.Logout)

		// Users (admin only)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Registrations: attendance is recorded by event staff.
		api.POST("/registrations/:id/attendance", middleware.RequireRole("organizer", "admin"), registrationHandler.MarkAttendance)

		// Certificates
		api.POST("/registrations/:id/certificate", middleware.RequireRole("organizer", "admin"), certHandler.Generate)
		api.GET("/my-certificates", certHandler.Mine)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background workers (QR artifact rendering, session cleanup)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go artifactProcessor.Run(workerCtx)
		logger.Info("artifact worker started")
	}
	go janitor.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
