package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/remindly-app/remindly-api/api/swagger"
	"github.com/remindly-app/remindly-api/internal/handler"
	"github.com/remindly-app/remindly-api/internal/middleware"
	"github.com/remindly-app/remindly-api/internal/models"
	"github.com/remindly-app/remindly-api/internal/repository"
	"github.com/remindly-app/remindly-api/internal/service"
	"github.com/remindly-app/remindly-api/pkg/cache"
	"github.com/remindly-app/remindly-api/pkg/config"
	"github.com/remindly-app/remindly-api/pkg/database"
	"github.com/remindly-app/remindly-api/pkg/jobs"
	"github.com/remindly-app/remindly-api/pkg/logger"
	corsmiddleware "github.com/remindly-app/remindly-api/pkg/middleware/cors"
	reqidmiddleware "github.com/remindly-app/remindly-api/pkg/middleware/requestid"
)

// @title Remindly API
// @version 1.0.0
// @description Role-based reminder and task management service
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	reminderRepo := repository.NewReminderRepository(db)
	rescheduleRepo := repository.NewRescheduleRepository(db)
	notificationRepo := repository.NewNotificationRepository(redisClient, cfg.Notifications.MaxPerUser)

	policy := service.NewAccessPolicy()
	metricsSvc := service.NewMetricsService()

	var googleVerifier service.GoogleVerifier
	if cfg.Google.ClientID != "" {
		googleVerifier = service.NewTokenInfoVerifier(cfg.Google.ClientID)
	}

	authSvc := service.NewAuthService(userRepo, googleVerifier, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	reminderSvc := service.NewReminderService(reminderRepo, policy, validate, logr).WithMetrics(metricsSvc)
	rescheduleSvc := service.NewRescheduleService(rescheduleRepo, reminderRepo, policy, validate, logr)

	notificationSvc := service.NewNotificationService(notificationRepo, metricsSvc, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		MaxRetries: cfg.Notifications.WorkerRetries,
	}, logr)
	notificationSvc.Start(ctx)
	defer notificationSvc.Stop()
	rescheduleSvc.Subscribe(notificationSvc)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		exportSvc = service.NewExportService(reminderSvc, nil, nil, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	reminderHandler := handler.NewReminderHandler(reminderSvc, exportSvc)
	rescheduleHandler := handler.NewRescheduleHandler(rescheduleSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/google", authHandler.GoogleLogin)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	users := api.Group("/users", middleware.JWT(authSvc))
	{
		users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.SelfSentinel), userHandler.Get)
		users.PUT("/:id/role", middleware.RequireRoles(models.RoleAdmin), userHandler.UpdateRole)
		users.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)
	}

	reminders := api.Group("/reminders", middleware.JWT(authSvc))
	{
		reminders.GET("", reminderHandler.List)
		reminders.GET("/export", reminderHandler.Export)
		reminders.GET("/:id", reminderHandler.Get)
		reminders.POST("", middleware.Audit(userRepo, models.AuditActionReminderCreate, "reminders"), reminderHandler.Create)
		reminders.PUT("/:id", middleware.Audit(userRepo, models.AuditActionReminderUpdate, "reminders"), reminderHandler.Update)
		reminders.DELETE("/:id", middleware.Audit(userRepo, models.AuditActionReminderDelete, "reminders"), reminderHandler.Delete)
		reminders.PATCH("/:id/toggle", reminderHandler.Toggle)
	}

	reschedules := api.Group("/reschedule-requests", middleware.JWT(authSvc))
	{
		reschedules.POST("", middleware.RequireRoles(models.RoleStudent), rescheduleHandler.Submit)
		reschedules.GET("/mine", rescheduleHandler.ListMine)
		reschedules.GET("", middleware.RequireRoles(models.RoleAdmin), rescheduleHandler.ListAll)
		reschedules.PATCH("/:id/review",
			middleware.RequireRoles(models.RoleAdmin),
			middleware.Audit(userRepo, models.AuditActionRescheduleReview, "reschedule_requests"),
			rescheduleHandler.Review)
	}

	notifications := api.Group("/notifications", middleware.JWT(authSvc))
	{
		notifications.GET("", notificationHandler.List)
		notifications.POST("/read", notificationHandler.MarkAllRead)
	}

	api.GET("/metrics/snapshot", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
