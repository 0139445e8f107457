package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campus-suite/course-select-api/api/swagger"
	"github.com/campus-suite/course-select-api/internal/handler"
	"github.com/campus-suite/course-select-api/internal/middleware"
	"github.com/campus-suite/course-select-api/internal/models"
	"github.com/campus-suite/course-select-api/internal/repository"
	"github.com/campus-suite/course-select-api/internal/service"
	"github.com/campus-suite/course-select-api/pkg/cache"
	"github.com/campus-suite/course-select-api/pkg/config"
	"github.com/campus-suite/course-select-api/pkg/database"
	"github.com/campus-suite/course-select-api/pkg/jobs"
	"github.com/campus-suite/course-select-api/pkg/logger"
	corsmiddleware "github.com/campus-suite/course-select-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-suite/course-select-api/pkg/middleware/requestid"
)

// @title Course Select API
// @version 1.0.0
// @description Course selection and grading engine
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rankings cache disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	semesterRepo := repository.NewSemesterRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	instanceRepo := repository.NewCourseInstanceRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	// Services.
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Rankings.CacheTTL, logr, cfg.Rankings.CacheEnabled)
	authSvc := service.NewAuthService(service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	}, logr)
	enrollmentSvc := service.NewEnrollmentService(instanceRepo, scheduleRepo, studentRepo, semesterRepo, nil, logr)
	gradeSvc := service.NewGradeService(gradeRepo, instanceRepo, cacheSvc, nil, cfg.Rankings.CacheTTL, nil, logr)
	lifecycleSvc := service.NewLifecycleService(instanceRepo, gradeRepo, scheduleRepo, gradeSvc, nil, logr)

	// Background warm-up of ranking caches after grade publication.
	warmer := service.NewRankingsWarmer(gradeSvc, logr)
	warmupQueue := jobs.NewQueue("rankings-warmup", warmer.Handle, jobs.QueueConfig{
		Workers:    cfg.Rankings.WarmupConcurrency,
		MaxRetries: cfg.Rankings.WarmupRetries,
		Logger:     logr,
	})
	warmupQueue.Start(ctx)
	defer warmupQueue.Stop()
	gradeSvc.AttachQueue(warmupQueue)

	// Handlers.
	courseHandler := handler.NewCourseHandler(enrollmentSvc, lifecycleSvc)
	selectionHandler := handler.NewSelectionHandler(enrollmentSvc, lifecycleSvc, metricsSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc, lifecycleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	courses := api.Group("/courses")
	{
		courses.GET("/available", middleware.RequireRoles(models.RoleStudent), courseHandler.ListAvailable)
		courses.GET("/teaching", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), courseHandler.ListTeaching)
		courses.GET("/:id", courseHandler.Get)
		courses.GET("/:id/roster", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), courseHandler.Roster)
		courses.PUT("/:id/schedules", middleware.RequireRoles(models.RoleAdmin), courseHandler.ReplaceSchedules)

		courses.POST("/:id/enroll", middleware.RequireRoles(models.RoleStudent), selectionHandler.Enroll)
		courses.DELETE("/:id/enroll", middleware.RequireRoles(models.RoleStudent), selectionHandler.Drop)
		courses.POST("/:id/selection/start", middleware.RequireRoles(models.RoleAdmin), selectionHandler.StartSelection)
		courses.POST("/:id/selection/finalize", middleware.RequireRoles(models.RoleAdmin), selectionHandler.FinalizeSelection)

		courses.GET("/:id/grades", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradeHandler.Sheet)
		courses.PUT("/:id/grades", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradeHandler.Set)
		courses.POST("/:id/grades/bulk", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradeHandler.BulkSet)
		courses.PATCH("/:id/grade-weights", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradeHandler.SetWeights)
		courses.POST("/:id/grades/publish", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradeHandler.Publish)
		courses.POST("/:id/grades/withdraw", middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin), gradeHandler.Withdraw)
	}

	me := api.Group("/me")
	{
		me.GET("/courses", middleware.RequireRoles(models.RoleStudent), selectionHandler.MyCourses)
		me.GET("/grades", middleware.RequireRoles(models.RoleStudent), gradeHandler.MyGrades)
		me.GET("/rankings", middleware.RequireRoles(models.RoleStudent), gradeHandler.MyRankings)
	}

	api.GET("/system/metrics", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Snapshot)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
