package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/edustack/campus-api/api/swagger"
	"github.com/edustack/campus-api/internal/authz"
	"github.com/edustack/campus-api/internal/handler"
	"github.com/edustack/campus-api/internal/middleware"
	"github.com/edustack/campus-api/internal/repository"
	"github.com/edustack/campus-api/internal/service"
	"github.com/edustack/campus-api/pkg/cache"
	"github.com/edustack/campus-api/pkg/config"
	"github.com/edustack/campus-api/pkg/database"
	"github.com/edustack/campus-api/pkg/export"
	"github.com/edustack/campus-api/pkg/logger"
	"github.com/edustack/campus-api/pkg/middleware/cors"
	"github.com/edustack/campus-api/pkg/middleware/requestid"
	"github.com/edustack/campus-api/pkg/storage"
)

// @title Campus API
// @version 1.0
// @description Role-scoped course, assignment and submission management for a university.
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("load config: %v", err))
	}

	log, err := logger.New(cfg)
	if err != nil {
		panic(fmt.Sprintf("init logger: %v", err))
	}
	defer log.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Catalog.CacheEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			log.Warn("redis unavailable, catalog cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	store, err := storage.NewLocalStorage(cfg.Submissions.StorageDir)
	if err != nil {
		log.Fatal("init submission storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Submissions.SignedURLSecret, cfg.Submissions.SignedURLTTL)

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, log)

	policy := authz.New(courseRepo, enrollmentRepo)
	metrics := service.NewMetricsService(policy)

	authSvc := service.NewAuthService(userRepo, validate, log, cfg.Auth)
	userSvc := service.NewUserService(userRepo, authSvc, policy, validate, log)
	departmentSvc := service.NewDepartmentService(departmentRepo, policy, validate, log)
	courseSvc := service.NewCourseService(courseRepo, departmentRepo, userRepo, policy, cacheRepo, metrics, validate, log, cfg.Catalog)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, userRepo, userRepo, policy, validate, log)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, policy, validate, log)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, userRepo, policy, store, signer, validate, log, cfg.Submissions)
	exportSvc := service.NewExportService(submissionRepo, courseRepo, policy, export.NewCSVExporter(), export.NewPDFExporter(), log)

	router := buildRouter(cfg, log, metrics, routerDeps{
		auth:        handler.NewAuthHandler(authSvc),
		users:       handler.NewUserHandler(userSvc),
		departments: handler.NewDepartmentHandler(departmentSvc),
		courses:     handler.NewCourseHandler(courseSvc),
		enrollments: handler.NewEnrollmentHandler(enrollmentSvc),
		assignments: handler.NewAssignmentHandler(assignmentSvc),
		submissions: handler.NewSubmissionHandler(submissionSvc, log, cfg.Submissions.MaxFileSizeBytes),
		exports:     handler.NewExportHandler(exportSvc),
		metrics:     handler.NewMetricsHandler(metrics),
		sessions:    authSvc,
		ready: func(ctx context.Context) error {
			return db.PingContext(ctx)
		},
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", zap.Int("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown incomplete", zap.Error(err))
	}
}

type routerDeps struct {
	auth        *handler.AuthHandler
	users       *handler.UserHandler
	departments *handler.DepartmentHandler
	courses     *handler.CourseHandler
	enrollments *handler.EnrollmentHandler
	assignments *handler.AssignmentHandler
	submissions *handler.SubmissionHandler
	exports     *handler.ExportHandler
	metrics     *handler.MetricsHandler
	sessions    *service.AuthService
	ready       func(ctx context.Context) error
}

func buildRouter(cfg *config.Config, log *zap.Logger, metrics *service.MetricsService, deps routerDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestid.Middleware(),
		logger.GinMiddleware(log),
		cors.New(cfg.CORS.AllowedOrigins),
		middleware.Metrics(metrics),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := deps.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))
	if cfg.Env != config.EnvProduction {
		router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := router.Group(cfg.APIPrefix)

	api.POST("/auth/login", deps.auth.Login)
	api.POST("/auth/signup", deps.auth.Signup)

	// Signed token downloads carry their own credential.
	api.GET("/submissions/download", deps.submissions.Download)

	authed := api.Group("", middleware.Auth(deps.sessions))
	{
		authed.GET("/auth/me", deps.auth.Me)
		authed.GET("/metrics/snapshot", deps.metrics.Snapshot)

		authed.GET("/users", deps.users.List)
		authed.POST("/users", deps.users.Create)
		authed.GET("/users/:id", deps.users.Get)
		authed.PUT("/users/:id", deps.users.Update)
		authed.PUT("/users/:id/role", deps.users.ChangeRole)
		authed.DELETE("/users/:id", deps.users.Delete)

		authed.GET("/departments", deps.departments.List)
		authed.POST("/departments", deps.departments.Create)
		authed.GET("/departments/:id", deps.departments.Get)
		authed.PUT("/departments/:id", deps.departments.Update)
		authed.DELETE("/departments/:id", deps.departments.Delete)

		authed.GET("/courses", deps.courses.List)
		authed.POST("/courses", deps.courses.Create)
		authed.GET("/courses/:id", deps.courses.Get)
		authed.PUT("/courses/:id", deps.courses.Update)
		authed.DELETE("/courses/:id", deps.courses.Delete)
		authed.GET("/courses/:id/instructors", deps.courses.ListInstructors)
		authed.POST("/courses/:id/instructors", deps.courses.AssignInstructor)
		authed.DELETE("/courses/:id/instructors/:instructorId", deps.courses.UnassignInstructor)
		authed.GET("/courses/:id/grade-report", deps.exports.GradeReport)

		authed.GET("/enrollments", deps.enrollments.List)
		authed.POST("/enrollments", deps.enrollments.Enroll)
		authed.PUT("/enrollments/:id/status", deps.enrollments.UpdateStatus)
		authed.PUT("/enrollments/:id/final-grade", deps.enrollments.SetFinalGrade)

		authed.GET("/assignments", deps.assignments.List)
		authed.POST("/assignments", deps.assignments.Create)
		authed.GET("/assignments/:id", deps.assignments.Get)
		authed.PUT("/assignments/:id", deps.assignments.Update)
		authed.POST("/assignments/:id/publish", deps.assignments.Publish)
		authed.DELETE("/assignments/:id", deps.assignments.Delete)

		authed.GET("/submissions", deps.submissions.List)
		authed.POST("/submissions", deps.submissions.Submit)
		authed.GET("/submissions/:id", deps.submissions.Get)
		authed.PUT("/submissions/:id/grade", deps.submissions.Grade)
		authed.GET("/submissions/:id/download-url", deps.submissions.DownloadURL)
	}

	return router
}
