package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/kps-school/kps-api/api/swagger"
	"github.com/kps-school/kps-api/internal/handler"
	"github.com/kps-school/kps-api/internal/middleware"
	"github.com/kps-school/kps-api/internal/models"
	"github.com/kps-school/kps-api/internal/realtime"
	"github.com/kps-school/kps-api/internal/repository"
	"github.com/kps-school/kps-api/internal/service"
	"github.com/kps-school/kps-api/pkg/cache"
	"github.com/kps-school/kps-api/pkg/config"
	"github.com/kps-school/kps-api/pkg/database"
	"github.com/kps-school/kps-api/pkg/logger"
	corsmiddleware "github.com/kps-school/kps-api/pkg/middleware/cors"
	reqidmiddleware "github.com/kps-school/kps-api/pkg/middleware/requestid"
)

// @title KPS School API
// @version 1.0.0
// @description Role-based school management backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	termRepo := repository.NewTermRepository(db)
	assessmentRepo := repository.NewAssessmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	behaviourRepo := repository.NewBehaviourRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(realtime.HubConfig{
			WriteTimeout:   cfg.Realtime.WriteTimeout,
			PingInterval:   cfg.Realtime.PingInterval,
			MaxConnPerUser: cfg.Realtime.MaxConnPerUser,
		}, logr)
	}

	metricsSvc := service.NewMetricsService(func() int {
		if hub == nil {
			return 0
		}
		return hub.SessionCount()
	})

	var publisher realtime.Publisher
	if hub != nil && cfg.Realtime.RedisFanout {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, falling back to local-only push delivery", "error", err)
		} else {
			fanout := realtime.NewRedisFanout(redisClient, hub, cfg.Realtime.ChannelPrefix, metricsSvc, logr)
			publisher = fanout
			go fanout.Run(context.Background())
		}
	}

	var broadcaster *realtime.Broadcaster
	if hub != nil {
		broadcaster = realtime.NewBroadcaster(hub, publisher, metricsSvc, logr)
	}

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "kps-api",
	})
	visibilitySvc := service.NewVisibilityService(studentRepo, logr)
	notifierSvc := service.NewNotifierService(studentRepo, notificationRepo, metricsSvc, cfg.Notifications.Enabled, logr)
	studentSvc := service.NewStudentService(studentRepo, userRepo, attendanceRepo, visibilitySvc, validate, logr)
	classSvc := service.NewClassService(classRepo, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, validate, logr)
	termSvc := service.NewTermService(termRepo, validate, logr)
	assessmentSvc := service.NewAssessmentService(assessmentRepo, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, assessmentRepo, notifierSvc, visibilitySvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, visibilitySvc, validate, logr)
	behaviourSvc := service.NewBehaviourService(behaviourRepo, studentRepo, notifierSvc, visibilitySvc, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	messageSvc := service.NewMessageService(messageRepo, userRepo, broadcaster, validate, logr)
	dashboardSvc := service.NewDashboardService(studentRepo, userRepo, classRepo, behaviourRepo, messageRepo, notificationRepo, logr)
	reportSvc := service.NewReportService(gradeRepo, studentRepo, termRepo, visibilitySvc, service.ReportConfig{
		DefaultFormat: cfg.Reports.DefaultFormat,
		MaxGradeRows:  cfg.Reports.MaxGradeRows,
	}, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	termHandler := handler.NewTermHandler(termSvc)
	assessmentHandler := handler.NewAssessmentHandler(assessmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	behaviourHandler := handler.NewBehaviourHandler(behaviourSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)
	messageHandler := handler.NewMessageHandler(messageSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	reportHandler := handler.NewReportHandler(reportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	if hub != nil {
		wsHandler := handler.NewWSHandler(authSvc, hub, messageRepo, broadcaster, func(*http.Request) bool { return true }, logr)
		api.GET("/ws/notifications", wsHandler.Serve)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	staffOnly := middleware.RBAC(models.RoleAdmin, models.RoleTeacher)
	adminOnly := middleware.RBAC(models.RoleAdmin)

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.POST("", staffOnly, studentHandler.Create)
		students.GET("/:id", studentHandler.Get)
		students.PUT("/:id", staffOnly, studentHandler.Update)
		students.GET("/:id/attendance", studentHandler.Attendance)
		students.POST("/:id/guardians", adminOnly, studentHandler.AddGuardian)
		students.DELETE("/:id/guardians/:userId", adminOnly, studentHandler.RemoveGuardian)
		if cfg.Reports.Enabled {
			students.GET("/:id/reports/:termId", reportHandler.TermReport)
		}
	}

	classes := protected.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.POST("", adminOnly, classHandler.Create)
		classes.GET("/:id", classHandler.Get)
		classes.GET("/:id/subjects", classHandler.Subjects)
		classes.POST("/:id/subjects", adminOnly, classHandler.AssignSubject)
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", subjectHandler.List)
		subjects.POST("", adminOnly, subjectHandler.Create)
	}

	protected.GET("/academic-years", termHandler.ListYears)
	protected.POST("/academic-years", adminOnly, termHandler.CreateYear)
	protected.GET("/terms", termHandler.ListTerms)
	protected.POST("/terms", adminOnly, termHandler.CreateTerm)

	assessments := protected.Group("/assessments")
	{
		assessments.GET("", assessmentHandler.List)
		assessments.POST("", staffOnly, assessmentHandler.Create)
		assessments.GET("/:id", assessmentHandler.Get)
	}

	grades := protected.Group("/grades")
	{
		grades.GET("", gradeHandler.List)
		grades.POST("", staffOnly, gradeHandler.Create)
		grades.GET("/:id", gradeHandler.Get)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.GET("", attendanceHandler.List)
		attendance.POST("", staffOnly, attendanceHandler.Record)
	}

	incidents := protected.Group("/incidents")
	{
		incidents.GET("", behaviourHandler.List)
		incidents.POST("", staffOnly, behaviourHandler.Report)
		incidents.GET("/:id", behaviourHandler.Get)
	}

	notifications := protected.Group("/notifications")
	{
		notifications.GET("", notificationHandler.List)
		notifications.GET("/unread-count", notificationHandler.UnreadCount)
		notifications.POST("/:id/read", notificationHandler.MarkRead)
	}

	threads := protected.Group("/threads")
	{
		threads.GET("", messageHandler.ListThreads)
		threads.POST("", messageHandler.CreateThread)
		threads.GET("/:id/messages", messageHandler.ListMessages)
		threads.POST("/:id/messages", messageHandler.PostMessage)
	}
	protected.GET("/messages/unread-count", messageHandler.UnreadCount)

	if cfg.Dashboard.Enabled {
		protected.GET("/dashboard", dashboardHandler.Get)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
