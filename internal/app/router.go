package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/gliding-club-api/internal/handler"
	"github.com/noah-isme/gliding-club-api/internal/middleware"
	"github.com/noah-isme/gliding-club-api/internal/models"
	"github.com/noah-isme/gliding-club-api/pkg/config"
	"github.com/noah-isme/gliding-club-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gliding-club-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gliding-club-api/pkg/middleware/requestid"
)

// Router builds the gin engine with every API route mounted under the
// configured prefix.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	svc := a.Services

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(corsmiddleware.Policy{AllowedOrigins: cfg.CORS.AllowedOrigins}))
	r.Use(middleware.Metrics(svc.Metrics))
	r.Use(middleware.WithResponseMeta())

	var social handler.SocialLogin
	if svc.Social != nil {
		social = svc.Social
	}
	authHandler := handler.NewAuthHandler(svc.Auth, social)
	metricsHandler := handler.NewMetricsHandler(svc.Metrics.Handler(), svc.Health)
	recordHandler := handler.NewTrainingRecordHandler(svc.Records)
	briefingHandler := handler.NewGroundBriefingHandler(svc.Briefings)
	exportHandler := handler.NewExportHandler(svc.Exports)
	dashboardHandler := handler.NewDashboardHandler(svc.Dashboards)
	profileHandler := handler.NewProfileHandler(svc.Profiles, cfg.Storage.MaxUploadBytes)
	catalogHandler := handler.NewCatalogHandler(svc.Catalog)
	userHandler := handler.NewUserHandler(svc.Users)
	auditHandler := handler.NewAuditHandler(svc.Audit)
	notificationHandler := handler.NewNotificationHandler(svc.Notifications)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.GET("/social", authHandler.SocialProviders)
	auth.GET("/social/:provider", authHandler.SocialBegin)
	auth.GET("/social/:provider/callback", authHandler.SocialCallback)

	// signed download links carry their own authorisation
	api.GET("/files/:token", profileHandler.Photo)

	secured := api.Group("")
	secured.Use(middleware.JWT(svc.Auth))
	secured.Use(middleware.PasswordChange(cfg.APIPrefix, svc.Auth))
	secured.Use(middleware.Audit(svc.Audit))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.GET("/auth/me", authHandler.Me)
	secured.POST("/auth/password", authHandler.ChangePassword)

	instructors := middleware.RequireRoles(models.UserTypeInstructor, models.UserTypeAdmin)
	students := middleware.RequireRoles(models.UserTypeStudent)
	admins := middleware.RequireRoles(models.UserTypeAdmin)
	// sign-off and flight history belong to the flying instructor, not admins
	signers := middleware.RequireRoles(models.UserTypeInstructor)

	secured.GET("/dashboard", dashboardHandler.Show)
	secured.GET("/dashboard/student", students, dashboardHandler.Student)
	secured.GET("/dashboard/instructor", instructors, dashboardHandler.Instructor)

	records := secured.Group("/training-records")
	records.GET("", recordHandler.List)
	records.POST("", recordHandler.Create)
	records.GET("/:id", recordHandler.Get)
	records.PUT("/:id", recordHandler.Update)
	records.POST("/:id/sign-off", signers, recordHandler.SignOff)
	records.PUT("/:id/review", signers, recordHandler.Review)

	briefings := secured.Group("/ground-briefings")
	briefings.GET("", briefingHandler.Mine)
	briefings.POST("", students, briefingHandler.Request)
	briefings.GET("/pending", instructors, briefingHandler.Pending)
	briefings.POST("/:id/sign-off", signers, briefingHandler.SignOff)

	studentRoutes := secured.Group("/students")
	studentRoutes.GET("", instructors, userHandler.Students)
	studentRoutes.GET("/:id/history", middleware.RBAC(string(models.UserTypeInstructor), string(models.UserTypeAdmin), middleware.RoleSelf), userHandler.History)
	studentRoutes.GET("/:id/ground-briefings", briefingHandler.Student)

	secured.GET("/export/:id/:format", exportHandler.Student)
	secured.GET("/instructor/flight-history", signers, exportHandler.FlightHistory)
	secured.GET("/instructor/flight-history/export", signers, exportHandler.ExportFlightHistory)

	secured.GET("/profile", profileHandler.Get)
	secured.PUT("/profile", profileHandler.Update)

	secured.GET("/gliders", catalogHandler.Gliders)
	secured.GET("/training-topics", catalogHandler.Topics)
	secured.GET("/exercises", catalogHandler.Exercises)
	secured.GET("/ground-briefing-topics", catalogHandler.BriefingTopics)

	admin := secured.Group("", admins)
	admin.PUT("/gliders", catalogHandler.SaveGlider)
	admin.PUT("/training-topics", catalogHandler.SaveTopic)
	admin.PUT("/exercises", catalogHandler.SaveExercise)
	admin.POST("/catalog/import", catalogHandler.Import)
	admin.POST("/ground-briefing-topics/import", catalogHandler.ImportBriefingTopics)

	admin.GET("/users", userHandler.List)
	admin.POST("/users", userHandler.Create)
	admin.GET("/users/:id", userHandler.Get)
	admin.PATCH("/users/:id", userHandler.Update)

	admin.GET("/admin/audit-logs", auditHandler.List)
	admin.POST("/admin/notifications/weekly-digest", notificationHandler.WeeklyDigest)

	return r
}
