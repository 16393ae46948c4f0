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
	"go.uber.org/zap"

	_ "github.com/teranga-edu/gesco-api/api/swagger"
	"github.com/teranga-edu/gesco-api/internal/handler"
	"github.com/teranga-edu/gesco-api/internal/middleware"
	"github.com/teranga-edu/gesco-api/internal/models"
	"github.com/teranga-edu/gesco-api/internal/repository"
	"github.com/teranga-edu/gesco-api/internal/service"
	"github.com/teranga-edu/gesco-api/pkg/cache"
	"github.com/teranga-edu/gesco-api/pkg/config"
	"github.com/teranga-edu/gesco-api/pkg/database"
	"github.com/teranga-edu/gesco-api/pkg/jobs"
	"github.com/teranga-edu/gesco-api/pkg/logger"
	corsmiddleware "github.com/teranga-edu/gesco-api/pkg/middleware/cors"
	reqidmiddleware "github.com/teranga-edu/gesco-api/pkg/middleware/requestid"
	"github.com/teranga-edu/gesco-api/pkg/storage"
)

// @title GESCO API
// @version 1.0.0
// @description School administration backend: students, classes, grades, report cards, rankings and roster imports.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var cacheRepo *repository.CacheRepository
	if cfg.Rankings.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, ranking cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	studentRepo := repository.NewStudentRepository(db)
	classRepo := repository.NewClassRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	userRepo := repository.NewUserRepository(db)

	validate := validator.New()

	matriculeSvc := service.NewMatriculeService(studentRepo, logr)

	var averageSvc *service.AverageService
	if cacheRepo != nil {
		averageSvc = service.NewAverageService(gradeRepo, studentRepo, cacheRepo, cfg.Rankings.CacheTTL, logr)
	} else {
		averageSvc = service.NewAverageService(gradeRepo, studentRepo, nil, cfg.Rankings.CacheTTL, logr)
	}
	reportSvc := service.NewReportService(studentRepo, averageSvc, logr)

	importSvc := service.NewImportService(studentRepo, classRepo, matriculeSvc, service.ImportDefaults{
		SchoolYear:         cfg.School.CurrentYear,
		ClassCapacity:      cfg.School.DefaultCapacity,
		PlaceholderTeacher: cfg.School.PlaceholderTeacher,
		Nationality:        cfg.School.DefaultNationality,
		PreviewSampleSize:  cfg.Imports.PreviewSampleSize,
	}, logr)

	studentSvc := service.NewStudentService(studentRepo, classRepo, gradeRepo, matriculeSvc, cfg.School.CurrentYear, validate, logr)
	classSvc := service.NewClassService(classRepo, studentRepo, service.ClassDefaults{
		SchoolYear:         cfg.School.CurrentYear,
		Capacity:           cfg.School.DefaultCapacity,
		PlaceholderTeacher: cfg.School.PlaceholderTeacher,
	}, validate, logr)
	var warmer *service.RankingWarmer
	if cacheRepo != nil {
		warmer = service.NewRankingWarmer(averageSvc, cfg.School.CurrentYear, jobs.RunnerConfig{Workers: 2}, logr)
		warmer.Start(context.Background())
		defer warmer.Stop()
	}

	var gradeSvc *service.GradeService
	if warmer != nil {
		gradeSvc = service.NewGradeService(gradeRepo, studentRepo, averageSvc, warmer, cfg.School.CurrentYear, validate, logr)
	} else {
		gradeSvc = service.NewGradeService(gradeRepo, studentRepo, averageSvc, nil, cfg.School.CurrentYear, validate, logr)
	}
	authSvc := service.NewAuthService(userRepo, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	}, validate, logr)
	metricsSvc := service.NewMetricsService()

	var archive *storage.Archive
	if cfg.Exports.ArchiveDir != "" {
		archive, err = storage.NewArchive(cfg.Exports.ArchiveDir)
		if err != nil {
			logr.Warn("export archive unavailable", zap.Error(err))
		} else if deleted, err := archive.CleanupOlderThan(cfg.Exports.ArchiveTTL); err != nil {
			logr.Warn("export archive cleanup failed", zap.Error(err))
		} else if len(deleted) > 0 {
			logr.Info("export archive cleaned", zap.Int("deleted", len(deleted)))
		}
	}

	var exportSvc *service.ExportService
	if archive != nil {
		exportSvc = service.NewExportService(reportSvc, averageSvc, classRepo, studentRepo, nil, nil, archive, logr)
	} else {
		exportSvc = service.NewExportService(reportSvc, averageSvc, classRepo, studentRepo, nil, nil, nil, logr)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	classHandler := handler.NewClassHandler(classSvc, studentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	reportHandler := handler.NewReportHandler(reportSvc, averageSvc, exportSvc, cfg.School.CurrentYear)
	importHandler := handler.NewImportHandler(importSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("", middleware.JWT(authSvc))
	protected.GET("/auth/profile", authHandler.Profile)

	students := protected.Group("/students")
	{
		students.GET("", studentHandler.List)
		students.POST("", studentHandler.Create)
		students.GET("/:id", studentHandler.Get)
		students.PUT("/:id", studentHandler.Update)
		students.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleDirector), studentHandler.Delete)
		students.GET("/:id/grades/completeness", gradeHandler.Completeness)
		students.GET("/:id/averages", reportHandler.OverallAverage)
		students.GET("/:id/averages/subject", reportHandler.SubjectAverage)
		students.GET("/:id/report", reportHandler.ReportCard)
		students.GET("/:id/report/pdf", reportHandler.ReportCardPDF)
	}

	classes := protected.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.POST("", classHandler.Create)
		classes.GET("/stats/levels", classHandler.LevelStats)
		classes.GET("/:id", classHandler.Get)
		classes.PUT("/:id", classHandler.Update)
		classes.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin, models.RoleDirector), classHandler.Delete)
		classes.GET("/:id/students", classHandler.Roster)
		classes.GET("/:id/demographics", classHandler.Demographics)
		classes.GET("/:id/ranking", reportHandler.Ranking)
		classes.GET("/:id/ranking/export", reportHandler.RankingExport)
		classes.GET("/:id/roster/export", reportHandler.RosterExport)
	}

	grades := protected.Group("/grades")
	{
		grades.GET("", gradeHandler.List)
		grades.POST("", gradeHandler.Create)
		grades.GET("/:id", gradeHandler.Get)
		grades.PUT("/:id", gradeHandler.Update)
		grades.DELETE("/:id", gradeHandler.Delete)
	}

	imports := protected.Group("/imports", middleware.RequireRoles(models.RoleAdmin, models.RoleDirector, models.RoleSecretary))
	{
		imports.GET("/template", importHandler.Template)
		imports.POST("/validate", importHandler.Validate)
		imports.POST("/preview", importHandler.Preview)
		imports.POST("", importHandler.Reconcile)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "school_year", cfg.School.CurrentYear)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
