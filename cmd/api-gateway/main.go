package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/cutreview-api/api/swagger"
	"github.com/noah-isme/cutreview-api/internal/handler"
	internalmiddleware "github.com/noah-isme/cutreview-api/internal/middleware"
	"github.com/noah-isme/cutreview-api/internal/repository"
	"github.com/noah-isme/cutreview-api/internal/service"
	"github.com/noah-isme/cutreview-api/pkg/cache"
	"github.com/noah-isme/cutreview-api/pkg/config"
	"github.com/noah-isme/cutreview-api/pkg/database"
	"github.com/noah-isme/cutreview-api/pkg/imagehost"
	"github.com/noah-isme/cutreview-api/pkg/jobs"
	"github.com/noah-isme/cutreview-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cutreview-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cutreview-api/pkg/middleware/requestid"
	"github.com/noah-isme/cutreview-api/pkg/proof"
)

// @title CutReview API
// @version 0.1.0
// @description Review and revision rounds for video and image deliverables
// @BasePath /api/v1
// @schemes http https
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close() //nolint:errcheck

	host, err := imagehost.New(cfg.ImageHost)
	if err != nil {
		logr.Fatal("failed to init image host", zap.Error(err), zap.String("driver", cfg.ImageHost.Driver))
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	projectRepo := repository.NewProjectRepository(db)
	trackRepo := repository.NewTrackRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)
	proofRepo := repository.NewProofRepository(redisClient)

	images := service.NewImagePipeline(host, service.ImagePipelineConfig{
		MaxFileSize:  cfg.ImageHost.MaxFileSizeBytes,
		AllowedMIMEs: cfg.ImageHost.AllowedMIMEs,
		MaxPerItem:   cfg.ImageHost.MaxImagesPerItem,
	}, metricsSvc, logr)

	viewCache := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)
	invalidation := service.NewInvalidationService(viewCache, jobs.Config{
		Workers:    cfg.Invalidation.Workers,
		MaxRetries: cfg.Invalidation.MaxRetries,
		RetryDelay: cfg.Invalidation.RetryDelay,
		Logger:     logr,
	}, metricsSvc, logr)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	invalidation.Start(rootCtx)
	defer invalidation.Stop()

	guard := service.NewAccessGuard(projectRepo)
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	trackSvc := service.NewTrackService(trackRepo, projectRepo, guard, images, validate, logr,
		service.WithTrackViewCache(viewCache),
		service.WithTrackChangeNotifier(invalidation),
		service.WithTrackMetrics(metricsSvc),
	)
	commentSvc := service.NewCommentService(commentRepo, trackRepo, images, invalidation, validate, logr)
	gate := service.NewPasswordGate(projectRepo, guard, proof.NewSigner(cfg.Gate.ProofSecret, cfg.Gate.ProofTTL), proofRepo, logr)
	exportSvc := service.NewExportService(trackRepo, guard, logr)

	authHandler := handler.NewAuthHandler(guard)
	projectHandler := handler.NewProjectHandler(trackSvc, gate, handler.AccessCookieConfig{
		Prefix: cfg.Gate.CookiePrefix,
		Secure: cfg.Gate.SecureCookie,
	})
	uploadLimits := handler.UploadLimits{MaxFileSize: cfg.ImageHost.MaxFileSizeBytes}
	trackHandler := handler.NewTrackHandler(trackSvc, exportSvc, uploadLimits)
	commentHandler := handler.NewCommentHandler(commentSvc, uploadLimits)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	r := gin.New()
	r.MaxMultipartMemory = cfg.ImageHost.MaxRequestBytes
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}
	if local, ok := host.(*imagehost.LocalHost); ok {
		r.Static("/uploads", local.Dir())
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.UUIDParams("id", "trackId", "commentId"))
	bodyLimit := internalmiddleware.BodyLimit(cfg.ImageHost.MaxRequestBytes)

	editor := api.Group("")
	editor.Use(internalmiddleware.JWT(authSvc))
	{
		bounded := editor.Group("", bodyLimit)
		bounded.GET("/auth/me", authHandler.Me)
		bounded.POST("/projects", projectHandler.Create)
		bounded.PUT("/projects/:id/password", projectHandler.SetPassword)
		bounded.GET("/projects/:id/tracks", projectHandler.ListTracks)
		bounded.POST("/tracks/:trackId/deliver", trackHandler.Deliver)
		bounded.PATCH("/tracks/:trackId/steps/:index/status", trackHandler.SetStepStatus)
		bounded.PUT("/tracks/:trackId/steps", trackHandler.Restructure)
		bounded.GET("/tracks/:trackId/export", trackHandler.Export)

		editor.POST("/tracks/:trackId/steps/content",
			internalmiddleware.BodyLimit(cfg.ImageHost.MaxBulkRequestBytes), trackHandler.UpdateContent)
	}

	api.POST("/projects/:id/verify-password", bodyLimit, internalmiddleware.OptionalJWT(authSvc), projectHandler.VerifyPassword)

	review := api.Group("/projects/:id/tracks/:trackId")
	review.Use(bodyLimit, internalmiddleware.OptionalJWT(authSvc), internalmiddleware.ProjectGate(gate, guard, cfg.Gate.CookiePrefix))
	{
		review.GET("", trackHandler.Get)
		review.GET("/comments", commentHandler.List)
		review.POST("/comments", commentHandler.Create)
		review.PATCH("/comments/:commentId", commentHandler.Update)
		review.DELETE("/comments/:commentId", commentHandler.Delete)
		review.POST("/request-revisions", trackHandler.RequestRevisions)
		review.POST("/approve", trackHandler.Approve)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "image_host", cfg.ImageHost.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
