package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"imgvault/internal/cache"
	"imgvault/internal/config"
	"imgvault/internal/middleware"
	"imgvault/internal/repository"
	"imgvault/internal/service"
	"imgvault/internal/storage"
	"imgvault/internal/transcode"
)

type HandlerSet struct {
	log           zerolog.Logger
	cfg           *config.AppConfig
	uploadService *service.UploadService
	serveService  *service.ServeService
	urls          *service.URLBuilder
	images        *repository.ImageRepository
	db            *pgxpool.Pool
	cache         *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cacheClient *redis.Client, store *storage.ObjectStore, transcoder transcode.Transcoder, cfg *config.AppConfig) HandlerSet {
	imageRepo := repository.NewImageRepository(db)
	invalidator := cache.NewInvalidator(cacheClient, log)
	coordinator := transcode.NewCoordinator(store, transcoder, cfg.Transcoder.MaxInputBytes, log)
	urls := service.NewURLBuilder(store, cfg.Transform.BaseURL)
	upload := service.NewUploadService(imageRepo, coordinator, invalidator, log)
	serve := service.NewServeService(imageRepo, store, urls, cfg.Transform.Timeout, invalidator, log)

	return HandlerSet{
		log:           log,
		cfg:           cfg,
		uploadService: upload,
		serveService:  serve,
		urls:          urls,
		images:        imageRepo,
		db:            db,
		cache:         cacheClient,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")

	public := v1.Group("/images")
	public.GET("/random", h.RandomImage)
	public.GET("/:id", h.GetImage)
	public.GET("/:id/meta", h.GetImageMeta)

	protected := v1.Group("/images")
	protected.Use(middleware.APIKey(h.cfg.Security.APIKeys))
	protected.POST("", h.UploadImage)
	protected.GET("", h.ListImages)
	protected.DELETE("/:id", h.DeleteImage)
}
