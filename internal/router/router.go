package router

import (
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	_ "github.com/qiyihan/go-linkhub/docs"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/handlers"
	"github.com/qiyihan/go-linkhub/internal/middlewares"
	"github.com/qiyihan/go-linkhub/internal/pkg/cache"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq"
	"github.com/qiyihan/go-linkhub/internal/pkg/storage"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/qiyihan/go-linkhub/internal/services/admin"
	"github.com/qiyihan/go-linkhub/internal/services/explorer"
	"github.com/qiyihan/go-linkhub/internal/services/link"
	"github.com/qiyihan/go-linkhub/internal/services/search"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// RouterConfig 包含初始化路由所需的所有依赖
type RouterConfig struct {
	db             *gorm.DB
	redisClient    *redis.Client
	storageService storage.StorageService
	mqClient       *mq.RabbitMQClient    // 可为 nil
	esClient       *elasticsearch.Client // 可为 nil
	cfg            *config.Config
}

func NewRouterConfig(
	db *gorm.DB,
	redisClient *redis.Client,
	storageService storage.StorageService,
	mqClient *mq.RabbitMQClient,
	esClient *elasticsearch.Client,
	cfg *config.Config,
) *RouterConfig {
	return &RouterConfig{
		db:             db,
		redisClient:    redisClient,
		storageService: storageService,
		mqClient:       mqClient,
		esClient:       esClient,
		cfg:            cfg,
	}
}

func InitRouter(routerCfg *RouterConfig) *gin.Engine {
	router := gin.Default() // 使用默认的 Gin 引擎，包含 Logger 和 Recovery 中间件

	// Health Check 路由
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 仓储与服务装配
	cacheService := cache.NewRedisCache(routerCfg.redisClient)
	userRepo := repositories.NewUserRepository(routerCfg.db)
	fileRepo := repositories.NewFileRepository(routerCfg.db, cacheService)
	linkRepo := repositories.NewLinkRepository(routerCfg.db, routerCfg.cfg.Link.CommitRetries)
	activityRepo := repositories.NewActivityRepository(routerCfg.db)

	var indexer search.LinkIndexer
	if routerCfg.esClient != nil {
		indexer = search.NewESLinkIndexer(routerCfg.esClient)
	}

	authService := admin.NewAuthService(userRepo, routerCfg.cfg)
	userService := admin.NewUserService(userRepo, activityRepo)
	fileService := explorer.NewFileService(fileRepo, routerCfg.storageService, routerCfg.cfg, routerCfg.mqClient)
	linkService := link.NewLinkService(linkRepo, fileRepo, userRepo, routerCfg.mqClient, indexer)
	evaluator := link.NewAccessEvaluator(linkRepo)

	authHandler := handlers.NewAuthHandler(authService)
	userHandler := handlers.NewUserHandler(userService)
	fileHandler := handlers.NewFileHandler(fileService)
	linkHandler := handlers.NewLinkHandler(linkService, routerCfg.cfg)
	accessHandler := handlers.NewLinkAccessHandler(evaluator, routerCfg.storageService, routerCfg.cfg)

	v1 := router.Group("/api/v1")
	{
		// 认证相关路由 (无需认证)
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		// 公开链接访问端点：匿名可达，带 Token 则识别身份
		// 是否要求登录由访问裁决按链接范围决定
		accessGroup := v1.Group("/links")
		accessGroup.Use(middlewares.OptionalAuthMiddleware(routerCfg.cfg))
		{
			accessGroup.GET("/access/:link_id", accessHandler.Info)
			accessGroup.GET("/view/:link_id", accessHandler.View)
			accessGroup.GET("/download/:link_id", accessHandler.Download)
		}

		// 需要认证的路由组
		authenticated := v1.Group("/")
		authenticated.Use(middlewares.AuthMiddleware(routerCfg.cfg))

		// 用户相关路由
		userGroup := authenticated.Group("/users")
		{
			userGroup.GET("", userHandler.ListUsers)
			userGroup.GET("/me", userHandler.GetProfile)
			userGroup.GET("/me/activities", userHandler.GetActivities)
		}

		// 文件相关路由
		fileGroup := authenticated.Group("/files")
		{
			fileGroup.GET("", fileHandler.List)
			fileGroup.POST("/upload", fileHandler.Upload)
			fileGroup.GET("/:file_id/download", fileHandler.Download)
			fileGroup.DELETE("/:file_id", fileHandler.Delete)
		}

		// 链接管理路由
		linkGroup := authenticated.Group("/links")
		{
			linkGroup.POST("", linkHandler.Create)
			linkGroup.GET("", linkHandler.List)
			linkGroup.GET("/recent", linkHandler.Recent)
			linkGroup.GET("/:id", linkHandler.Get)
			linkGroup.PUT("/:id", linkHandler.Update)
			linkGroup.DELETE("/:id", linkHandler.Delete)
			linkGroup.PATCH("/:id/toggle", linkHandler.ToggleActive)
			linkGroup.PATCH("/:id/favorite", linkHandler.ToggleFavorite)
			linkGroup.GET("/:id/logs", linkHandler.AccessLogs)
			linkGroup.GET("/:id/logs/export", linkHandler.ExportLogs)

			// 管理端：仅超级管理员可见全量链接
			linkGroup.GET("/admin/all", middlewares.RequireSuperuser(), linkHandler.AdminList)
		}
	}

	return router
}
