package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq/worker"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/qiyihan/go-linkhub/internal/router"
	"github.com/qiyihan/go-linkhub/internal/setup"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
}

// NewServer 负责构建所有依赖
func NewServer(ctx context.Context, cfg *config.Config) *Server {
	// 初始化数据库连接（含 AutoMigrate）
	setup.InitMySQL(&cfg.MySQL)

	// 初始化 Redis 连接
	setup.InitRedis(ctx, cfg)

	// 初始化对象存储
	storageService := setup.InitStorage(cfg)

	// 初始化 RabbitMQ（未配置则禁用活动事件）
	mqClient := setup.InitRabbitMQ(&cfg.RabbitMQ)

	// 初始化 Elasticsearch（未启用则链接搜索走数据库）
	esClient := setup.InitElasticsearchClient(&cfg.Elasticsearch)

	// 启动所有后台 Worker
	activityRepo := repositories.NewActivityRepository(setup.DB)
	worker.StartAllWorkers(mqClient, activityRepo)

	// 初始化 Gin 引擎和注册路由
	// 将所有依赖传入 RouterConfig
	routerCfg := router.NewRouterConfig(setup.DB, setup.RedisClientGlobal, storageService, mqClient, esClient, cfg)
	engine := router.InitRouter(routerCfg)

	addr := ":" + cfg.Server.Port
	logger.Info(fmt.Sprintf("Server is running on %s", addr))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	return &Server{
		router:     engine,
		httpServer: httpServer,
	}
}

// Run 启动服务器并处理优雅关机
func (s *Server) Run(stopChan chan os.Signal) {
	// 确保在应用关闭时，所有连接都被释放
	defer setup.CloseMySQLDB()
	defer setup.CloseRedis()
	defer setup.CloseRabbitMQ()

	// 启动 HTTP 服务器
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// 等待停止信号
	<-stopChan
	logger.Info("Shutting down server...")

	// 优雅关机
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}
