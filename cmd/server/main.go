package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"go.uber.org/zap"
)

// @title go-linkhub API
// @version 1.0
// @description 基于链接的文件分享服务，提供链接级的过期、限次、验证与范围控制
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// 加载配置
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	//初始化日志系统
	if err := os.MkdirAll("logs", 0755); err != nil {
		logger.Fatal("Failed to create logs directory", zap.Error(err))
	}
	logger.InitLogger(cfg.Log.OutputPath, cfg.Log.ErrorPath, cfg.Log.Level)
	defer logger.Sync() // 确保在应用退出时刷新所有缓冲的日志条目

	server := NewServer(context.Background(), cfg)

	// 等待 SIGINT/SIGTERM，优雅关机
	stopChan := make(chan os.Signal, 1)
	signal.Notify(stopChan, syscall.SIGINT, syscall.SIGTERM)

	server.Run(stopChan)
}
