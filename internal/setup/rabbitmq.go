package setup

import (
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq"
	"go.uber.org/zap"
)

var MQClient *mq.RabbitMQClient

// InitRabbitMQ 初始化 RabbitMQ 客户端
// 未配置 URL 时返回 nil，活动事件发布将被跳过
func InitRabbitMQ(cfg *config.RabbitMQConfig) *mq.RabbitMQClient {
	if cfg.URL == "" {
		logger.Info("RabbitMQ not configured, activity events disabled.")
		return nil
	}

	var err error
	MQClient, err = mq.NewRabbitMQClient(cfg.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	logger.Info("Connected to RabbitMQ successfully!")
	return MQClient
}

func CloseRabbitMQ() {
	if MQClient != nil {
		MQClient.Close()
		logger.Info("RabbitMQ connection closed.")
	}
}
