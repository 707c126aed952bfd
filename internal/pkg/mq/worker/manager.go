package worker

import (
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq"
	"github.com/qiyihan/go-linkhub/internal/repositories"
)

// StartAllWorkers 启动应用中所有定义的后台 Worker
func StartAllWorkers(
	mqClient *mq.RabbitMQClient,
	activityRepo repositories.ActivityRepository,
) {
	if mqClient == nil {
		logger.Info("消息队列未启用，跳过后台工作进程。")
		return
	}

	// --- 启动用户活动日志 Worker ---
	activityWorker := NewActivityWorker(mqClient, activityRepo)
	go activityWorker.Start()

	// --- 在这里启动其他 Worker ---

	logger.Info("所有后台工作进程已启动。")
}
