package worker

import (
	"encoding/json"

	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ActivityQueueName 用户活动事件队列
const ActivityQueueName = "user_activity_queue"

// ActivityEvent 是发布到队列的活动事件载荷
type ActivityEvent struct {
	UserID   uint64 `json:"user_id"`
	Action   string `json:"action"`
	Detail   string `json:"detail"`
	SourceIP string `json:"source_ip"`
}

// ActivityWorker 消费活动事件并异步落库
type ActivityWorker struct {
	mqClient     *mq.RabbitMQClient
	activityRepo repositories.ActivityRepository
}

func NewActivityWorker(mqClient *mq.RabbitMQClient, activityRepo repositories.ActivityRepository) *ActivityWorker {
	return &ActivityWorker{
		mqClient:     mqClient,
		activityRepo: activityRepo,
	}
}

func (w *ActivityWorker) Start() {
	if _, err := w.mqClient.DeclareQueue(ActivityQueueName); err != nil {
		logger.Fatal("声明活动事件队列失败", zap.Error(err))
	}
	if err := w.mqClient.Consume(ActivityQueueName, w.handleActivityEvent); err != nil {
		logger.Fatal("启动活动事件消费失败", zap.Error(err))
	}

	logger.Info("活动事件 Worker 已启动")
}

func (w *ActivityWorker) handleActivityEvent(msg amqp.Delivery) {
	var event ActivityEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		logger.Error("Failed to unmarshal activity event", zap.Error(err))
		_ = msg.Nack(false, false) // 解析失败,直接抛弃
		return
	}

	activity := &models.UserActivity{
		UserID:   event.UserID,
		Action:   event.Action,
		Detail:   event.Detail,
		SourceIP: event.SourceIP,
	}
	if err := w.activityRepo.Create(activity); err != nil {
		logger.Error("Failed to persist user activity",
			zap.Uint64("userID", event.UserID),
			zap.String("action", event.Action),
			zap.Error(err))
		_ = msg.Nack(false, true) // 落库失败,重新入队
		return
	}

	_ = msg.Ack(false)
}
