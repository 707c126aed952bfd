package mq

import (
	"encoding/json"
	"fmt"

	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RabbitMQClient 封装 RabbitMQ 的连接和通道
// 活动事件等异步旁路统一经由它投递，投递失败由调用方决定是否降级
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQClient 建立连接并打开通道
func NewRabbitMQClient(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开 RabbitMQ 通道失败: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: ch,
	}, nil
}

// DeclareQueue 声明一个持久化队列，重复声明幂等
func (c *RabbitMQClient) DeclareQueue(queueName string) (amqp.Queue, error) {
	return c.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

// Publish 将消息投递到指定队列（默认交换机，消息持久化）
func (c *RabbitMQClient) Publish(queueName string, body []byte) error {
	return c.channel.Publish(
		"",        // exchange (default)
		queueName, // routing key (queue name)
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

// PublishJSON 将载荷序列化为 JSON 后投递，服务层发布事件的统一入口
func (c *RabbitMQClient) PublishJSON(queueName string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化队列消息失败: %w", err)
	}
	return c.Publish(queueName, body)
}

// Consume 注册消费者，并在后台 goroutine 中逐条分发给 handler
// handler 负责 Ack/Nack
func (c *RabbitMQClient) Consume(queueName string, handler func(msg amqp.Delivery)) error {
	msgs, err := c.channel.Consume(
		queueName,
		"",    // consumer
		false, // auto-ack（由 handler 手动确认）
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("注册队列消费者失败: %w", err)
	}

	go func() {
		for msg := range msgs {
			handler(msg)
		}
	}()

	logger.Info("开始消费队列消息", zap.String("queue", queueName))
	return nil
}

// Close 关闭通道和连接
func (c *RabbitMQClient) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
