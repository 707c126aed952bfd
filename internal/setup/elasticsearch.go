package setup

import (
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"go.uber.org/zap"
)

var EsClient *elasticsearch.Client

// InitElasticsearchClient 初始化 Elasticsearch 客户端
// 未启用时返回 nil，链接搜索将降级为数据库 LIKE 查询
func InitElasticsearchClient(cfg *config.ElasticsearchConfig) *elasticsearch.Client {
	if !cfg.Enabled {
		logger.Info("Elasticsearch disabled, link search falls back to database queries.")
		return nil
	}

	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	var err error
	if EsClient, err = elasticsearch.NewClient(esCfg); err != nil {
		logger.Fatal("Failed to create Elasticsearch client", zap.Error(err))
	}

	// 尝试连接并获取集群信息，验证连接是否成功
	res, err := EsClient.Info()
	if err != nil {
		logger.Fatal("Failed to connect to Elasticsearch", zap.Error(err))
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Fatal("Error connecting to Elasticsearch", zap.String("status", res.Status()))
	}

	logger.Info("Elasticsearch client initialized successfully.")
	return EsClient
}
