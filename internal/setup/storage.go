package setup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/storage"
)

// ensureBucket 检查存储桶是否存在，不存在则创建
func ensureBucket(svc storage.StorageService, bucketName string) error {
	// 为外部调用使用带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := svc.IsBucketExist(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶存在性失败: %w", err)
	}

	if !exists {
		logger.Info("存储桶不存在，尝试创建...", zap.String("bucketName", bucketName))
		if err := svc.MakeBucket(ctx, bucketName); err != nil {
			return fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("存储桶创建成功", zap.String("bucketName", bucketName))
	} else {
		logger.Info("存储桶已存在", zap.String("bucketName", bucketName))
	}
	return nil
}

// InitStorage 根据配置初始化对象存储服务并确保存储桶可用
func InitStorage(cfg *config.Config) storage.StorageService {
	var fileStorageService storage.StorageService
	var bucketName string

	switch cfg.Storage.Type {
	case "minio":
		svc, err := storage.NewMinIOStorageService(&cfg.MinIO)
		if err != nil {
			logger.Fatal("初始化 MinIO 存储服务失败", zap.Error(err))
		}
		logger.Info("MinIO 存储服务已选择并初始化")
		fileStorageService = svc
		bucketName = cfg.MinIO.BucketName
	case "aliyun_oss":
		svc, err := storage.NewAliyunOSSStorageService(&cfg.AliyunOSS)
		if err != nil {
			logger.Fatal("初始化阿里云 OSS 存储服务失败", zap.Error(err))
		}
		logger.Info("阿里云 OSS 存储服务已选择并初始化")
		fileStorageService = svc
		bucketName = cfg.AliyunOSS.BucketName
	default:
		logger.Fatal("未知的存储服务类型，请检查配置: " + cfg.Storage.Type)
	}

	if err := ensureBucket(fileStorageService, bucketName); err != nil {
		logger.Fatal("初始化存储桶失败", zap.Error(err))
	}
	return fileStorageService
}
