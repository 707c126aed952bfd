package explorer

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq/worker"
	"github.com/qiyihan/go-linkhub/internal/pkg/storage"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"go.uber.org/zap"
)

// FileService 文件的上传、下载与管理
type FileService interface {
	UploadFile(ctx context.Context, userID uint64, fileHeader *multipart.FileHeader, customName, sourceIP string) (*models.File, error)
	ListUserFiles(ctx context.Context, userID uint64, page, pageSize int) ([]models.File, int64, error)
	GetFile(ctx context.Context, userID uint64, role string, id uint64) (*models.File, error)
	DownloadFile(ctx context.Context, userID uint64, role string, id uint64) (*storage.GetObjectResult, *models.File, error)
	DeleteFile(ctx context.Context, userID uint64, role string, id uint64, sourceIP string) error
}

type fileService struct {
	fileRepo       repositories.FileRepository
	storageService storage.StorageService
	cfg            *config.Config
	mqClient       *mq.RabbitMQClient // 可为 nil
}

var _ FileService = (*fileService)(nil)

// NewFileService 创建新的fileService实例
func NewFileService(
	fileRepo repositories.FileRepository,
	storageService storage.StorageService,
	cfg *config.Config,
	mqClient *mq.RabbitMQClient,
) FileService {
	return &fileService{
		fileRepo:       fileRepo,
		storageService: storageService,
		cfg:            cfg,
		mqClient:       mqClient,
	}
}

func (s *fileService) UploadFile(ctx context.Context, userID uint64, fileHeader *multipart.FileHeader, customName, sourceIP string) (*models.File, error) {
	src, err := fileHeader.Open()
	if err != nil {
		logger.Error("UploadFile: 打开上传文件失败", zap.Error(err))
		return nil, xerr.ErrInvalidParams
	}
	defer src.Close()

	fileUUID := uuid.New().String()
	bucket := s.bucketName()
	// 对象键保留原始扩展名，方便存储端按类型归档
	objectKey := fileUUID + filepath.Ext(fileHeader.Filename)

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result, err := s.storageService.PutObject(ctx, bucket, objectKey, src, fileHeader.Size, contentType)
	if err != nil {
		logger.Error("UploadFile: 上传到对象存储失败",
			zap.String("bucket", bucket),
			zap.String("key", objectKey),
			zap.Error(err))
		return nil, xerr.ErrStorageError
	}

	if customName == "" {
		customName = fileHeader.Filename
	}
	file := &models.File{
		UUID:             fileUUID,
		UserID:           userID,
		OriginalFilename: fileHeader.Filename,
		CustomFilename:   customName,
		MimeType:         contentType,
		Size:             uint64(fileHeader.Size),
		OssBucket:        result.Bucket,
		OssKey:           result.Key,
		IsActive:         true,
	}
	if err := s.fileRepo.Create(file); err != nil {
		logger.Error("UploadFile: 写入文件记录失败", zap.Error(err))
		// 记录写入失败时清理已上传的对象，避免孤儿对象
		if rmErr := s.storageService.RemoveObject(ctx, result.Bucket, result.Key); rmErr != nil {
			logger.Warn("UploadFile: 清理对象失败", zap.String("key", result.Key), zap.Error(rmErr))
		}
		return nil, xerr.ErrDatabaseError
	}

	s.publishActivity(userID, models.ActivityFileUpload, "上传文件 "+file.CustomFilename, sourceIP)

	logger.Info("UploadFile: 文件上传成功",
		zap.Uint64("userID", userID),
		zap.Uint64("fileID", file.ID),
		zap.String("uuid", file.UUID))
	return file, nil
}

func (s *fileService) ListUserFiles(ctx context.Context, userID uint64, page, pageSize int) ([]models.File, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.fileRepo.FindAllByUser(userID, page, pageSize)
}

func (s *fileService) GetFile(ctx context.Context, userID uint64, role string, id uint64) (*models.File, error) {
	return s.loadOwned(ctx, userID, role, id)
}

func (s *fileService) DownloadFile(ctx context.Context, userID uint64, role string, id uint64) (*storage.GetObjectResult, *models.File, error) {
	file, err := s.loadOwned(ctx, userID, role, id)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.storageService.GetObject(ctx, file.OssBucket, file.OssKey)
	if err != nil {
		logger.Error("DownloadFile: 读取对象失败",
			zap.Uint64("fileID", id),
			zap.String("key", file.OssKey),
			zap.Error(err))
		return nil, nil, xerr.ErrStorageError
	}

	if err := s.fileRepo.IncrementDownloadCount(id); err != nil {
		logger.Warn("DownloadFile: 递增下载计数失败", zap.Uint64("fileID", id), zap.Error(err))
	}
	return &obj, file, nil
}

func (s *fileService) DeleteFile(ctx context.Context, userID uint64, role string, id uint64, sourceIP string) error {
	file, err := s.loadOwned(ctx, userID, role, id)
	if err != nil {
		return err
	}

	if err := s.fileRepo.Delete(id); err != nil {
		logger.Error("DeleteFile: 删除文件记录失败", zap.Uint64("fileID", id), zap.Error(err))
		return xerr.ErrDatabaseError
	}

	// 对象清理失败不回滚数据库删除，留给后续巡检补偿
	if err := s.storageService.RemoveObject(ctx, file.OssBucket, file.OssKey); err != nil {
		logger.Warn("DeleteFile: 删除存储对象失败",
			zap.String("bucket", file.OssBucket),
			zap.String("key", file.OssKey),
			zap.Error(err))
	}

	s.publishActivity(userID, models.ActivityFileDelete, "删除文件 "+file.CustomFilename, sourceIP)
	return nil
}

func (s *fileService) loadOwned(ctx context.Context, userID uint64, role string, id uint64) (*models.File, error) {
	file, err := s.fileRepo.FindByID(ctx, id)
	if err != nil {
		logger.Error("查询文件失败", zap.Uint64("fileID", id), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if file == nil || !file.IsActive {
		return nil, xerr.ErrFileNotFound
	}
	if file.UserID != userID && role != models.RoleSuperuser {
		return nil, xerr.ErrPermissionDenied
	}
	return file, nil
}

func (s *fileService) bucketName() string {
	if s.cfg.Storage.Type == "aliyun_oss" {
		return s.cfg.AliyunOSS.BucketName
	}
	return s.cfg.MinIO.BucketName
}

func (s *fileService) publishActivity(userID uint64, action, detail, sourceIP string) {
	if s.mqClient == nil {
		return
	}
	event := worker.ActivityEvent{
		UserID:   userID,
		Action:   action,
		Detail:   detail,
		SourceIP: sourceIP,
	}
	if err := s.mqClient.PublishJSON(worker.ActivityQueueName, event); err != nil {
		logger.Warn(fmt.Sprintf("发布活动事件失败: action=%s", action),
			zap.Uint64("userID", userID),
			zap.Error(err))
	}
}
