package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/cache"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fileMetadataCacheTTL = 10 * time.Minute

type FileRepository interface {
	Create(file *models.File) error
	FindByID(ctx context.Context, id uint64) (*models.File, error)
	FindAllByUser(userID uint64, page, pageSize int) ([]models.File, int64, error)
	Update(file *models.File) error
	Delete(id uint64) error
	IncrementDownloadCount(id uint64) error
}

type fileRepository struct {
	db    *gorm.DB
	cache cache.Cache
}

var _ FileRepository = (*fileRepository)(nil)

// NewFileRepository 创建新的fileRepository实例
func NewFileRepository(db *gorm.DB, c cache.Cache) FileRepository {
	return &fileRepository{db: db, cache: c}
}

func (r *fileRepository) Create(file *models.File) error {
	if err := r.db.Create(file).Error; err != nil {
		return err
	}
	// 新文件会改变列表，使列表缓存失效
	r.invalidateUserCache(file.UserID)
	return nil
}

// FindByID 优先读缓存，未命中回源数据库并回填
func (r *fileRepository) FindByID(ctx context.Context, id uint64) (*models.File, error) {
	key := cache.GenerateFileMetadataKey(id)

	var cached models.File
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		// 缓存故障只降级，不阻断请求
		logger.Warn("读取文件元信息缓存失败", zap.Uint64("fileID", id), zap.Error(err))
	}

	var file models.File
	err = r.db.Where("id = ?", id).First(&file).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询文件失败: %w", err)
	}

	if err := r.cache.Set(ctx, key, &file, fileMetadataCacheTTL); err != nil {
		logger.Warn("写入文件元信息缓存失败", zap.Uint64("fileID", id), zap.Error(err))
	}
	return &file, nil
}

func (r *fileRepository) FindAllByUser(userID uint64, page, pageSize int) ([]models.File, int64, error) {
	var files []models.File
	var total int64

	query := r.db.Model(&models.File{}).Where("user_id = ? AND is_active = ?", userID, true)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计文件总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&files).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询文件列表失败: %w", err)
	}
	return files, total, nil
}

func (r *fileRepository) Update(file *models.File) error {
	if err := r.db.Save(file).Error; err != nil {
		return err
	}
	r.invalidateFileCache(file.ID, file.UserID)
	return nil
}

func (r *fileRepository) Delete(id uint64) error {
	var file models.File
	if err := r.db.Where("id = ?", id).First(&file).Error; err != nil {
		return err
	}
	if err := r.db.Delete(&models.File{}, id).Error; err != nil {
		return err
	}
	r.invalidateFileCache(id, file.UserID)
	return nil
}

func (r *fileRepository) IncrementDownloadCount(id uint64) error {
	err := r.db.Model(&models.File{}).Where("id = ?", id).
		Update("download_count", gorm.Expr("download_count + 1")).Error
	if err != nil {
		return fmt.Errorf("递增文件下载计数失败: %w", err)
	}
	r.invalidateFileCache(id, 0)
	return nil
}

func (r *fileRepository) invalidateFileCache(fileID, userID uint64) {
	ctx := context.Background()
	keys := []string{cache.GenerateFileMetadataKey(fileID)}
	if userID != 0 {
		keys = append(keys, cache.GenerateUserFileListKey(userID))
	}
	if err := r.cache.Del(ctx, keys...); err != nil {
		logger.Warn("文件缓存失效失败", zap.Uint64("fileID", fileID), zap.Error(err))
	}
}

func (r *fileRepository) invalidateUserCache(userID uint64) {
	ctx := context.Background()
	if err := r.cache.Del(ctx, cache.GenerateUserFileListKey(userID)); err != nil {
		logger.Warn("用户文件列表缓存失效失败", zap.Uint64("userID", userID), zap.Error(err))
	}
}
