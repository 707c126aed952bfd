package repositories

import (
	"fmt"

	"github.com/qiyihan/go-linkhub/internal/models"
	"gorm.io/gorm"
)

type ActivityRepository interface {
	Create(activity *models.UserActivity) error
	FindAllByUser(userID uint64, page, pageSize int) ([]models.UserActivity, int64, error)
}

type activityRepository struct {
	db *gorm.DB
}

var _ ActivityRepository = (*activityRepository)(nil)

// NewActivityRepository 创建新的activityRepository实例
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(activity *models.UserActivity) error {
	return r.db.Create(activity).Error
}

func (r *activityRepository) FindAllByUser(userID uint64, page, pageSize int) ([]models.UserActivity, int64, error) {
	var activities []models.UserActivity
	var total int64

	query := r.db.Model(&models.UserActivity{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计活动日志总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	err := query.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&activities).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询活动日志失败: %w", err)
	}
	return activities, total, nil
}
