package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LinkListQuery 链接列表查询参数
type LinkListQuery struct {
	Page      int
	PageSize  int
	Search    string
	Active    *bool
	Favorite  *bool
	SortBy    string
	SortOrder string
	// IDs 非空时仅返回指定主键集合（用于 Elasticsearch 检索后的回表）
	IDs []uint64
}

type LinkRepository interface {
	Create(link *models.Link) error
	FindByLinkID(ctx context.Context, linkID string) (*models.Link, error)
	FindByID(id uint64) (*models.Link, error)
	FindByOwnerAndName(ownerID uint64, customName string) (*models.Link, error)
	FindAllByUser(userID uint64, q LinkListQuery) ([]models.Link, int64, error)
	FindRecentByUser(userID uint64, limit int) ([]models.Link, error)
	FindAll(q LinkListQuery) ([]models.Link, int64, error)
	Update(link *models.Link) error
	SetActive(id uint64, active bool) error
	SetFavorite(id uint64, favorite bool) error
	Delete(id uint64) error

	// AppendAccessAndIncrement 原子提交一次成功消费：追加一条访问日志并将
	// access_count 加一，要么全部生效要么全部失败。
	// 并发冲突在内部有限次重试；记录并发消失返回 ErrLinkNotFound，
	// 次数上限被并发请求抢先占满返回 ErrLinkLimitReached。
	AppendAccessAndIncrement(ctx context.Context, linkID uint64, entry *models.LinkAccessLog) error

	FindAccessLogs(linkID uint64, page, pageSize int) ([]models.LinkAccessLog, int64, error)
	FindAllAccessLogs(linkID uint64) ([]models.LinkAccessLog, error)
}

type linkRepository struct {
	db            *gorm.DB
	commitRetries int
}

var _ LinkRepository = (*linkRepository)(nil)

// NewLinkRepository 创建新的linkRepository实例
// commitRetries 为乐观并发冲突时原子提交的最大重试次数
func NewLinkRepository(db *gorm.DB, commitRetries int) LinkRepository {
	if commitRetries <= 0 {
		commitRetries = 3
	}
	return &linkRepository{db: db, commitRetries: commitRetries}
}

// 创建新的数据库记录
func (r *linkRepository) Create(link *models.Link) error {
	return r.db.Create(link).Error
}

// FindByLinkID 根据公开令牌查找记录，预加载文件和允许用户列表
// 评估路径使用，必须读到最新已提交状态，不走缓存
func (r *linkRepository) FindByLinkID(ctx context.Context, linkID string) (*models.Link, error) {
	var link models.Link
	err := r.db.WithContext(ctx).
		Preload("File").Preload("AllowedUsers").
		Where("link_id = ?", linkID).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分享链接失败: %w", err)
	}
	return &link, nil
}

func (r *linkRepository) FindByID(id uint64) (*models.Link, error) {
	var link models.Link
	err := r.db.Preload("File").Preload("AllowedUsers").Where("id = ?", id).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询分享链接失败: %w", err)
	}
	return &link, nil
}

// FindByOwnerAndName 查找同一创建者下是否已占用该自定义名称
func (r *linkRepository) FindByOwnerAndName(ownerID uint64, customName string) (*models.Link, error) {
	var link models.Link
	err := r.db.Where("created_by = ? AND custom_name = ?", ownerID, customName).First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("查询链接名称占用失败: %w", err)
	}
	return &link, nil
}

func (r *linkRepository) applyListQuery(query *gorm.DB, q LinkListQuery) *gorm.DB {
	if len(q.IDs) > 0 {
		query = query.Where("id IN ?", q.IDs)
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		query = query.Where("custom_name LIKE ? OR description LIKE ?", pattern, pattern)
	}
	if q.Active != nil {
		query = query.Where("is_active = ?", *q.Active)
	}
	if q.Favorite != nil {
		query = query.Where("favorite = ?", *q.Favorite)
	}
	return query
}

func (r *linkRepository) sortClause(q LinkListQuery) string {
	sortBy := q.SortBy
	switch sortBy {
	case "custom_name", "access_count", "created_at", "updated_at":
	default:
		sortBy = "created_at"
	}
	order := "desc"
	if q.SortOrder == "asc" {
		order = "asc"
	}
	return sortBy + " " + order
}

// 查找特定用户的所有分享链接（分页、搜索、过滤）
func (r *linkRepository) FindAllByUser(userID uint64, q LinkListQuery) ([]models.Link, int64, error) {
	var links []models.Link
	var total int64

	query := r.applyListQuery(r.db.Model(&models.Link{}).Where("created_by = ?", userID), q)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计链接总数失败: %w", err)
	}

	offset := (q.Page - 1) * q.PageSize
	err := query.Order(r.sortClause(q)).Offset(offset).Limit(q.PageSize).
		Preload("File").Preload("AllowedUsers").Find(&links).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询链接列表失败: %w", err)
	}
	return links, total, nil
}

// 查找用户最近创建的链接
func (r *linkRepository) FindRecentByUser(userID uint64, limit int) ([]models.Link, error) {
	var links []models.Link
	err := r.db.Where("created_by = ?", userID).
		Order("created_at desc").Limit(limit).
		Preload("File").Find(&links).Error
	if err != nil {
		return nil, fmt.Errorf("查询最近链接失败: %w", err)
	}
	return links, nil
}

// 管理端：查找全部链接
func (r *linkRepository) FindAll(q LinkListQuery) ([]models.Link, int64, error) {
	var links []models.Link
	var total int64

	query := r.applyListQuery(r.db.Model(&models.Link{}), q)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计链接总数失败: %w", err)
	}

	offset := (q.Page - 1) * q.PageSize
	err := query.Order(r.sortClause(q)).Offset(offset).Limit(q.PageSize).
		Preload("File").Find(&links).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询链接列表失败: %w", err)
	}
	return links, total, nil
}

// Update 更新链接配置，带版本校验
// 合并结果的跨字段约束由服务层在调用前校验
func (r *linkRepository) Update(link *models.Link) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Link{}).
			Where("id = ? AND version = ?", link.ID, link.Version).
			Updates(map[string]any{
				"custom_name":        link.CustomName,
				"description":        link.Description,
				"expiration_type":    link.ExpirationType,
				"expiration_value":   link.ExpirationValue,
				"access_limit":       link.AccessLimit,
				"verification_type":  link.VerificationType,
				"verification_value": link.VerificationValue,
				"access_scope":       link.AccessScope,
				"access_type":        link.AccessType,
				"version":            link.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("更新分享链接失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return xerr.ErrConflictRetry
		}

		// 覆盖允许用户集合（selected 之外的范围为空集）
		if err := tx.Model(link).Association("AllowedUsers").Replace(link.AllowedUsers); err != nil {
			return fmt.Errorf("更新链接允许用户失败: %w", err)
		}
		return nil
	})
}

// SetActive 切换启用状态，版本号一并递增以与消费提交串行化
func (r *linkRepository) SetActive(id uint64, active bool) error {
	res := r.db.Model(&models.Link{}).Where("id = ?", id).
		Updates(map[string]any{
			"is_active": active,
			"version":   gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("切换链接状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return xerr.ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) SetFavorite(id uint64, favorite bool) error {
	res := r.db.Model(&models.Link{}).Where("id = ?", id).
		Updates(map[string]any{
			"favorite": favorite,
			"version":  gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("切换链接收藏状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return xerr.ErrLinkNotFound
	}
	return nil
}

// Delete 硬删除链接及其允许用户关联
// 访问日志保留，计数与日志留存互相独立
func (r *linkRepository) Delete(id uint64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		link := &models.Link{ID: id}
		if err := tx.Model(link).Association("AllowedUsers").Clear(); err != nil {
			return fmt.Errorf("清除链接允许用户失败: %w", err)
		}
		res := tx.Delete(&models.Link{}, id)
		if res.Error != nil {
			return fmt.Errorf("删除分享链接失败: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return xerr.ErrLinkNotFound
		}
		return nil
	})
}

// AppendAccessAndIncrement 见接口注释
// 关键点：check-then-increment 不能裸写，必须用带版本号与余量守卫的
// 条件更新，否则并发请求会把计数推过上限
func (r *linkRepository) AppendAccessAndIncrement(ctx context.Context, linkID uint64, entry *models.LinkAccessLog) error {
	for attempt := 0; attempt < r.commitRetries; attempt++ {
		var current models.Link
		err := r.db.WithContext(ctx).Where("id = ?", linkID).First(&current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// 记录在评估期间被并发删除
				return xerr.ErrLinkNotFound
			}
			return fmt.Errorf("读取分享链接失败: %w", err)
		}
		if !current.IsActive {
			// 并发停用，按约定与不存在归并
			return xerr.ErrLinkNotFound
		}
		if current.IsAccessLimitReached() {
			return xerr.ErrLinkLimitReached
		}

		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&models.Link{}).
				Where("id = ? AND version = ? AND is_active = ?", linkID, current.Version, true).
				Where("access_limit IS NULL OR access_count < access_limit").
				Updates(map[string]any{
					"access_count": gorm.Expr("access_count + 1"),
					"version":      gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return fmt.Errorf("递增访问计数失败: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return xerr.ErrConflictRetry
			}

			entry.LinkID = linkID
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("写入访问日志失败: %w", err)
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, xerr.ErrConflictRetry) {
			// 版本被并发提交抢先，重新读取后再试
			continue
		}
		return err
	}

	logger.Warn("AppendAccessAndIncrement: 乐观并发重试耗尽",
		zap.Uint64("linkID", linkID), zap.Int("retries", r.commitRetries))
	return xerr.ErrDatabaseError
}

// 分页查询访问日志
func (r *linkRepository) FindAccessLogs(linkID uint64, page, pageSize int) ([]models.LinkAccessLog, int64, error) {
	var logs []models.LinkAccessLog
	var total int64

	query := r.db.Model(&models.LinkAccessLog{}).Where("link_id = ?", linkID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计访问日志总数失败: %w", err)
	}

	offset := (page - 1) * pageSize
	err := query.Order("accessed_at desc").Offset(offset).Limit(pageSize).
		Preload("User").Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询访问日志失败: %w", err)
	}
	return logs, total, nil
}

// 查询链接的全部访问日志（导出用）
func (r *linkRepository) FindAllAccessLogs(linkID uint64) ([]models.LinkAccessLog, error) {
	var logs []models.LinkAccessLog
	err := r.db.Where("link_id = ?", linkID).Order("accessed_at asc").
		Preload("User").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("查询访问日志失败: %w", err)
	}
	return logs, nil
}
