package link

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq"
	"github.com/qiyihan/go-linkhub/internal/pkg/mq/worker"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/qiyihan/go-linkhub/internal/services/search"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 更新链接时乐观并发冲突的读改写重试次数
const updateRetries = 3

// CreateLinkRequest 创建链接的请求体
type CreateLinkRequest struct {
	FileID            uint64   `json:"file_id" binding:"required"`
	CustomName        string   `json:"custom_name" binding:"required,max=128"`
	Description       string   `json:"description" binding:"max=512"`
	ExpirationType    string   `json:"expiration_type"`
	ExpirationValue   *int64   `json:"expiration_value"`
	AccessLimit       *uint32  `json:"access_limit"`
	VerificationType  string   `json:"verification_type"`
	VerificationValue string   `json:"verification_value"`
	AccessScope       string   `json:"access_scope"`
	AccessType        string   `json:"access_type"`
	AllowedUserIDs    []uint64 `json:"allowed_user_ids"`
}

// UpdateLinkRequest 更新链接的请求体，指针字段区分"未提供"与"置空"
type UpdateLinkRequest struct {
	CustomName        *string   `json:"custom_name"`
	Description       *string   `json:"description"`
	ExpirationType    *string   `json:"expiration_type"`
	ExpirationValue   *int64    `json:"expiration_value"`
	AccessLimit       *uint32   `json:"access_limit"`
	VerificationType  *string   `json:"verification_type"`
	VerificationValue *string   `json:"verification_value"`
	AccessScope       *string   `json:"access_scope"`
	AccessType        *string   `json:"access_type"`
	AllowedUserIDs    *[]uint64 `json:"allowed_user_ids"`
}

// LinkService 链接的管理面：创建、编辑、列表、开关、删除与访问日志。
// 消费面（公开端点的访问裁决）见 AccessEvaluator。
type LinkService interface {
	CreateLink(ctx context.Context, ownerID uint64, req *CreateLinkRequest, sourceIP string) (*models.Link, error)
	GetLink(ctx context.Context, userID uint64, role string, id uint64) (*models.Link, error)
	UpdateLink(ctx context.Context, userID uint64, role string, id uint64, req *UpdateLinkRequest, sourceIP string) (*models.Link, error)
	DeleteLink(ctx context.Context, userID uint64, role string, id uint64, sourceIP string) error
	ToggleActive(ctx context.Context, userID uint64, role string, id uint64) (*models.Link, error)
	ToggleFavorite(ctx context.Context, userID uint64, role string, id uint64) (*models.Link, error)
	ListUserLinks(ctx context.Context, userID uint64, q repositories.LinkListQuery) ([]models.Link, int64, error)
	RecentLinks(ctx context.Context, userID uint64, limit int) ([]models.Link, error)
	AdminListLinks(ctx context.Context, q repositories.LinkListQuery) ([]models.Link, int64, error)
	GetAccessLogs(ctx context.Context, userID uint64, role string, id uint64, page, pageSize int) ([]models.LinkAccessLog, int64, error)
	ExportAccessLogs(ctx context.Context, userID uint64, role string, id uint64, w io.Writer) error
}

type linkService struct {
	linkRepo repositories.LinkRepository
	fileRepo repositories.FileRepository
	userRepo repositories.UserRepository
	mqClient *mq.RabbitMQClient // 可为 nil，表示未启用消息队列
	indexer  search.LinkIndexer // 可为 nil，表示未启用全文索引
}

var _ LinkService = (*linkService)(nil)

// NewLinkService 创建新的linkService实例
func NewLinkService(
	linkRepo repositories.LinkRepository,
	fileRepo repositories.FileRepository,
	userRepo repositories.UserRepository,
	mqClient *mq.RabbitMQClient,
	indexer search.LinkIndexer,
) LinkService {
	return &linkService{
		linkRepo: linkRepo,
		fileRepo: fileRepo,
		userRepo: userRepo,
		mqClient: mqClient,
		indexer:  indexer,
	}
}

func (s *linkService) CreateLink(ctx context.Context, ownerID uint64, req *CreateLinkRequest, sourceIP string) (*models.Link, error) {
	// 链接必须指向一个存在且可用的文件
	file, err := s.fileRepo.FindByID(ctx, req.FileID)
	if err != nil {
		logger.Error("CreateLink: 查询文件失败", zap.Uint64("fileID", req.FileID), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if file == nil || !file.IsActive {
		return nil, xerr.ErrFileNotFound
	}

	link := &models.Link{
		LinkID:           utils.NewLinkID(),
		CustomName:       req.CustomName,
		CreatedBy:        ownerID,
		FileID:           req.FileID,
		Description:      req.Description,
		ExpirationType:   defaultString(req.ExpirationType, models.ExpirationNone),
		ExpirationValue:  req.ExpirationValue,
		AccessLimit:      req.AccessLimit,
		VerificationType: defaultString(req.VerificationType, models.VerificationNone),
		AccessScope:      defaultString(req.AccessScope, models.ScopePublic),
		AccessType:       defaultString(req.AccessType, models.AccessTypeInfo),
		IsActive:         true,
	}

	if link.AccessScope == models.ScopeSelected {
		users, err := s.resolveAllowedUsers(req.AllowedUserIDs)
		if err != nil {
			return nil, err
		}
		link.AllowedUsers = users
	}

	if link.VerificationType == models.VerificationPassword {
		if req.VerificationValue == "" {
			return nil, xerr.ErrLinkConfigInvalid
		}
		hashed, err := utils.HashPassword(req.VerificationValue)
		if err != nil {
			logger.Error("CreateLink: 口令哈希失败", zap.Error(err))
			return nil, xerr.ErrInternalServer
		}
		link.VerificationValue = hashed
	}

	if err := link.ValidateConfig(); err != nil {
		return nil, err
	}

	// 先查后插只是给出友好错误，最终一致性由 uk_owner_name 唯一索引兜底
	existing, err := s.linkRepo.FindByOwnerAndName(ownerID, link.CustomName)
	if err != nil {
		logger.Error("CreateLink: 查询名称占用失败", zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if existing != nil {
		return nil, xerr.ErrLinkNameTaken
	}

	if err := s.linkRepo.Create(link); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, xerr.ErrLinkNameTaken
		}
		logger.Error("CreateLink: 创建链接失败", zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}

	s.publishActivity(ownerID, models.ActivityLinkCreate, "创建分享链接 "+link.CustomName, sourceIP)
	s.indexLink(ctx, link)

	logger.Info("CreateLink: 链接创建成功",
		zap.Uint64("ownerID", ownerID),
		zap.Uint64("linkID", link.ID),
		zap.String("customName", link.CustomName))
	return link, nil
}

func (s *linkService) GetLink(ctx context.Context, userID uint64, role string, id uint64) (*models.Link, error) {
	return s.loadOwned(userID, role, id)
}

func (s *linkService) UpdateLink(ctx context.Context, userID uint64, role string, id uint64, req *UpdateLinkRequest, sourceIP string) (*models.Link, error) {
	// 版本冲突时重新读取再套用修改，保持与消费提交的串行化
	for attempt := 0; attempt < updateRetries; attempt++ {
		link, err := s.loadOwned(userID, role, id)
		if err != nil {
			return nil, err
		}

		if err := s.applyUpdate(link, req); err != nil {
			return nil, err
		}
		if err := link.ValidateConfig(); err != nil {
			return nil, err
		}

		// 改名时校验新名称未被占用
		if req.CustomName != nil {
			existing, err := s.linkRepo.FindByOwnerAndName(link.CreatedBy, link.CustomName)
			if err != nil {
				logger.Error("UpdateLink: 查询名称占用失败", zap.Error(err))
				return nil, xerr.ErrDatabaseError
			}
			if existing != nil && existing.ID != link.ID {
				return nil, xerr.ErrLinkNameTaken
			}
		}

		err = s.linkRepo.Update(link)
		if err == nil {
			s.publishActivity(userID, models.ActivityLinkUpdate, "更新分享链接 "+link.CustomName, sourceIP)
			s.indexLink(ctx, link)
			return s.linkRepo.FindByID(id)
		}
		if errors.Is(err, xerr.ErrConflictRetry) {
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, xerr.ErrLinkNameTaken
		}
		logger.Error("UpdateLink: 更新链接失败", zap.Uint64("linkID", id), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}

	logger.Warn("UpdateLink: 乐观并发重试耗尽", zap.Uint64("linkID", id))
	return nil, xerr.ErrDatabaseError
}

// applyUpdate 将请求中出现的字段合并到现有记录上
func (s *linkService) applyUpdate(link *models.Link, req *UpdateLinkRequest) error {
	if req.CustomName != nil {
		link.CustomName = *req.CustomName
	}
	if req.Description != nil {
		link.Description = *req.Description
	}
	if req.ExpirationType != nil {
		link.ExpirationType = *req.ExpirationType
		if *req.ExpirationType == models.ExpirationNone {
			link.ExpirationValue = nil
		}
	}
	if req.ExpirationValue != nil {
		link.ExpirationValue = req.ExpirationValue
	}
	if req.AccessLimit != nil {
		link.AccessLimit = req.AccessLimit
	}
	if req.AccessScope != nil {
		link.AccessScope = *req.AccessScope
	}
	if req.AccessType != nil {
		link.AccessType = *req.AccessType
	}
	if req.AllowedUserIDs != nil {
		users, err := s.resolveAllowedUsers(*req.AllowedUserIDs)
		if err != nil {
			return err
		}
		link.AllowedUsers = users
	}
	if link.AccessScope != models.ScopeSelected {
		link.AllowedUsers = nil
	}

	if req.VerificationType != nil {
		link.VerificationType = *req.VerificationType
		if *req.VerificationType != models.VerificationPassword {
			link.VerificationValue = ""
		}
	}
	if link.VerificationType == models.VerificationPassword {
		if req.VerificationValue != nil && *req.VerificationValue != "" {
			hashed, err := utils.HashPassword(*req.VerificationValue)
			if err != nil {
				logger.Error("applyUpdate: 口令哈希失败", zap.Error(err))
				return xerr.ErrInternalServer
			}
			link.VerificationValue = hashed
		}
		// 未提供新口令时沿用已有哈希；从未设置过口令则配置不完整
		if link.VerificationValue == "" {
			return xerr.ErrLinkConfigInvalid
		}
	}
	return nil
}

func (s *linkService) DeleteLink(ctx context.Context, userID uint64, role string, id uint64, sourceIP string) error {
	link, err := s.loadOwned(userID, role, id)
	if err != nil {
		return err
	}

	if err := s.linkRepo.Delete(id); err != nil {
		if errors.Is(err, xerr.ErrLinkNotFound) {
			return err
		}
		logger.Error("DeleteLink: 删除链接失败", zap.Uint64("linkID", id), zap.Error(err))
		return xerr.ErrDatabaseError
	}

	s.publishActivity(userID, models.ActivityLinkDelete, "删除分享链接 "+link.CustomName, sourceIP)
	if s.indexer != nil {
		if err := s.indexer.DeleteLink(ctx, id); err != nil {
			logger.Warn("DeleteLink: 删除链接索引失败", zap.Uint64("linkID", id), zap.Error(err))
		}
	}
	return nil
}

func (s *linkService) ToggleActive(ctx context.Context, userID uint64, role string, id uint64) (*models.Link, error) {
	link, err := s.loadOwned(userID, role, id)
	if err != nil {
		return nil, err
	}
	if err := s.linkRepo.SetActive(id, !link.IsActive); err != nil {
		if errors.Is(err, xerr.ErrLinkNotFound) {
			return nil, err
		}
		logger.Error("ToggleActive: 切换状态失败", zap.Uint64("linkID", id), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	return s.linkRepo.FindByID(id)
}

func (s *linkService) ToggleFavorite(ctx context.Context, userID uint64, role string, id uint64) (*models.Link, error) {
	link, err := s.loadOwned(userID, role, id)
	if err != nil {
		return nil, err
	}
	if err := s.linkRepo.SetFavorite(id, !link.Favorite); err != nil {
		if errors.Is(err, xerr.ErrLinkNotFound) {
			return nil, err
		}
		logger.Error("ToggleFavorite: 切换收藏失败", zap.Uint64("linkID", id), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	return s.linkRepo.FindByID(id)
}

// ListUserLinks 列出当前用户的链接
// 有搜索词且启用了 Elasticsearch 时先走索引，失败降级为数据库 LIKE
func (s *linkService) ListUserLinks(ctx context.Context, userID uint64, q repositories.LinkListQuery) ([]models.Link, int64, error) {
	if q.Search != "" && s.indexer != nil {
		ids, err := s.indexer.SearchLinks(ctx, userID, q.Search, 1000)
		if err != nil {
			logger.Warn("ListUserLinks: 索引搜索失败，降级为数据库查询",
				zap.Uint64("userID", userID), zap.Error(err))
		} else {
			if len(ids) == 0 {
				return []models.Link{}, 0, nil
			}
			q.IDs = ids
			q.Search = ""
		}
	}
	return s.linkRepo.FindAllByUser(userID, q)
}

func (s *linkService) RecentLinks(ctx context.Context, userID uint64, limit int) ([]models.Link, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.linkRepo.FindRecentByUser(userID, limit)
}

func (s *linkService) AdminListLinks(ctx context.Context, q repositories.LinkListQuery) ([]models.Link, int64, error) {
	return s.linkRepo.FindAll(q)
}

func (s *linkService) GetAccessLogs(ctx context.Context, userID uint64, role string, id uint64, page, pageSize int) ([]models.LinkAccessLog, int64, error) {
	if _, err := s.loadOwned(userID, role, id); err != nil {
		return nil, 0, err
	}
	return s.linkRepo.FindAccessLogs(id, page, pageSize)
}

// ExportAccessLogs 将链接的全部访问日志导出为 gzip 压缩的 CSV
func (s *linkService) ExportAccessLogs(ctx context.Context, userID uint64, role string, id uint64, w io.Writer) error {
	if _, err := s.loadOwned(userID, role, id); err != nil {
		return err
	}

	logs, err := s.linkRepo.FindAllAccessLogs(id)
	if err != nil {
		logger.Error("ExportAccessLogs: 查询访问日志失败", zap.Uint64("linkID", id), zap.Error(err))
		return xerr.ErrDatabaseError
	}

	gzw := gzip.NewWriter(w)
	cw := csv.NewWriter(gzw)

	if err := cw.Write([]string{"link_id", "user_id", "username", "source_ip", "accessed_at"}); err != nil {
		return fmt.Errorf("写入导出表头失败: %w", err)
	}
	for _, entry := range logs {
		userCol, nameCol := "", ""
		if entry.UserID != nil {
			userCol = strconv.FormatUint(*entry.UserID, 10)
		}
		if entry.User != nil {
			nameCol = entry.User.Username
		}
		row := []string{
			strconv.FormatUint(entry.LinkID, 10),
			userCol,
			nameCol,
			entry.SourceIP,
			entry.AccessedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("写入导出行失败: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("导出访问日志失败: %w", err)
	}
	return gzw.Close()
}

// loadOwned 加载链接并校验操作者权限，超级管理员可操作任意链接
func (s *linkService) loadOwned(userID uint64, role string, id uint64) (*models.Link, error) {
	link, err := s.linkRepo.FindByID(id)
	if err != nil {
		logger.Error("查询链接失败", zap.Uint64("linkID", id), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if link == nil {
		return nil, xerr.ErrLinkNotFound
	}
	if link.CreatedBy != userID && role != models.RoleSuperuser {
		return nil, xerr.ErrPermissionDenied
	}
	return link, nil
}

// resolveAllowedUsers 校验允许用户集合中的每个 ID 都真实存在
func (s *linkService) resolveAllowedUsers(ids []uint64) ([]models.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := s.userRepo.GetUsersByIDs(ids)
	if err != nil {
		logger.Error("批量查询允许用户失败", zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if len(users) != len(ids) {
		return nil, xerr.ErrLinkConfigInvalid
	}
	return users, nil
}

// publishActivity 异步发布活动事件，失败只记日志不影响主流程
func (s *linkService) publishActivity(userID uint64, action, detail, sourceIP string) {
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
		logger.Warn("发布活动事件失败",
			zap.Uint64("userID", userID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func (s *linkService) indexLink(ctx context.Context, link *models.Link) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexLink(ctx, link); err != nil {
		logger.Warn("写入链接索引失败", zap.Uint64("linkID", link.ID), zap.Error(err))
	}
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
