package admin

import (
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"go.uber.org/zap"
)

type UserService interface {
	GetUserProfile(userID uint64) (*models.User, error)
	ListUsers(page, pageSize int, search string) ([]models.User, int64, error)
	GetUserActivities(userID uint64, page, pageSize int) ([]models.UserActivity, int64, error)
}

type userService struct {
	userRepo     repositories.UserRepository
	activityRepo repositories.ActivityRepository
}

var _ UserService = (*userService)(nil)

func NewUserService(userRepo repositories.UserRepository, activityRepo repositories.ActivityRepository) UserService {
	return &userService{userRepo: userRepo, activityRepo: activityRepo}
}

func (s *userService) GetUserProfile(userID uint64) (*models.User, error) {
	user, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		logger.Error("GetUserProfile: 查询用户失败",
			zap.Uint64("userID", userID),
			zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if user == nil {
		logger.Warn("GetUserProfile: 用户不存在", zap.Uint64("userID", userID))
		return nil, xerr.ErrUserNotFound
	}
	return user, nil
}

// ListUsers 用户列表，创建 selected 范围链接时的用户选择器
func (s *userService) ListUsers(page, pageSize int, search string) ([]models.User, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.userRepo.ListUsers(page, pageSize, search)
}

// GetUserActivities 当前用户的操作流水，由消息队列异步落库
func (s *userService) GetUserActivities(userID uint64, page, pageSize int) ([]models.UserActivity, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.activityRepo.FindAllByUser(userID, page, pageSize)
}
