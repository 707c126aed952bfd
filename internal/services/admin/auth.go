package admin

import (
	"errors"

	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService interface {
	RegisterUser(username, password, email string) (*models.User, error)
	LoginUser(identifier, password string) (string, error)
}

type authService struct {
	userRepo repositories.UserRepository
	cfg      *config.Config
}

// 确保authService实现了AuthService的方法
var _ AuthService = (*authService)(nil)

func NewAuthService(userRepo repositories.UserRepository, cfg *config.Config) AuthService {
	return &authService{
		userRepo: userRepo,
		cfg:      cfg,
	}
}

func (s *authService) RegisterUser(username, password, email string) (*models.User, error) {
	//检查用户名是否存在
	existingUser, err := s.userRepo.GetUserByUsername(username)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("RegisterUser: 检查用户名失败", zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if existingUser != nil {
		return nil, xerr.ErrUserAlreadyExists
	}

	//检查邮箱是否存在
	existingUser, err = s.userRepo.GetUserByEmail(email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("RegisterUser: 检查邮箱失败", zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if existingUser != nil {
		return nil, xerr.ErrEmailAlreadyExists
	}

	//哈希密码
	hashedPassword, err := utils.HashPassword(password)
	if err != nil {
		logger.Error("RegisterUser: 密码哈希失败", zap.Error(err))
		return nil, xerr.ErrInternalServer
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hashedPassword,
		Email:        email,
		Role:         models.RoleUser,
		Status:       1,
	}

	if err := s.userRepo.CreateUser(user); err != nil {
		return nil, xerr.ErrDatabaseError
	}

	logger.Info("RegisterUser: 用户注册成功", zap.String("username", user.Username))
	return user, nil
}

func (s *authService) LoginUser(identifier, password string) (string, error) {
	// 先按用户名查找，未命中再按邮箱查找
	user, err := s.userRepo.GetUserByUsername(identifier)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("LoginUser: 查询用户失败", zap.Error(err))
			return "", xerr.ErrDatabaseError
		}
		user, err = s.userRepo.GetUserByEmail(identifier)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", xerr.ErrInvalidCredentials
			}
			logger.Error("LoginUser: 查询用户失败", zap.Error(err))
			return "", xerr.ErrDatabaseError
		}
	}

	//验证密码
	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return "", xerr.ErrInvalidCredentials
		}
		logger.Error("LoginUser: 密码比对失败", zap.Error(err))
		return "", xerr.ErrInternalServer
	}

	//生成JWT Token，角色写入声明供鉴权中间件使用
	tokenString, err := utils.GenerateToken(
		user.ID,
		user.Username,
		user.Email,
		user.Role,
		s.cfg.JWT.SecretKey,
		s.cfg.JWT.Issuer,
		s.cfg.JWT.ExpiresIn,
	)
	if err != nil {
		logger.Error("LoginUser: 生成 Token 失败", zap.Error(err))
		return "", xerr.ErrInternalServer
	}

	return tokenString, nil
}
