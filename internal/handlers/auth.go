package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/services/admin"
)

type AuthHandler struct {
	authService admin.AuthService
}

func NewAuthHandler(authService admin.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=255"`
	Email    string `json:"email" binding:"required,email"`
}

// LoginRequest 登录请求结构体
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"` // 可以是用户名或邮箱
	Password   string `json:"password" binding:"required"`
}

// Register handles user registration.
// @Summary 用户注册
// @Description 用户注册接口
// @Tags 用户认证
// @Accept json
// @Produce json
// @Param data body RegisterRequest true "注册信息"
// @Success 200 {object} xerr.Response "注册成功"
// @Failure 400 {object} xerr.Response "参数错误"
// @Failure 409 {object} xerr.Response "用户名或邮箱已存在"
// @Router /api/v1/auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	user, err := h.authService.RegisterUser(req.Username, req.Password, req.Email)
	if err != nil {
		if errors.Is(err, xerr.ErrUserAlreadyExists) {
			xerr.Error(c, http.StatusConflict, xerr.UserAlreadyExistsCode, err.Error())
		} else if errors.Is(err, xerr.ErrEmailAlreadyExists) {
			xerr.Error(c, http.StatusConflict, xerr.EmailAlreadyExistsCode, err.Error())
		} else {
			xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "注册失败")
		}
		return
	}

	xerr.Success(c, http.StatusOK, "注册成功", gin.H{
		"user_id":  user.ID,
		"username": user.Username,
		"email":    user.Email,
	})
}

// Login handles user login.
// @Summary 用户登录
// @Description 用户登录接口，identifier 可以是用户名或邮箱
// @Tags 用户认证
// @Accept json
// @Produce json
// @Param data body LoginRequest true "登录信息"
// @Success 200 {object} xerr.Response "登录成功，返回token"
// @Failure 400 {object} xerr.Response "参数错误"
// @Failure 401 {object} xerr.Response "用户名或密码错误"
// @Router /api/v1/auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	tokenString, err := h.authService.LoginUser(req.Identifier, req.Password)
	if err != nil {
		if errors.Is(err, xerr.ErrInvalidCredentials) {
			xerr.Error(c, http.StatusUnauthorized, xerr.InvalidCredentialsCode, err.Error())
		} else {
			xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "登录失败")
		}
		return
	}

	xerr.Success(c, http.StatusOK, "登录成功", gin.H{"token": tokenString})
}
