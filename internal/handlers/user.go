package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/services/admin"
)

type UserHandler struct {
	userService admin.UserService
}

func NewUserHandler(userService admin.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetProfile returns the authenticated user's profile.
// @Summary 获取当前用户信息
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} xerr.Response "用户信息"
// @Failure 404 {object} xerr.Response "用户不存在"
// @Router /api/v1/users/me [get]
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	user, err := h.userService.GetUserProfile(userID)
	if err != nil {
		if errors.Is(err, xerr.ErrUserNotFound) {
			xerr.Error(c, http.StatusNotFound, xerr.UserNotFoundCode, err.Error())
		} else {
			xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取用户信息失败")
		}
		return
	}

	xerr.Success(c, http.StatusOK, "获取用户信息成功", gin.H{"user": user})
}

// ListUsers returns a paged user list for the allowed-users picker.
// @Summary 用户列表
// @Description 创建 selected 范围链接时选择允许用户
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Param search query string false "按用户名或邮箱搜索"
// @Success 200 {object} xerr.Response "用户列表"
// @Router /api/v1/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	search := c.Query("search")

	users, total, err := h.userService.ListUsers(page, pageSize, search)
	if err != nil {
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取用户列表失败")
		return
	}

	xerr.Success(c, http.StatusOK, "获取用户列表成功", gin.H{
		"users": users,
		"total": total,
	})
}

// GetActivities returns the authenticated user's activity feed.
// @Summary 获取当前用户的操作流水
// @Tags 用户
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} xerr.Response "操作流水"
// @Router /api/v1/users/me/activities [get]
func (h *UserHandler) GetActivities(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	activities, total, err := h.userService.GetUserActivities(userID, page, pageSize)
	if err != nil {
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取操作流水失败")
		return
	}

	xerr.Success(c, http.StatusOK, "获取操作流水成功", gin.H{
		"activities": activities,
		"total":      total,
	})
}
