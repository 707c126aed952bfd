package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
)

// GetUserIDFromContext 从 Gin 上下文中获取并验证用户ID
// 如果获取失败或类型不正确，会中止请求并返回错误
func GetUserIDFromContext(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get("userID")
	if !exists {
		xerr.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "User ID not found in context")
		return 0, false
	}
	currentUserID, ok := userID.(uint64)
	if !ok {
		xerr.AbortWithError(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "Invalid user ID type in context")
		return 0, false
	}
	return currentUserID, true
}

// GetOptionalUserFromContext 获取可选的已认证用户信息
// 公开链接端点允许匿名访问，未认证时返回 ok=false，不中止请求
func GetOptionalUserFromContext(c *gin.Context) (userID uint64, username string, ok bool) {
	v, exists := c.Get("userID")
	if !exists {
		return 0, "", false
	}
	userID, idOK := v.(uint64)
	if !idOK {
		return 0, "", false
	}
	username = c.GetString("username")
	return userID, username, true
}

// GetUserRoleFromContext 获取当前用户角色，未设置时返回空字符串
func GetUserRoleFromContext(c *gin.Context) string {
	return c.GetString("userRole")
}
