package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
)

func parseToken(tokenString string, cfg *config.Config) (*utils.Claims, error) {
	claims := &utils.Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(cfg.JWT.SecretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

func setUserContext(c *gin.Context, claims *utils.Claims) {
	c.Set("userID", claims.UserID)
	c.Set("username", claims.Username)
	c.Set("email", claims.Email)
	c.Set("userRole", claims.Role)
}

// AuthMiddleware 强制认证，Token 缺失或无效时中止请求
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从请求头获取 Token
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Authorization header is required")
			return
		}

		// Token 格式通常是 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.UnauthorizedCode, "Invalid Authorization header format")
			return
		}

		// 2. 解析和验证 Token
		claims, err := parseToken(parts[1], cfg)
		if err != nil {
			xerr.AbortWithError(c, http.StatusUnauthorized, xerr.TokenInvalidCode, "Invalid or malformed token: "+err.Error())
			return
		}

		// 3. 将用户信息存储到 Gin Context 中，以便后续 Handler 使用
		setUserContext(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware 可选认证，公开链接端点使用
// 带了有效 Token 就识别身份，没带或无效则按匿名访问放行；
// 是否要求登录由访问裁决按链接范围决定，而不是在这里
func OptionalAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.Next()
			return
		}

		claims, err := parseToken(parts[1], cfg)
		if err != nil {
			// 无效 Token 按匿名处理，不中止
			c.Next()
			return
		}

		setUserContext(c, claims)
		c.Next()
	}
}

// RequireSuperuser 仅超级管理员可通过，置于 AuthMiddleware 之后
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if utils.GetUserRoleFromContext(c) != "superuser" {
			xerr.AbortWithError(c, http.StatusForbidden, xerr.PermissionDeniedCode, "Superuser role required")
			return
		}
		c.Next()
	}
}
