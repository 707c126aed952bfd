package router

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 路由注册不应依赖任何外部连接，仅做装配
func buildTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	return InitRouter(NewRouterConfig(nil, nil, nil, nil, nil, &config.Config{}))
}

func TestRouteShapes(t *testing.T) {
	router := buildTestRouter(t)

	registered := make(map[string]bool)
	for _, r := range router.Routes() {
		registered[r.Method+" "+r.Path] = true
	}

	expected := []string{
		// 公开访问端点
		"GET /api/v1/links/access/:link_id",
		"GET /api/v1/links/view/:link_id",
		"GET /api/v1/links/download/:link_id",
		// 链接管理
		"POST /api/v1/links",
		"GET /api/v1/links",
		"GET /api/v1/links/recent",
		"GET /api/v1/links/:id",
		"PUT /api/v1/links/:id",
		"DELETE /api/v1/links/:id",
		"PATCH /api/v1/links/:id/toggle",
		"PATCH /api/v1/links/:id/favorite",
		"GET /api/v1/links/:id/logs",
		"GET /api/v1/links/:id/logs/export",
		"GET /api/v1/links/admin/all",
	}
	for _, route := range expected {
		assert.True(t, registered[route], "缺少路由 %s", route)
	}

	// 状态切换不再暴露 POST 形式
	assert.False(t, registered["POST /api/v1/links/:id/toggle"])
	assert.False(t, registered["POST /api/v1/links/:id/favorite"])
	assert.False(t, registered["GET /api/v1/admin/links"])

	require.NotEmpty(t, registered)
}
