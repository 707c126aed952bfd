package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/qiyihan/go-linkhub/internal/services/link"
	"go.uber.org/zap"
)

type LinkHandler struct {
	linkService link.LinkService
	cfg         *config.Config
}

func NewLinkHandler(linkService link.LinkService, cfg *config.Config) *LinkHandler {
	return &LinkHandler{
		linkService: linkService,
		cfg:         cfg,
	}
}

// linkURL 拼出对外分享的完整 URL
func (h *LinkHandler) linkURL(l *models.Link) string {
	return fmt.Sprintf("%s/links/%s", h.cfg.Server.BaseURL, l.LinkID)
}

// respondLinkError 统一映射管理面的链接错误
func respondLinkError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, xerr.ErrLinkNotFound):
		xerr.Error(c, http.StatusNotFound, xerr.LinkNotFoundCode, err.Error())
	case errors.Is(err, xerr.ErrPermissionDenied):
		xerr.Error(c, http.StatusForbidden, xerr.PermissionDeniedCode, err.Error())
	case errors.Is(err, xerr.ErrLinkNameTaken):
		xerr.Error(c, http.StatusConflict, xerr.LinkNameTakenCode, err.Error())
	case errors.Is(err, xerr.ErrLinkConfigInvalid):
		xerr.Error(c, http.StatusBadRequest, xerr.LinkConfigInvalidCode, err.Error())
	case errors.Is(err, xerr.ErrFileNotFound):
		xerr.Error(c, http.StatusNotFound, xerr.FileNotFoundCode, err.Error())
	default:
		logger.Error(op+": 操作失败", zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, op+"失败")
	}
}

// parseLinkID 解析路径中的链接主键
func parseLinkID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "链接ID格式无效")
		return 0, false
	}
	return id, true
}

// parseListQuery 解析列表查询参数
func parseListQuery(c *gin.Context) repositories.LinkListQuery {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	q := repositories.LinkListQuery{
		Page:      page,
		PageSize:  pageSize,
		Search:    c.Query("search"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	if v, ok := c.GetQuery("active"); ok {
		active := v == "true"
		q.Active = &active
	}
	if v, ok := c.GetQuery("favorite"); ok {
		favorite := v == "true"
		q.Favorite = &favorite
	}
	return q
}

// Create handles link creation.
// @Summary 创建分享链接
// @Description 为指定文件创建分享链接，可配置过期策略、访问上限、验证方式、访问范围与访问能力
// @Tags 分享链接
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body link.CreateLinkRequest true "链接配置"
// @Success 200 {object} xerr.Response "创建成功"
// @Failure 400 {object} xerr.Response "链接配置不合法"
// @Failure 404 {object} xerr.Response "文件不存在"
// @Failure 409 {object} xerr.Response "自定义名称已被占用"
// @Router /api/v1/links [post]
func (h *LinkHandler) Create(c *gin.Context) {
	var req link.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	created, err := h.linkService.CreateLink(c.Request.Context(), userID, &req, c.ClientIP())
	if err != nil {
		respondLinkError(c, err, "创建分享链接")
		return
	}

	xerr.Success(c, http.StatusOK, "分享链接创建成功", gin.H{
		"link":     created,
		"link_url": h.linkURL(created),
	})
}

// Get returns one link's full configuration for its owner.
// @Summary 获取链接详情
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Success 200 {object} xerr.Response "链接详情"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Router /api/v1/links/{id} [get]
func (h *LinkHandler) Get(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}

	l, err := h.linkService.GetLink(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id)
	if err != nil {
		respondLinkError(c, err, "获取链接详情")
		return
	}

	xerr.Success(c, http.StatusOK, "获取链接详情成功", gin.H{
		"link":     l,
		"link_url": h.linkURL(l),
	})
}

// Update handles partial link updates.
// @Summary 更新分享链接
// @Tags 分享链接
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Param request body link.UpdateLinkRequest true "要更新的字段"
// @Success 200 {object} xerr.Response "更新成功"
// @Failure 400 {object} xerr.Response "链接配置不合法"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Failure 409 {object} xerr.Response "自定义名称已被占用"
// @Router /api/v1/links/{id} [put]
func (h *LinkHandler) Update(c *gin.Context) {
	var req link.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "请求参数解析失败: "+err.Error())
		return
	}

	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}

	updated, err := h.linkService.UpdateLink(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id, &req, c.ClientIP())
	if err != nil {
		respondLinkError(c, err, "更新分享链接")
		return
	}

	xerr.Success(c, http.StatusOK, "分享链接更新成功", gin.H{"link": updated})
}

// Delete removes a link permanently. Access logs are retained.
// @Summary 删除分享链接
// @Tags 分享链接
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Success 204 "删除成功"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Router /api/v1/links/{id} [delete]
func (h *LinkHandler) Delete(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}

	if err := h.linkService.DeleteLink(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id, c.ClientIP()); err != nil {
		respondLinkError(c, err, "删除分享链接")
		return
	}

	c.Status(http.StatusNoContent)
}

// ToggleActive flips the link's enabled state.
// @Summary 切换链接启用状态
// @Description 停用的链接对外表现为不存在，重新启用后恢复访问
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Success 200 {object} xerr.Response "切换成功"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Router /api/v1/links/{id}/toggle [patch]
func (h *LinkHandler) ToggleActive(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}

	updated, err := h.linkService.ToggleActive(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id)
	if err != nil {
		respondLinkError(c, err, "切换链接状态")
		return
	}

	xerr.Success(c, http.StatusOK, "链接状态切换成功", gin.H{"link": updated})
}

// ToggleFavorite flips the link's favorite flag.
// @Summary 切换链接收藏状态
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Success 200 {object} xerr.Response "切换成功"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Router /api/v1/links/{id}/favorite [patch]
func (h *LinkHandler) ToggleFavorite(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}

	updated, err := h.linkService.ToggleFavorite(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id)
	if err != nil {
		respondLinkError(c, err, "切换链接收藏")
		return
	}

	xerr.Success(c, http.StatusOK, "链接收藏切换成功", gin.H{"link": updated})
}

// List returns the authenticated user's links.
// @Summary 我的链接列表
// @Description 支持分页、搜索（启用 Elasticsearch 时走全文索引）、启用/收藏过滤与排序
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Param search query string false "按名称或描述搜索"
// @Param active query bool false "按启用状态过滤"
// @Param favorite query bool false "按收藏状态过滤"
// @Param sort_by query string false "排序字段: custom_name/access_count/created_at/updated_at"
// @Param sort_order query string false "排序方向: asc/desc"
// @Success 200 {object} xerr.Response "链接列表"
// @Router /api/v1/links [get]
func (h *LinkHandler) List(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	links, total, err := h.linkService.ListUserLinks(c.Request.Context(), userID, parseListQuery(c))
	if err != nil {
		logger.Error("List: 获取链接列表失败", zap.Uint64("userID", userID), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取链接列表失败")
		return
	}

	xerr.Success(c, http.StatusOK, "获取链接列表成功", gin.H{
		"links": links,
		"total": total,
	})
}

// Recent returns the user's most recently created links.
// @Summary 最近创建的链接
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param limit query int false "数量上限" default(10)
// @Success 200 {object} xerr.Response "链接列表"
// @Router /api/v1/links/recent [get]
func (h *LinkHandler) Recent(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	links, err := h.linkService.RecentLinks(c.Request.Context(), userID, limit)
	if err != nil {
		logger.Error("Recent: 获取最近链接失败", zap.Uint64("userID", userID), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取最近链接失败")
		return
	}

	xerr.Success(c, http.StatusOK, "获取最近链接成功", gin.H{"links": links})
}

// AdminList returns all links across users. Superuser only.
// @Summary 全部链接列表（管理端）
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} xerr.Response "链接列表"
// @Failure 403 {object} xerr.Response "需要超级管理员权限"
// @Router /api/v1/links/admin/all [get]
func (h *LinkHandler) AdminList(c *gin.Context) {
	links, total, err := h.linkService.AdminListLinks(c.Request.Context(), parseListQuery(c))
	if err != nil {
		logger.Error("AdminList: 获取链接列表失败", zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取链接列表失败")
		return
	}

	xerr.Success(c, http.StatusOK, "获取链接列表成功", gin.H{
		"links": links,
		"total": total,
	})
}

// AccessLogs returns a link's access log entries.
// @Summary 链接访问日志
// @Tags 分享链接
// @Produce json
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} xerr.Response "访问日志"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Router /api/v1/links/{id}/logs [get]
func (h *LinkHandler) AccessLogs(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	logs, total, err := h.linkService.GetAccessLogs(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id, page, pageSize)
	if err != nil {
		respondLinkError(c, err, "获取访问日志")
		return
	}

	xerr.Success(c, http.StatusOK, "获取访问日志成功", gin.H{
		"logs":  logs,
		"total": total,
	})
}

// ExportLogs streams the link's full access log as gzip-compressed CSV.
// @Summary 导出链接访问日志
// @Description 以 gzip 压缩的 CSV 形式导出链接的全部访问日志
// @Tags 分享链接
// @Produce application/gzip
// @Security BearerAuth
// @Param id path int true "链接 ID"
// @Success 200 {file} file "导出文件"
// @Failure 404 {object} xerr.Response "链接不存在"
// @Router /api/v1/links/{id}/logs/export [get]
func (h *LinkHandler) ExportLogs(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	id, ok := parseLinkID(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.linkService.ExportAccessLogs(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), id, &buf); err != nil {
		respondLinkError(c, err, "导出访问日志")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="link_%d_access_logs.csv.gz"`, id))
	c.Data(http.StatusOK, "application/gzip", buf.Bytes())
}
