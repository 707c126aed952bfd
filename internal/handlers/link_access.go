package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/config"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/storage"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/services/link"
	"go.uber.org/zap"
)

// LinkAccessHandler 三个公开访问端点，匿名可达
// 是否放行完全由访问裁决决定，这里只做参数搬运和结果映射
type LinkAccessHandler struct {
	evaluator      link.AccessEvaluator
	storageService storage.StorageService
	cfg            *config.Config
}

func NewLinkAccessHandler(evaluator link.AccessEvaluator, storageService storage.StorageService, cfg *config.Config) *LinkAccessHandler {
	return &LinkAccessHandler{
		evaluator:      evaluator,
		storageService: storageService,
		cfg:            cfg,
	}
}

// evaluate 执行一次访问裁决，失败时写出响应并返回 nil
func (h *LinkAccessHandler) evaluate(c *gin.Context, kind link.AccessKind) *link.Grant {
	linkID := c.Param("link_id")
	if linkID == "" {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "链接标识不能为空")
		return nil
	}

	var principal *link.Principal
	if userID, username, ok := utils.GetOptionalUserFromContext(c); ok {
		principal = &link.Principal{ID: userID, Username: username}
	}
	creds := link.Credentials{
		Password: c.Query("password"),
		Username: c.Query("username"),
	}

	grant, err := h.evaluator.Evaluate(c.Request.Context(), linkID, principal, creds, kind, c.ClientIP())
	if err != nil {
		h.respondAccessError(c, linkID, err)
		return nil
	}
	return grant
}

// respondAccessError 将裁决结果映射为 HTTP 状态码
// 每类拒绝都有独立的状态码与业务码，调用方能区分该补什么
func (h *LinkAccessHandler) respondAccessError(c *gin.Context, linkID string, err error) {
	switch {
	case errors.Is(err, xerr.ErrLinkNotFound):
		xerr.Error(c, http.StatusNotFound, xerr.LinkNotFoundCode, err.Error())
	case errors.Is(err, xerr.ErrLinkExpired):
		xerr.Error(c, http.StatusGone, xerr.LinkExpiredCode, err.Error())
	case errors.Is(err, xerr.ErrLinkLimitReached):
		xerr.Error(c, http.StatusTooManyRequests, xerr.LinkLimitReachedCode, err.Error())
	case errors.Is(err, xerr.ErrLinkCapabilityDenied):
		xerr.Error(c, http.StatusForbidden, xerr.LinkCapabilityDeniedCode, err.Error())
	case errors.Is(err, xerr.ErrLinkLoginRequired):
		xerr.Error(c, http.StatusUnauthorized, xerr.LinkLoginRequiredCode, err.Error())
	case errors.Is(err, xerr.ErrLinkAccessDenied):
		xerr.Error(c, http.StatusForbidden, xerr.LinkAccessDeniedCode, err.Error())
	case errors.Is(err, xerr.ErrLinkCredentialInvalid):
		xerr.Error(c, http.StatusUnauthorized, xerr.LinkCredentialInvalidCode, err.Error())
	default:
		logger.Error("链接访问裁决失败", zap.String("linkID", linkID), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "链接访问失败")
	}
}

// publicLinkView 公开端点返回的链接视图，不暴露允许用户列表等配置细节
func publicLinkView(l *models.Link, f *models.File) gin.H {
	return gin.H{
		"link_id":           l.LinkID,
		"custom_name":       l.CustomName,
		"description":       l.Description,
		"access_type":       l.AccessType,
		"verification_type": l.VerificationType,
		"created_at":        l.CreatedAt,
		"file": gin.H{
			"name":      f.CustomFilename,
			"mime_type": f.MimeType,
			"size":      f.Size,
		},
	}
}

// Info handles the public metadata endpoint.
// @Summary 访问分享链接（元信息）
// @Description 通过链接令牌查看链接与文件元信息，按链接配置可能需要登录或出示凭证
// @Tags 链接访问
// @Produce json
// @Param link_id path string true "链接令牌"
// @Param password query string false "访问口令（password 验证时必填）"
// @Param username query string false "用户名凭证（username 验证时必填）"
// @Success 200 {object} xerr.Response "链接与文件元信息"
// @Failure 401 {object} xerr.Response "需要登录或凭证不正确"
// @Failure 403 {object} xerr.Response "不允许该访问方式或不在允许列表中"
// @Failure 404 {object} xerr.Response "链接不存在或已失效"
// @Failure 410 {object} xerr.Response "链接已过期"
// @Failure 429 {object} xerr.Response "访问次数已达上限"
// @Router /api/v1/links/access/{link_id} [get]
func (h *LinkAccessHandler) Info(c *gin.Context) {
	grant := h.evaluate(c, link.AccessInfo)
	if grant == nil {
		return
	}
	xerr.Success(c, http.StatusOK, "访问成功", publicLinkView(grant.Link, grant.File))
}

// View streams the file inline for in-browser preview.
// @Summary 访问分享链接（在线预览）
// @Tags 链接访问
// @Produce octet-stream
// @Param link_id path string true "链接令牌"
// @Param password query string false "访问口令"
// @Param username query string false "用户名凭证"
// @Success 200 {file} file "文件内容"
// @Failure 403 {object} xerr.Response "链接不允许预览"
// @Failure 404 {object} xerr.Response "链接不存在或已失效"
// @Router /api/v1/links/view/{link_id} [get]
func (h *LinkAccessHandler) View(c *gin.Context) {
	grant := h.evaluate(c, link.AccessView)
	if grant == nil {
		return
	}
	file := grant.File

	obj, err := h.storageService.GetObject(c.Request.Context(), file.OssBucket, file.OssKey)
	if err != nil {
		logger.Error("View: 读取对象失败",
			zap.String("linkID", grant.Link.LinkID),
			zap.String("key", file.OssKey),
			zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.StorageErrorCode, "读取文件内容失败")
		return
	}
	defer obj.Reader.Close()

	encodedName := url.PathEscape(file.CustomFilename)
	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"; filename*=UTF-8''%s`, encodedName, encodedName))
	c.Header("Content-Type", file.MimeType)
	c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))

	if _, err := io.Copy(c.Writer, obj.Reader); err != nil {
		logger.Error("View: 流式传输文件失败", zap.String("linkID", grant.Link.LinkID), zap.Error(err))
	}
}

// Download redirects to a short-lived presigned URL with attachment disposition.
// @Summary 访问分享链接（下载）
// @Tags 链接访问
// @Produce json
// @Param link_id path string true "链接令牌"
// @Param password query string false "访问口令"
// @Param username query string false "用户名凭证"
// @Success 302 "重定向到预签名下载地址"
// @Failure 403 {object} xerr.Response "链接不允许下载"
// @Failure 404 {object} xerr.Response "链接不存在或已失效"
// @Router /api/v1/links/download/{link_id} [get]
func (h *LinkAccessHandler) Download(c *gin.Context) {
	grant := h.evaluate(c, link.AccessDownload)
	if grant == nil {
		return
	}
	file := grant.File

	encodedName := url.PathEscape(file.CustomFilename)
	reqParams := url.Values{}
	reqParams.Set("response-content-disposition",
		fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, encodedName, encodedName))

	expiry := time.Duration(h.cfg.Storage.PresignedURLExpiry) * time.Minute
	presignedURL, err := h.storageService.PresignedGetURL(c.Request.Context(), file.OssBucket, file.OssKey, expiry, reqParams)
	if err != nil {
		logger.Error("Download: 生成预签名URL失败",
			zap.String("linkID", grant.Link.LinkID),
			zap.String("key", file.OssKey),
			zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.StorageErrorCode, "获取文件下载链接失败")
		return
	}

	c.Redirect(http.StatusFound, presignedURL)
}
