package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/services/explorer"
	"go.uber.org/zap"
)

type FileHandler struct {
	fileService explorer.FileService
}

func NewFileHandler(fileService explorer.FileService) *FileHandler {
	return &FileHandler{fileService: fileService}
}

// Upload handles file upload.
// @Summary 上传文件
// @Tags 文件
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "文件内容"
// @Param custom_name formData string false "自定义文件名"
// @Success 200 {object} xerr.Response "上传成功"
// @Failure 400 {object} xerr.Response "参数错误"
// @Router /api/v1/files/upload [post]
func (h *FileHandler) Upload(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "缺少上传文件: "+err.Error())
		return
	}
	customName := c.PostForm("custom_name")

	file, err := h.fileService.UploadFile(c.Request.Context(), userID, fileHeader, customName, c.ClientIP())
	if err != nil {
		if errors.Is(err, xerr.ErrInvalidParams) {
			xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, err.Error())
		} else if errors.Is(err, xerr.ErrStorageError) {
			xerr.Error(c, http.StatusInternalServerError, xerr.StorageErrorCode, err.Error())
		} else {
			logger.Error("Upload: 上传文件失败", zap.Uint64("userID", userID), zap.Error(err))
			xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "上传文件失败")
		}
		return
	}

	xerr.Success(c, http.StatusOK, "文件上传成功", gin.H{"file": file})
}

// List returns the authenticated user's files.
// @Summary 文件列表
// @Tags 文件
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} xerr.Response "文件列表"
// @Router /api/v1/files [get]
func (h *FileHandler) List(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	files, total, err := h.fileService.ListUserFiles(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		logger.Error("List: 获取文件列表失败", zap.Uint64("userID", userID), zap.Error(err))
		xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "获取文件列表失败")
		return
	}

	xerr.Success(c, http.StatusOK, "获取文件列表成功", gin.H{
		"files": files,
		"total": total,
	})
}

// Download streams a file's content to its owner.
// @Summary 下载文件
// @Tags 文件
// @Produce octet-stream
// @Security BearerAuth
// @Param file_id path int true "文件 ID"
// @Success 200 {file} file "文件内容"
// @Failure 404 {object} xerr.Response "文件不存在"
// @Router /api/v1/files/{file_id}/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	fileID, err := strconv.ParseUint(c.Param("file_id"), 10, 64)
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "文件ID格式无效")
		return
	}

	obj, file, err := h.fileService.DownloadFile(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), fileID)
	if err != nil {
		if errors.Is(err, xerr.ErrFileNotFound) {
			xerr.Error(c, http.StatusNotFound, xerr.FileNotFoundCode, err.Error())
		} else if errors.Is(err, xerr.ErrPermissionDenied) {
			xerr.Error(c, http.StatusForbidden, xerr.PermissionDeniedCode, err.Error())
		} else {
			logger.Error("Download: 下载文件失败", zap.Uint64("fileID", fileID), zap.Error(err))
			xerr.Error(c, http.StatusInternalServerError, xerr.StorageErrorCode, "下载文件失败")
		}
		return
	}
	defer obj.Reader.Close()

	encodedName := url.PathEscape(file.OriginalFilename)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, encodedName, encodedName))
	c.Header("Content-Type", file.MimeType)
	c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))

	if _, err := io.Copy(c.Writer, obj.Reader); err != nil {
		logger.Error("Download: 流式传输文件失败", zap.Uint64("fileID", fileID), zap.Error(err))
	}
}

// Delete removes a file and its stored object.
// @Summary 删除文件
// @Tags 文件
// @Security BearerAuth
// @Param file_id path int true "文件 ID"
// @Success 204 "删除成功"
// @Failure 404 {object} xerr.Response "文件不存在"
// @Router /api/v1/files/{file_id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		return
	}
	fileID, err := strconv.ParseUint(c.Param("file_id"), 10, 64)
	if err != nil {
		xerr.Error(c, http.StatusBadRequest, xerr.InvalidParamsCode, "文件ID格式无效")
		return
	}

	err = h.fileService.DeleteFile(c.Request.Context(), userID, utils.GetUserRoleFromContext(c), fileID, c.ClientIP())
	if err != nil {
		if errors.Is(err, xerr.ErrFileNotFound) {
			xerr.Error(c, http.StatusNotFound, xerr.FileNotFoundCode, err.Error())
		} else if errors.Is(err, xerr.ErrPermissionDenied) {
			xerr.Error(c, http.StatusForbidden, xerr.PermissionDeniedCode, err.Error())
		} else {
			logger.Error("Delete: 删除文件失败", zap.Uint64("fileID", fileID), zap.Error(err))
			xerr.Error(c, http.StatusInternalServerError, xerr.InternalServerErrorCode, "删除文件失败")
		}
		return
	}

	c.Status(http.StatusNoContent)
}
