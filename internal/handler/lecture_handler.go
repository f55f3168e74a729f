package handler

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/apperr"
)

// LectureHandler 负责处理讲义上传与概念抽取相关的 API 请求。
type LectureHandler struct {
	lectureService service.LectureService
	conceptService service.ConceptService
	maxNotesBytes  int64
}

// NewLectureHandler 创建一个新的 LectureHandler 实例。
func NewLectureHandler(lectureService service.LectureService, conceptService service.ConceptService, maxNotesBytes int64) *LectureHandler {
	return &LectureHandler{
		lectureService: lectureService,
		conceptService: conceptService,
		maxNotesBytes:  maxNotesBytes,
	}
}

// Create 处理 multipart 上传：courseId、name、file。
func (h *LectureHandler) Create(c *gin.Context) {
	courseID, err := strconv.ParseUint(strings.TrimSpace(c.PostForm("courseId")), 10, 32)
	if err != nil || courseID == 0 {
		fail(c, "LectureHandler.Create", fmt.Errorf("%w: courseId must be a positive integer", apperr.ErrInvalidInput))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		fail(c, "LectureHandler.Create", fmt.Errorf("%w: notes file is required", apperr.ErrInvalidInput))
		return
	}
	if fileHeader.Size > h.maxNotesBytes {
		fail(c, "LectureHandler.Create", fmt.Errorf("%w: notes file exceeds %d bytes", apperr.ErrInvalidInput, h.maxNotesBytes))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		fail(c, "LectureHandler.Create", fmt.Errorf("%w: cannot open uploaded file", apperr.ErrInvalidInput))
		return
	}
	defer file.Close()
	content, err := io.ReadAll(io.LimitReader(file, h.maxNotesBytes+1))
	if err != nil {
		fail(c, "LectureHandler.Create", err)
		return
	}

	result, err := h.lectureService.Create(c.Request.Context(), service.LectureUpload{
		CourseID:    uint(courseID),
		Name:        c.PostForm("name"),
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		fail(c, "LectureHandler.Create", err)
		return
	}
	message := "讲义上传成功"
	if result.ConceptsGenerationError != "" {
		message = "讲义上传成功，但概念抽取失败"
	}
	success(c, http.StatusCreated, message, result)
}

// Delete 删除讲义及其概念。
func (h *LectureHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "LectureHandler.Delete", err)
		return
	}
	if err := h.lectureService.Delete(c.Request.Context(), id); err != nil {
		fail(c, "LectureHandler.Delete", err)
		return
	}
	success(c, http.StatusOK, "讲义删除成功", nil)
}

// ListConcepts 返回讲义下的概念，最近复习的在前。
func (h *LectureHandler) ListConcepts(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "LectureHandler.ListConcepts", err)
		return
	}
	concepts, err := h.conceptService.ListByLecture(c.Request.Context(), id)
	if err != nil {
		fail(c, "LectureHandler.ListConcepts", err)
		return
	}
	success(c, http.StatusOK, "获取概念列表成功", concepts)
}

// RegenerateConcepts 为抽取失败的讲义重新抽取概念。投递到队列时返回 202。
func (h *LectureHandler) RegenerateConcepts(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "LectureHandler.RegenerateConcepts", err)
		return
	}
	result, err := h.lectureService.RegenerateConcepts(c.Request.Context(), id)
	if err != nil {
		fail(c, "LectureHandler.RegenerateConcepts", err)
		return
	}
	if result.Queued {
		success(c, http.StatusAccepted, "概念抽取任务已提交", result)
		return
	}
	success(c, http.StatusOK, "概念抽取成功", result)
}

// Download 返回归档笔记文件的临时下载链接。
func (h *LectureHandler) Download(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "LectureHandler.Download", err)
		return
	}
	url, err := h.lectureService.DownloadURL(c.Request.Context(), id)
	if err != nil {
		fail(c, "LectureHandler.Download", err)
		return
	}
	success(c, http.StatusOK, "文件下载链接生成成功", gin.H{"download_url": url})
}
