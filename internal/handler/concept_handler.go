package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/apperr"
)

// ConceptHandler 负责处理概念相关的 API 请求。
type ConceptHandler struct {
	conceptService service.ConceptService
}

// NewConceptHandler 创建一个新的 ConceptHandler 实例。
func NewConceptHandler(conceptService service.ConceptService) *ConceptHandler {
	return &ConceptHandler{conceptService: conceptService}
}

type updateProgressRequest struct {
	ProgressStatus string `json:"progress_status"`
}

// UpdateProgress 手动设置概念的掌握程度。
func (h *ConceptHandler) UpdateProgress(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "ConceptHandler.UpdateProgress", err)
		return
	}
	var req updateProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "ConceptHandler.UpdateProgress", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	concept, err := h.conceptService.UpdateProgress(c.Request.Context(), id, req.ProgressStatus)
	if err != nil {
		fail(c, "ConceptHandler.UpdateProgress", err)
		return
	}
	success(c, http.StatusOK, "掌握程度更新成功", concept)
}

func (h *ConceptHandler) Delete(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "ConceptHandler.Delete", err)
		return
	}
	if err := h.conceptService.Delete(c.Request.Context(), id); err != nil {
		fail(c, "ConceptHandler.Delete", err)
		return
	}
	success(c, http.StatusOK, "概念删除成功", nil)
}

// Search 按关键词（以及可选的语义向量）检索概念。
func (h *ConceptHandler) Search(c *gin.Context) {
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.conceptService.Search(c.Request.Context(), c.Query("q"), size)
	if err != nil {
		fail(c, "ConceptHandler.Search", err)
		return
	}
	success(c, http.StatusOK, "检索成功", hits)
}
