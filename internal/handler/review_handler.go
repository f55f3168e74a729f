package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/apperr"
)

// ReviewHandler 负责处理复习会话的 HTTP 请求。
type ReviewHandler struct {
	reviewService service.ReviewService
}

// NewReviewHandler 创建一个新的 ReviewHandler 实例。
func NewReviewHandler(reviewService service.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviewService: reviewService}
}

type startSessionRequest struct {
	ConceptID     int64  `json:"concept_id"`
	AudienceLevel string `json:"audience_level"`
}

type sendMessageRequest struct {
	UserMessage string `json:"user_message"`
}

// Start 开始一个新的复习会话，返回会话 ID 与 AI 的开场白。
func (h *ReviewHandler) Start(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "ReviewHandler.Start", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	if req.ConceptID <= 0 {
		fail(c, "ReviewHandler.Start", fmt.Errorf("%w: invalid concept id", apperr.ErrInvalidInput))
		return
	}
	session, opener, err := h.reviewService.StartSession(c.Request.Context(), uint(req.ConceptID), req.AudienceLevel)
	if err != nil {
		fail(c, "ReviewHandler.Start", err)
		return
	}
	success(c, http.StatusCreated, "复习会话已开始", gin.H{
		"session_id":      session.ID,
		"initial_message": opener,
	})
}

// Get 返回会话详情，包括完整历史与反馈。
func (h *ReviewHandler) Get(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "ReviewHandler.Get", err)
		return
	}
	session, err := h.reviewService.GetSession(c.Request.Context(), id)
	if err != nil {
		fail(c, "ReviewHandler.Get", err)
		return
	}
	success(c, http.StatusOK, "获取会话成功", session)
}

// SendMessage 追加学习者的一次讲解，返回 AI 听众的回复。
func (h *ReviewHandler) SendMessage(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "ReviewHandler.SendMessage", err)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, "ReviewHandler.SendMessage", fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}
	turn, err := h.reviewService.SendMessage(c.Request.Context(), id, req.UserMessage)
	if err != nil {
		fail(c, "ReviewHandler.SendMessage", err)
		return
	}
	success(c, http.StatusOK, "success", gin.H{"ai_response": turn.Reply})
}

// End 结束会话，返回反馈与掌握程度变化。
func (h *ReviewHandler) End(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "ReviewHandler.End", err)
		return
	}
	result, err := h.reviewService.EndSession(c.Request.Context(), id)
	if err != nil {
		fail(c, "ReviewHandler.End", err)
		return
	}
	success(c, http.StatusOK, "复习会话已结束", result)
}
