package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"super-feynman-go/internal/model"
	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 跨域由 CORS 中间件控制
	},
}

// wsRequest 是客户端发来的帧：{"type":"message","content":...} 或 {"type":"end"}。
type wsRequest struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type wsResponse struct {
	Type    string      `json:"type"`
	Content string      `json:"content,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// ReviewSocketHandler 通过 WebSocket 驱动同一个复习会话状态机。
type ReviewSocketHandler struct {
	reviewService service.ReviewService
}

// NewReviewSocketHandler 创建一个新的 ReviewSocketHandler 实例。
func NewReviewSocketHandler(reviewService service.ReviewService) *ReviewSocketHandler {
	return &ReviewSocketHandler{reviewService: reviewService}
}

// Handle 处理一个传入的 WebSocket 连接。会话不存在或已结束时在升级前返回错误。
func (h *ReviewSocketHandler) Handle(c *gin.Context) {
	id, err := parseID(c, "id")
	if err != nil {
		fail(c, "ReviewSocketHandler.Handle", err)
		return
	}
	session, err := h.reviewService.GetSession(c.Request.Context(), id)
	if err != nil {
		fail(c, "ReviewSocketHandler.Handle", err)
		return
	}
	if session.State != model.SessionActive {
		fail(c, "ReviewSocketHandler.Handle", fmt.Errorf("%w: review session %d is %s", apperr.ErrInvalidState, id, session.State))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[ReviewSocketHandler] WebSocket 连接已建立, sessionID: %d", id)

	ctx := c.Request.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ReviewSocketHandler] 读取消息失败, sessionID: %d, error: %v", id, err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			writeWSError(conn, fmt.Errorf("%w: frame is not valid JSON", apperr.ErrInvalidInput))
			continue
		}

		switch req.Type {
		case "message":
			turn, err := h.reviewService.SendMessage(ctx, id, req.Content)
			if err != nil {
				writeWSError(conn, err)
				continue
			}
			writeWS(conn, wsResponse{Type: "reply", Content: turn.Reply})
		case "end":
			result, err := h.reviewService.EndSession(ctx, id)
			if err != nil {
				writeWSError(conn, err)
				continue
			}
			writeWS(conn, wsResponse{Type: "feedback", Data: result})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(time.Second))
			log.Infof("[ReviewSocketHandler] 会话已结束, 关闭连接, sessionID: %d", id)
			return
		default:
			writeWSError(conn, fmt.Errorf("%w: unknown frame type %q", apperr.ErrInvalidInput, req.Type))
		}
	}
}

func writeWS(conn *websocket.Conn, resp wsResponse) {
	if err := conn.WriteJSON(resp); err != nil {
		log.Warnf("[ReviewSocketHandler] 写入消息失败: %v", err)
	}
}

func writeWSError(conn *websocket.Conn, err error) {
	if apperr.HTTPStatus(err) >= http.StatusInternalServerError {
		log.Errorf("[ReviewSocketHandler] 处理消息失败: %v", err)
	}
	writeWS(conn, wsResponse{Type: "error", Error: apperr.Kind(err), Message: apperr.Message(err)})
}
