package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"super-feynman-go/internal/service"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
)

// TranscribeHandler 负责处理录音转写请求。
type TranscribeHandler struct {
	transcribeService service.TranscribeService
	tempDir           string
	maxAudioBytes     int64
}

// NewTranscribeHandler 创建一个新的 TranscribeHandler 实例。
func NewTranscribeHandler(transcribeService service.TranscribeService, tempDir string, maxAudioBytes int64) *TranscribeHandler {
	return &TranscribeHandler{
		transcribeService: transcribeService,
		tempDir:           tempDir,
		maxAudioBytes:     maxAudioBytes,
	}
}

// Transcribe 接收 multipart 字段 audio，暂存到本地后转写。
func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		fail(c, "TranscribeHandler.Transcribe", fmt.Errorf("%w: audio file is required", apperr.ErrInvalidInput))
		return
	}
	if !service.IsAudioFile(fileHeader.Filename) {
		fail(c, "TranscribeHandler.Transcribe", fmt.Errorf("%w: unsupported audio file type %q", apperr.ErrInvalidInput, filepath.Ext(fileHeader.Filename)))
		return
	}
	if fileHeader.Size > h.maxAudioBytes {
		fail(c, "TranscribeHandler.Transcribe", fmt.Errorf("%w: audio file exceeds %d bytes", apperr.ErrInvalidInput, h.maxAudioBytes))
		return
	}

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		fail(c, "TranscribeHandler.Transcribe", fmt.Errorf("创建临时目录失败: %w", err))
		return
	}
	path := filepath.Join(h.tempDir, uuid.NewString()+strings.ToLower(filepath.Ext(fileHeader.Filename)))
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			log.Warnf("[TranscribeHandler] 删除临时录音文件失败, path: %s, error: %v", path, rmErr)
		}
		fail(c, "TranscribeHandler.Transcribe", fmt.Errorf("保存录音文件失败: %w", err))
		return
	}

	// 从这里开始由 TranscribeService 负责删除临时文件
	text, err := h.transcribeService.Transcribe(c.Request.Context(), path, fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		fail(c, "TranscribeHandler.Transcribe", err)
		return
	}
	success(c, http.StatusOK, "转写成功", gin.H{"text": text})
}
