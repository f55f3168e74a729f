package service

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"super-feynman-go/internal/gateway"
	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
)

// audioExts 是可转写的录音格式。
var audioExts = map[string]bool{
	".webm": true, ".mp3": true, ".wav": true, ".m4a": true,
	".mp4": true, ".mpeg": true, ".mpga": true, ".ogg": true,
}

// TranscribeService 将暂存在本地的录音文件转写为文字。
type TranscribeService interface {
	// Transcribe 无论成功与否都会删除 path 指向的临时文件。
	Transcribe(ctx context.Context, path, fileName, mimeType string) (string, error)
}

type transcribeService struct {
	speech   gateway.SpeechGateway
	maxBytes int64
}

// NewTranscribeService 创建一个新的 TranscribeService 实例。
func NewTranscribeService(speech gateway.SpeechGateway, maxBytes int64) TranscribeService {
	return &transcribeService{speech: speech, maxBytes: maxBytes}
}

// IsAudioFile 判断文件名后缀是否为支持的录音格式。
func IsAudioFile(fileName string) bool {
	return audioExts[strings.ToLower(filepath.Ext(fileName))]
}

func (s *transcribeService) Transcribe(ctx context.Context, path, fileName, mimeType string) (string, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warnf("[TranscribeService] 删除临时录音文件失败, path: %s, error: %v", path, err)
		}
	}()

	if !IsAudioFile(fileName) {
		return "", fmt.Errorf("%w: unsupported audio file type %q", apperr.ErrInvalidInput, filepath.Ext(fileName))
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("读取临时录音文件失败: %w", err)
	}
	if info.Size() > s.maxBytes {
		return "", fmt.Errorf("%w: audio file exceeds %d bytes", apperr.ErrInvalidInput, s.maxBytes)
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("读取临时录音文件失败: %w", err)
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(fileName)))
	}

	text, err := s.speech.Transcribe(ctx, audio, fileName, mimeType)
	if err != nil {
		log.Errorf("[TranscribeService] 语音转写失败, file: %s, error: %v", fileName, err)
		return "", err
	}
	log.Infof("[TranscribeService] 转写完成, file: %s, 字节数: %d, 文本长度: %d", fileName, len(audio), len(text))
	return text, nil
}
