package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/log"
	"super-feynman-go/pkg/retry"
	"super-feynman-go/pkg/speech"
)

// SpeechGateway 将录音转写为文本。
type SpeechGateway interface {
	Transcribe(ctx context.Context, audio []byte, fileName, mimeHint string) (string, error)
}

type speechGateway struct {
	client speech.Client
	policy retry.Policy
}

// NewSpeechGateway 创建一个新的 SpeechGateway 实例。
func NewSpeechGateway(client speech.Client, policy retry.Policy) SpeechGateway {
	return &speechGateway{client: client, policy: policy}
}

func (g *speechGateway) Transcribe(ctx context.Context, audio []byte, fileName, mimeHint string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("%w: audio is empty", apperr.ErrInvalidInput)
	}
	log.Infof("[SpeechGateway.Transcribe] 开始转写, 文件: %s, 大小: %d 字节", fileName, len(audio))

	text, err := retry.Do(ctx, g.policy, retry.IsRetryable, func(ctx context.Context) (string, error) {
		return g.client.Transcribe(ctx, audio, fileName, mimeHint)
	})
	if err != nil {
		log.Errorf("[SpeechGateway.Transcribe] 转写失败: %v", err)
		return "", translateSpeechError(err)
	}
	return strings.TrimSpace(text), nil
}

func translateSpeechError(err error) error {
	var se *speech.StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: transcription: status %d", apperr.ErrInvalidCredentials, se.StatusCode)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: transcription: retries exhausted", apperr.ErrRateLimited)
		}
		return fmt.Errorf("%w: status %d", apperr.ErrTranscriptionFailed, se.StatusCode)
	}
	return fmt.Errorf("%w: %v", apperr.ErrTranscriptionFailed, err)
}
