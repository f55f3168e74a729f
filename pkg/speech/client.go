// Package speech provides a client for OpenAI-compatible audio transcription APIs.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"super-feynman-go/internal/config"
)

// Client 将一段音频转写为文本。
type Client interface {
	Transcribe(ctx context.Context, audio []byte, fileName, mimeType string) (string, error)
}

// StatusError carries a non-2xx reply from the provider.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transcription api returned status %d", e.StatusCode)
}

// HTTPStatusCode lets retry classify the error.
func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

type whisperClient struct {
	cfg    config.TranscriptionConfig
	client *http.Client
}

// NewClient 创建一个转写客户端。
func NewClient(cfg config.TranscriptionConfig) Client {
	return &whisperClient{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
	}
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *whisperClient) Transcribe(ctx context.Context, audio []byte, fileName, mimeType string) (string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.WriteField("model", c.cfg.Model); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h.Set("Content-Type", mimeType)
	part, err := w.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body.Bytes()))
	if err != nil {
		return "", fmt.Errorf("failed to create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call transcription api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode transcription response: %w", err)
	}
	return out.Text, nil
}
