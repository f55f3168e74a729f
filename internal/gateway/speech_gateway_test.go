package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"super-feynman-go/pkg/apperr"
	"super-feynman-go/pkg/retry"
	"super-feynman-go/pkg/speech"
)

type scriptedSpeech struct {
	replies []reply
	calls   int
}

func (s *scriptedSpeech) Transcribe(context.Context, []byte, string, string) (string, error) {
	s.calls++
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.content, r.err
}

func newSpeechGateway(replies ...reply) (SpeechGateway, *scriptedSpeech) {
	fake := &scriptedSpeech{replies: replies}
	policy := retry.DefaultPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }
	return NewSpeechGateway(fake, policy), fake
}

func TestSpeechGatewayTranscribe(t *testing.T) {
	gw, fake := newSpeechGateway(reply{err: &speech.StatusError{StatusCode: 503}}, reply{content: " hello world \n"})
	got, err := gw.Transcribe(context.Background(), []byte("audio"), "a.webm", "audio/webm")
	if err != nil || got != "hello world" {
		t.Fatalf("Transcribe = %q, %v", got, err)
	}
	if fake.calls != 2 {
		t.Fatalf("calls = %d, want 2", fake.calls)
	}
}

func TestSpeechGatewayErrorTranslation(t *testing.T) {
	tests := []struct {
		name    string
		replies []reply
		want    error
	}{
		{"auth", []reply{{err: &speech.StatusError{StatusCode: 401}}}, apperr.ErrInvalidCredentials},
		{"rate limit", []reply{
			{err: &speech.StatusError{StatusCode: 429}},
			{err: &speech.StatusError{StatusCode: 429}},
			{err: &speech.StatusError{StatusCode: 429}},
		}, apperr.ErrRateLimited},
		{"bad request", []reply{{err: &speech.StatusError{StatusCode: 400}}}, apperr.ErrTranscriptionFailed},
		{"transport", []reply{
			{err: errors.New("dial tcp: refused")},
			{err: errors.New("dial tcp: refused")},
			{err: errors.New("dial tcp: refused")},
		}, apperr.ErrTranscriptionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, _ := newSpeechGateway(tt.replies...)
			_, err := gw.Transcribe(context.Background(), []byte("audio"), "a.mp3", "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSpeechGatewayRejectsEmptyAudio(t *testing.T) {
	gw, fake := newSpeechGateway()
	if _, err := gw.Transcribe(context.Background(), nil, "a.mp3", ""); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if fake.calls != 0 {
		t.Fatalf("provider called for empty audio")
	}
}
