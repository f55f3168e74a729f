package prompt

import (
	"errors"
	"strings"
	"testing"

	"super-feynman-go/internal/model"
	"super-feynman-go/pkg/apperr"
)

func TestRenderSystemPrompt(t *testing.T) {
	const (
		name = "Entropy"
		desc = "A measure of disorder in a system & its \"microstates\""
	)
	tests := []struct {
		audience model.AudienceLevel
		length   string
	}{
		{model.AudienceClassmate, "2-3 sentences"},
		{model.AudienceMiddleSchooler, "1-2 short sentences"},
		{model.AudienceKid, "1 sentence"},
	}
	for _, tt := range tests {
		t.Run(string(tt.audience), func(t *testing.T) {
			got, err := RenderSystemPrompt(name, desc, tt.audience)
			if err != nil {
				t.Fatalf("RenderSystemPrompt: %v", err)
			}
			if !strings.Contains(got, `"`+name+`"`) || !strings.Contains(got, desc) {
				t.Fatalf("name/description not embedded verbatim:\n%s", got)
			}
			if !strings.Contains(got, tt.length) {
				t.Fatalf("length ceiling %q missing:\n%s", tt.length, got)
			}
		})
	}
}

func TestRenderSystemPromptRejectsUnknownAudience(t *testing.T) {
	_, err := RenderSystemPrompt("Entropy", "disorder", "professor")
	if !errors.Is(err, ErrInvalidAudience) || !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidAudience wrapping ErrInvalidInput", err)
	}
}

func TestRenderFeedbackPromptTranscript(t *testing.T) {
	history := []model.Message{
		{Role: model.RoleAssistant, Content: "What is entropy?"},
		{Role: model.RoleUser, Content: "Disorder."},
	}
	got := RenderFeedbackPrompt("Entropy", "disorder", model.AudienceKid, history)
	if !strings.Contains(got, "AI: What is entropy?\n\nStudent: Disorder.") {
		t.Fatalf("transcript not rendered:\n%s", got)
	}
	for _, key := range []string{"overall_quality", "clear_parts", "unclear_parts", "jargon_used", "struggled_with"} {
		if !strings.Contains(got, key) {
			t.Fatalf("feedback prompt missing key %q", key)
		}
	}
}

func TestRenderExtractionPromptEmbedsNotes(t *testing.T) {
	got := RenderExtractionPrompt("Thermodynamics lecture 3")
	if !strings.HasSuffix(got, "Thermodynamics lecture 3") || !strings.Contains(got, "5-15") {
		t.Fatalf("unexpected extraction prompt:\n%s", got)
	}
}
