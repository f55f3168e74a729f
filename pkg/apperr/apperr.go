// Package apperr defines the error taxonomy shared by every layer and its HTTP mapping.
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidInput marks caller mistakes: bad ids, empty text, unknown audience or status.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing course, lecture, concept or session.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState marks an operation that is illegal for the session's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrMalformedProviderResponse marks provider output that could not be parsed or validated.
	ErrMalformedProviderResponse = errors.New("malformed provider response")
	// ErrInvalidCredentials marks a provider rejecting our API key.
	ErrInvalidCredentials = errors.New("invalid provider credentials")
	// ErrRateLimited marks a provider rate limit that outlasted the retry budget.
	ErrRateLimited = errors.New("provider rate limited")
	// ErrProviderCallFailed marks any other provider or transport failure.
	ErrProviderCallFailed = errors.New("provider call failed")
	// ErrTranscriptionFailed marks a speech-to-text failure that is not auth or rate related.
	ErrTranscriptionFailed = errors.New("transcription failed")
)

type class struct {
	sentinel error
	status   int
	kind     string
	message  string
	// detail 为 true 时对外暴露完整错误文本；provider 类错误只暴露固定文案。
	detail bool
}

var classes = []class{
	{ErrInvalidInput, http.StatusBadRequest, "invalid_input", "invalid input", true},
	{ErrNotFound, http.StatusNotFound, "not_found", "resource not found", true},
	{ErrInvalidState, http.StatusConflict, "invalid_state", "operation not allowed in current state", true},
	{ErrRateLimited, http.StatusServiceUnavailable, "rate_limited", "AI service is busy, please try again shortly", false},
	{ErrInvalidCredentials, http.StatusServiceUnavailable, "invalid_credentials", "AI service is misconfigured", false},
	{ErrMalformedProviderResponse, http.StatusInternalServerError, "malformed_provider_response", "AI service returned an unexpected response", false},
	{ErrTranscriptionFailed, http.StatusInternalServerError, "transcription_failed", "failed to transcribe audio", false},
	{ErrProviderCallFailed, http.StatusInternalServerError, "provider_call_failed", "AI service is temporarily unavailable", false},
}

func lookup(err error) (class, bool) {
	for _, c := range classes {
		if errors.Is(err, c.sentinel) {
			return c, true
		}
	}
	return class{}, false
}

// HTTPStatus maps err onto the status code the API answers with.
func HTTPStatus(err error) int {
	if c, ok := lookup(err); ok {
		return c.status
	}
	return http.StatusInternalServerError
}

// Kind returns a stable snake_case identifier for err's class, "internal" when unclassified.
func Kind(err error) string {
	if c, ok := lookup(err); ok {
		return c.kind
	}
	return "internal"
}

// Message returns text that is safe to show a client. Provider bodies never leak through it.
func Message(err error) string {
	c, ok := lookup(err)
	if !ok {
		return "internal server error"
	}
	if c.detail {
		return err.Error()
	}
	return c.message
}
