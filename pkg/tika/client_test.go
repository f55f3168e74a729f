package tika

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"super-feynman-go/internal/config"
)

func TestExtractText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/tika" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("Content-Type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write([]byte("extracted: " + string(body)))
	}))
	defer srv.Close()

	c := NewClient(config.TikaConfig{ServerURL: srv.URL + "/"})
	got, err := c.ExtractText(context.Background(), strings.NewReader("%PDF"), "notes.pdf")
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if got != "extracted: %PDF" {
		t.Fatalf("text = %q", got)
	}
}

func TestNewClientDisabled(t *testing.T) {
	if NewClient(config.TikaConfig{}) != nil {
		t.Fatal("expected nil client without server url")
	}
}
