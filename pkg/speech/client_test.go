package speech

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"super-feynman-go/internal/config"
)

func TestTranscribeUploadsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if m := r.FormValue("model"); m != "whisper-1" {
			t.Errorf("model = %q", m)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "clip.webm" || string(data) != "RIFFdata" {
			t.Errorf("file = %s %q", hdr.Filename, data)
		}
		_, _ = w.Write([]byte(`{"text":"entropy measures disorder"}`))
	}))
	defer srv.Close()

	c := NewClient(config.TranscriptionConfig{BaseURL: srv.URL, APIKey: "k", Model: "whisper-1"})
	text, err := c.Transcribe(context.Background(), []byte("RIFFdata"), "clip.webm", "audio/webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "entropy measures disorder" {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscribeReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(config.TranscriptionConfig{BaseURL: srv.URL}).Transcribe(context.Background(), []byte("x"), "a.mp3", "")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 StatusError", err)
	}
}
