package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{APIKey: "sk-test", BaseURL: srv.URL, MaxRetries: retries}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestSpeak(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "tts-1" || body["voice"] != "alloy" || body["input"] != "Hello" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte("ID3mp3data"))
	}, 0)

	out, err := c.Speak(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if string(out) != "ID3mp3data" {
		t.Fatalf("audio = %q", out)
	}
}

func TestSpeak_EmptyText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}, 0)
	if _, err := c.Speak(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestTranscribe_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "answer.wav" || string(data[:4]) != "RIFF" {
			t.Errorf("file = %s (%q)", hdr.Filename, data[:4])
		}
		w.Write([]byte(`{"text": "  I built a queue. "}`))
	}, 0)

	text, err := c.Transcribe(context.Background(), []byte("RIFF....WAVEdata"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I built a queue." {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscribe_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}, 2)

	text, err := c.Transcribe(context.Background(), []byte("RIFFdata"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "ok" || calls.Load() != 2 {
		t.Fatalf("text=%q calls=%d", text, calls.Load())
	}
}

func TestTranscribe_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}, 3)

	if _, err := c.Transcribe(context.Background(), []byte("RIFFdata")); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}
