package anthropic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		w.Write([]byte(`{"content":[{"type":"thinking","text":"hmm"},{"type":"text","text":"{\"score\": 9}"}]}`))
	}))
	defer srv.Close()

	out, err := New("ak", "").WithBaseURL(srv.URL).Complete(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"score": 9}` {
		t.Fatalf("out = %q", out)
	}
}

func TestComplete_NoText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	if _, err := New("ak", "").WithBaseURL(srv.URL).Complete(context.Background(), "s", "u"); err == nil {
		t.Fatal("expected error for missing text content")
	}
}
