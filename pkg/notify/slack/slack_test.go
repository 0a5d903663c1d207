package slack

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"github.com/jxucoder/TeleInterview/pkg/model"
)

func TestInterviewSaved(t *testing.T) {
	var gotChannel, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = r.ParseForm()
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"channel":"C123","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	n := New("xoxb-test", "C123", slack.OptionAPIURL(srv.URL+"/"))
	err := n.InterviewSaved(context.Background(), &model.InterviewRecord{
		ID: "r1", CandidateName: "Kim", JobTitle: "SRE", InterviewType: model.InterviewTechnical, FinalScore: 9,
	})
	if err != nil {
		t.Fatalf("InterviewSaved: %v", err)
	}
	if gotChannel != "C123" || !strings.Contains(gotText, "Kim") {
		t.Fatalf("channel=%q text=%q", gotChannel, gotText)
	}
}

func TestInterviewSaved_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	n := New("xoxb-test", "C404", slack.OptionAPIURL(srv.URL+"/"))
	if err := n.InterviewSaved(context.Background(), &model.InterviewRecord{}); err == nil {
		t.Fatal("expected error")
	}
	if n.Name() != "slack" {
		t.Fatalf("Name = %q", n.Name())
	}
}
