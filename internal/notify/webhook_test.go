package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebhook_Discord(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, FormatDiscord, time.Second)
	res := w.Send(context.Background(), Message{Subject: "DOWN: x", Body: "DOWN\nhttps://x"})
	if res.Outcome != Delivered {
		t.Fatalf("want delivered, got %+v", res)
	}
	if got["content"] != "DOWN\nhttps://x" {
		t.Fatalf("payload not as expected: %v", got)
	}
}

func TestWebhook_Slack(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	w := NewWebhook(ts.URL, FormatSlack, time.Second)
	if res := w.Send(context.Background(), Message{Subject: "Title", Body: "Hello"}); res.Outcome != Delivered {
		t.Fatalf("want delivered, got %+v", res)
	}
	if !strings.HasPrefix(got["text"], "*Title*\n") {
		t.Fatalf("payload not as expected: %q", got["text"])
	}
}

func TestWebhook_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer ts.Close()

	res := NewWebhook(ts.URL, FormatDiscord, time.Second).Send(context.Background(), Message{Body: "x"})
	if res.Outcome != Failed || res.Reason == "" {
		t.Fatalf("expected failure on non-2xx, got %+v", res)
	}
}

func TestWebhook_NoURLIsSkipped(t *testing.T) {
	res := NewWebhook("", FormatDiscord, 0).Send(context.Background(), Message{Body: "x"})
	if res.Outcome != Skipped {
		t.Fatalf("want skipped, got %+v", res)
	}
}
