package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bandwatch/internal/config"
)

func robotServer(t *testing.T, reply string, got *robotMessage) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if got != nil {
			_ = json.Unmarshal(raw, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWeComMarkdown(t *testing.T) {
	var got robotMessage
	srv := robotServer(t, `{"errcode":0,"errmsg":"ok"}`, &got)
	ch := NewWeComChannel(config.BotConfig{Enabled: true, WebhookURLs: config.List{srv.URL + "?key=abc"}})
	ok, detail := ch.Send(context.Background(), Compose(testEvent(), ch.Style()))
	if !ok {
		t.Fatalf("send failed: %s", detail)
	}
	if got.MsgType != "markdown" || !strings.HasPrefix(got.Markdown.Content, "## Bandwatch alert") {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if !strings.Contains(got.Markdown.Content, `<font color="#dc3545">Critical</font>`) {
		t.Fatalf("severity styling missing: %s", got.Markdown.Content)
	}
}

func TestDingTalkErrCode(t *testing.T) {
	var got robotMessage
	srv := robotServer(t, `{"errcode":310000,"errmsg":"keywords not in content"}`, &got)
	ch := NewDingTalkChannel(config.BotConfig{Enabled: true, WebhookURLs: config.List{srv.URL + "?access_token=secret"}})
	ok, detail := ch.Send(context.Background(), Compose(testEvent(), ch.Style()))
	if ok {
		t.Fatalf("expected failure on non-zero errcode")
	}
	if !strings.Contains(detail, "errcode 310000") {
		t.Fatalf("detail: %s", detail)
	}
	if strings.Contains(detail, "secret") {
		t.Fatalf("detail leaks token: %s", detail)
	}
	if got.Markdown.Title == "" || got.Markdown.Text == "" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestRobotValidate(t *testing.T) {
	if err := NewWeComChannel(config.BotConfig{}).Validate(); err != ErrNotEnabled {
		t.Fatalf("expected not enabled, got %v", err)
	}
	err := NewDingTalkChannel(config.BotConfig{Enabled: true}).Validate()
	if err == nil || err.Error() != "missing field: webhook_urls" {
		t.Fatalf("unexpected error: %v", err)
	}
}
