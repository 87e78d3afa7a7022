package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"bandwatch/internal/alerts"
	"bandwatch/internal/config"
	"bandwatch/internal/dispatch"
	"bandwatch/internal/model"
	"bandwatch/internal/notify"
	"bandwatch/internal/storage"
)

func TestEndToEndTrafficWebhook(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies []map[string]any
	)
	posted := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("webhook body: %v", err)
		}
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		posted <- struct{}{}
	}))
	defer srv.Close()

	ctx := context.Background()
	store, err := storage.NewSQLite("file:" + filepath.Join(t.TempDir(), "e2e.db") + "?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	rule := model.AlertRule{
		Name:                 "uplink saturated",
		Kind:                 model.KindTrafficThreshold,
		Enabled:              true,
		ThresholdBytesPerSec: 1_000_000,
		NotificationChannels: []model.ChannelKind{model.ChannelPage, model.ChannelWebhook},
		Severity:             model.SeverityCritical,
	}
	rule.ID, err = store.SaveRule(ctx, rule)
	if err != nil {
		t.Fatalf("save rule: %v", err)
	}

	registry := notify.NewRegistryWith(
		notify.NewPageChannel(),
		notify.NewWebhookChannel(config.WebhookConfig{Enabled: true, URLs: config.List{srv.URL}}),
	)
	recent := alerts.NewStore(10)
	d := dispatch.New(store, registry,
		dispatch.WithWorkers(1),
		dispatch.WithDequeueTimeout(20*time.Millisecond),
		dispatch.WithRecent(recent),
	)
	d.Start()
	defer d.Stop()

	eval := NewEvaluator(store, d, nil, nil, 5*time.Minute)
	snap := model.Snapshot{
		TakenAt: time.Now().UTC(),
		Total:   model.Rate{DownRate: 1_000_000, UpRate: 200_000},
	}
	if n := eval.Cycle(ctx, snap); n != 1 {
		t.Fatalf("expected 1 event, got %d", n)
	}

	select {
	case <-posted:
	case <-time.After(5 * time.Second):
		t.Fatalf("webhook not called")
	}
	if !d.Stop() {
		t.Fatalf("dispatcher did not stop in time")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("expected exactly one POST, got %d", len(bodies))
	}
	msg, _ := bodies[0]["message"].(string)
	if !strings.Contains(msg, "1.1 MiB/s >= 977 KiB/s") {
		t.Fatalf("message missing threshold comparison: %q", msg)
	}

	ev, err := store.GetEvent(ctx, 1)
	if err != nil || ev == nil {
		t.Fatalf("get event: %v %v", ev, err)
	}
	if ev.Status != model.StatusTriggered || ev.RuleID != rule.ID || ev.EntityID != "" {
		t.Fatalf("unexpected event: %+v", ev)
	}

	deadline := time.Now().Add(time.Second)
	for recent.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	got := recent.List(1)
	if len(got) != 1 || got[0].Success != 2 || got[0].Total != 2 {
		t.Fatalf("unexpected delivery summary: %+v", got)
	}
}
