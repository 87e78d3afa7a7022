package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLite("file:" + filepath.Join(t.TempDir(), "test.db") + "?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestSQLiteRulesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.SaveRule(ctx, model.AlertRule{
		Name:                 "nas busy",
		Kind:                 model.KindTrafficThreshold,
		Enabled:              true,
		EntityID:             "aa:bb",
		ThresholdBytesPerSec: 5000,
		NotificationChannels: []model.ChannelKind{model.ChannelEmail, model.ChannelWebhook},
		Severity:             model.SeverityCritical,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SaveRule(ctx, model.AlertRule{
		Name:                    "quiet",
		Kind:                    model.KindDeviceOffline,
		Enabled:                 false,
		OfflineThresholdMinutes: 10,
		Severity:                model.SeverityInfo,
	}); err != nil {
		t.Fatalf("save disabled: %v", err)
	}

	rules, err := s.ListEnabledRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 enabled rule, got %d", len(rules))
	}
	r := rules[0]
	if r.ID != id || r.EntityID != "aa:bb" || r.ThresholdBytesPerSec != 5000 || r.Severity != model.SeverityCritical {
		t.Fatalf("unexpected rule: %+v", r)
	}
	if len(r.NotificationChannels) != 2 || r.NotificationChannels[1] != model.ChannelWebhook {
		t.Fatalf("channels: %v", r.NotificationChannels)
	}

	// saving by the same name updates in place
	r.ThresholdBytesPerSec = 9000
	again, err := s.SaveRule(ctx, r)
	if err != nil || again != id {
		t.Fatalf("update: id=%d err=%v", again, err)
	}
	rules, _ = s.ListEnabledRules(ctx)
	if rules[0].ThresholdBytesPerSec != 9000 {
		t.Fatalf("update not applied: %+v", rules[0])
	}
}

func TestSQLiteFindOpenEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entityEvent, err := s.CreateEvent(ctx, model.NewEvent{
		RuleID: 1, Kind: model.KindDeviceOffline, Message: "offline", Severity: model.SeverityWarning,
		EntityID: "aa:bb", TriggeredAt: t0,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateEvent(ctx, model.NewEvent{
		RuleID: 1, Kind: model.KindTrafficThreshold, Message: "total", Severity: model.SeverityWarning,
		TriggeredAt: t0.Add(time.Second),
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.FindOpenEvent(ctx, 1, "aa:bb", t0.Add(-5*time.Minute))
	if err != nil || got == nil {
		t.Fatalf("find: %v %v", got, err)
	}
	if got.ID != entityEvent || got.Status != model.StatusTriggered || !got.TriggeredAt.Equal(t0) {
		t.Fatalf("unexpected event: %+v", got)
	}

	global, err := s.FindOpenEvent(ctx, 1, "", t0)
	if err != nil || global == nil || global.EntityID != "" || global.Message != "total" {
		t.Fatalf("global find: %+v %v", global, err)
	}

	if got, _ := s.FindOpenEvent(ctx, 1, "aa:bb", t0.Add(time.Nanosecond)); got != nil {
		t.Fatalf("event before window returned: %+v", got)
	}
	if got, _ := s.FindOpenEvent(ctx, 2, "aa:bb", t0.Add(-time.Hour)); got != nil {
		t.Fatalf("other rule returned: %+v", got)
	}
	if got, _ := s.FindOpenEvent(ctx, 1, "cc:dd", t0.Add(-time.Hour)); got != nil {
		t.Fatalf("other entity returned: %+v", got)
	}
}

func TestSQLiteGetEventMissing(t *testing.T) {
	s := newTestStore(t)
	ev, err := s.GetEvent(context.Background(), 99)
	if err != nil || ev != nil {
		t.Fatalf("expected nil, nil; got %v %v", ev, err)
	}
}

func TestSeedRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	off := false
	n, err := SeedRules(ctx, s, []config.RuleConfig{
		{Name: "wan", Kind: "traffic_threshold", ThresholdBytesPerSec: 1_000_000, Channels: []string{"page", "webhook"}},
		{Name: "printer", Kind: "device_offline", OfflineThresholdMinutes: 30, Enabled: &off},
	})
	if err != nil || n != 2 {
		t.Fatalf("seed: n=%d err=%v", n, err)
	}
	rules, _ := s.ListEnabledRules(ctx)
	if len(rules) != 1 || rules[0].Name != "wan" || rules[0].Severity != model.SeverityWarning {
		t.Fatalf("unexpected rules: %+v", rules)
	}

	if _, err := SeedRules(ctx, s, []config.RuleConfig{{Name: "bad", Kind: "traffic_threshold"}}); err == nil {
		t.Fatalf("expected invalid rule error")
	}
}

func TestNewStoreRejectsUnknownDriver(t *testing.T) {
	if _, err := NewStore(config.StorageConfig{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBindNumbered(t *testing.T) {
	b := baseStore{d: postgresDialect}
	got := b.bind(`SELECT a FROM t WHERE x = ? AND y = ?`)
	if got != `SELECT a FROM t WHERE x = $1 AND y = $2` {
		t.Fatalf("bind: %s", got)
	}
}

func TestSQLiteListEnabledRulesToleratesBadRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := map[string]int64{}
	for _, name := range []string{"good", "bad channels", "bad threshold"} {
		id, err := s.SaveRule(ctx, model.AlertRule{
			Name:                 name,
			Kind:                 model.KindTrafficThreshold,
			Enabled:              true,
			ThresholdBytesPerSec: 1000,
			NotificationChannels: []model.ChannelKind{model.ChannelWebhook},
			Severity:             model.SeverityWarning,
		})
		if err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
		ids[name] = id
	}
	db := s.(*sqliteStore).db
	if _, err := db.ExecContext(ctx, `UPDATE alert_rules SET notification_channels = 'email,webhook' WHERE id = ?`, ids["bad channels"]); err != nil {
		t.Fatalf("corrupt channels: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE alert_rules SET threshold_bytes = 'lots' WHERE id = ?`, ids["bad threshold"]); err != nil {
		t.Fatalf("corrupt threshold: %v", err)
	}

	rules, err := s.ListEnabledRules(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 readable rules, got %+v", rules)
	}
	if rules[0].ID != ids["good"] || len(rules[0].NotificationChannels) != 1 || rules[0].NotificationChannels[0] != model.ChannelWebhook {
		t.Fatalf("good rule changed: %+v", rules[0])
	}
	if rules[1].ID != ids["bad channels"] || len(rules[1].NotificationChannels) != 1 || rules[1].NotificationChannels[0] != model.ChannelPage {
		t.Fatalf("expected page fallback, got %+v", rules[1])
	}
}
