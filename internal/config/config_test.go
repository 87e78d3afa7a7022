package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "bandwatch.yaml", `
log_level: debug
collector:
  base_url: http://router.lan:8686
  api_key: k1
  interval: 2s
evaluator:
  suppression_window: 10m
dispatch:
  workers: 8
notifications:
  email:
    enabled: true
    smtp_host: smtp.example.com
    from: bandwatch@example.com
    to: "ops@example.com; noc@example.com,  "
  webhook:
    enabled: true
    urls:
      - http://hooks.example.com/a
      - "http://hooks.example.com/b;http://hooks.example.com/c"
rules:
  - name: wan saturated
    kind: traffic_threshold
    threshold_bytes_per_sec: 1000000
    channels: [page, webhook]
    severity: critical
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Collector.Interval != 2*time.Second || cfg.Collector.APIKey != "k1" {
		t.Fatalf("collector: %+v", cfg.Collector)
	}
	if cfg.Evaluator.SuppressionWindow != 10*time.Minute {
		t.Fatalf("suppression window: %s", cfg.Evaluator.SuppressionWindow)
	}
	if cfg.Dispatch.Workers != 8 || cfg.Dispatch.QueueCapacity != DefaultQueueCapacity {
		t.Fatalf("dispatch: %+v", cfg.Dispatch)
	}
	if got := cfg.Notifications.Email.To; len(got) != 2 || got[1] != "noc@example.com" {
		t.Fatalf("email to: %v", got)
	}
	if cfg.Notifications.Email.SMTPPort != 587 {
		t.Fatalf("smtp port default lost: %d", cfg.Notifications.Email.SMTPPort)
	}
	if got := cfg.Notifications.Webhook.URLs; len(got) != 3 {
		t.Fatalf("webhook urls: %v", got)
	}
	rule, err := cfg.Rules[0].Rule()
	if err != nil {
		t.Fatalf("rule: %v", err)
	}
	if !rule.Enabled || rule.ThresholdBytesPerSec != 1000000 || len(rule.NotificationChannels) != 2 || rule.Severity != "critical" {
		t.Fatalf("rule: %+v", rule)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "bandwatch.toml", `
log_format = "text"

[collector]
source = "kafka"

[collector.kafka]
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "monitor"
group_id = "bandwatch"

[dispatch]
shutdown_timeout = "3s"

[notifications.telegram]
enabled = true
bot_token = "t"
chat_ids = "-100;-200"

[[rules]]
name = "printer"
kind = "device_offline"
offline_threshold_minutes = 30
enabled = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Collector.Source != "kafka" || len(cfg.Collector.Kafka.Brokers) != 2 {
		t.Fatalf("collector: %+v", cfg.Collector)
	}
	if cfg.Dispatch.ShutdownTimeout != 3*time.Second {
		t.Fatalf("shutdown timeout: %s", cfg.Dispatch.ShutdownTimeout)
	}
	if got := cfg.Notifications.Telegram.ChatIDs; len(got) != 2 || got[0] != "-100" {
		t.Fatalf("chat ids: %v", got)
	}
	rule, err := cfg.Rules[0].Rule()
	if err != nil || rule.Enabled {
		t.Fatalf("rule: %+v %v", rule, err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "bandwatch.conf", `{"api": {"addr": ":9090"}, "notifications": {"wecom": {"enabled": true, "webhook_urls": "https://a,https://b"}}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Addr != ":9090" || len(cfg.Notifications.WeCom.WebhookURLs) != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bandwatch.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("BANDWATCH_TELEGRAM_TOKEN=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BANDWATCH_SMTP_PASSWORD", "s3cret")
	t.Setenv("BANDWATCH_TELEGRAM_TOKEN", "")
	os.Unsetenv("BANDWATCH_TELEGRAM_TOKEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Notifications.Email.Password != "s3cret" {
		t.Fatalf("password override: %q", cfg.Notifications.Email.Password)
	}
	if cfg.Notifications.Telegram.BotToken != "from-dotenv" {
		t.Fatalf("dotenv override: %q", cfg.Notifications.Telegram.BotToken)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := map[string]string{
		"bad source":  "collector:\n  source: mqtt\n",
		"kafka":       "collector:\n  source: kafka\n",
		"driver":      "storage:\n  driver: oracle\n",
		"mongo dsn":   "storage:\n  driver: mongodb\n  dsn: \"\"\n",
		"rule kind":   "rules:\n  - name: x\n    kind: cpu\n",
		"rule thresh": "rules:\n  - name: x\n    kind: traffic_threshold\n",
		"rule chan":   "rules:\n  - name: x\n    kind: device_offline\n    offline_threshold_minutes: 5\n    channels: [sms]\n",
		"rule sev":    "rules:\n  - name: x\n    kind: device_offline\n    offline_threshold_minutes: 5\n    severity: urgent\n",
	}
	for name, content := range cases {
		path := writeConfig(t, "bandwatch.yaml", content)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "bandwatch.yaml", "  \n")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "empty") {
		t.Fatalf("expected empty file error, got %v", err)
	}
}

func TestManagerWatchReloads(t *testing.T) {
	path := writeConfig(t, "bandwatch.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 1)
	done := make(chan error, 1)
	go func() {
		done <- m.Watch(ctx, func(c *Config) {
			select {
			case reloaded <- c:
			default:
			}
		}, nil)
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-reloaded:
		if c.LogLevel != "debug" {
			t.Fatalf("reloaded level: %s", c.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload observed")
	}
	if m.Get().LogLevel != "debug" {
		t.Fatalf("manager not updated")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watch: %v", err)
	}
}
