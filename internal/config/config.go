package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bandwatch/internal/model"
)

const (
	DefaultWorkers           = 4
	DefaultQueueCapacity     = 1000
	DefaultDequeueTimeout    = 1 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultSuppressionWindow = 5 * time.Minute
	DefaultCollectInterval   = 1 * time.Second
	DefaultHTTPTimeout       = 10 * time.Second
	DefaultSMTPTimeout       = 30 * time.Second
	DefaultTelegramAPI       = "https://api.telegram.org"
)

type Config struct {
	LogLevel      string              `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat     string              `json:"log_format" yaml:"log_format" toml:"log_format"`
	Collector     CollectorConfig     `json:"collector" yaml:"collector" toml:"collector"`
	Evaluator     EvaluatorConfig     `json:"evaluator" yaml:"evaluator" toml:"evaluator"`
	Dispatch      DispatchConfig      `json:"dispatch" yaml:"dispatch" toml:"dispatch"`
	Storage       StorageConfig       `json:"storage" yaml:"storage" toml:"storage"`
	Notifications NotificationsConfig `json:"notifications" yaml:"notifications" toml:"notifications"`
	Rules         []RuleConfig        `json:"rules" yaml:"rules" toml:"rules"`
	API           APIConfig           `json:"api" yaml:"api" toml:"api"`
	Deliveries    DeliveriesConfig    `json:"deliveries" yaml:"deliveries" toml:"deliveries"`
}

type CollectorConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	Source   string        `json:"source" yaml:"source" toml:"source"`
	Interval time.Duration `json:"interval" yaml:"interval" toml:"interval"`
	BaseURL  string        `json:"base_url" yaml:"base_url" toml:"base_url"`
	APIKey   string        `json:"api_key" yaml:"api_key" toml:"api_key"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	Kafka    KafkaConfig   `json:"kafka" yaml:"kafka" toml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic" toml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id" toml:"group_id"`
}

type EvaluatorConfig struct {
	SuppressionWindow time.Duration `json:"suppression_window" yaml:"suppression_window" toml:"suppression_window"`
}

type DispatchConfig struct {
	Workers         int           `json:"workers" yaml:"workers" toml:"workers"`
	QueueCapacity   int           `json:"queue_capacity" yaml:"queue_capacity" toml:"queue_capacity"`
	DequeueTimeout  time.Duration `json:"dequeue_timeout" yaml:"dequeue_timeout" toml:"dequeue_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver   string `json:"driver" yaml:"driver" toml:"driver"`
	DSN      string `json:"dsn" yaml:"dsn" toml:"dsn"`
	Database string `json:"database" yaml:"database" toml:"database"`
}

type NotificationsConfig struct {
	Email    EmailConfig    `json:"email" yaml:"email" toml:"email"`
	Webhook  WebhookConfig  `json:"webhook" yaml:"webhook" toml:"webhook"`
	Telegram TelegramConfig `json:"telegram" yaml:"telegram" toml:"telegram"`
	WeCom    BotConfig      `json:"wecom" yaml:"wecom" toml:"wecom"`
	DingTalk BotConfig      `json:"dingtalk" yaml:"dingtalk" toml:"dingtalk"`
}

type EmailConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	SMTPHost string        `json:"smtp_host" yaml:"smtp_host" toml:"smtp_host"`
	SMTPPort int           `json:"smtp_port" yaml:"smtp_port" toml:"smtp_port"`
	Username string        `json:"username" yaml:"username" toml:"username"`
	Password string        `json:"password" yaml:"password" toml:"password"`
	From     string        `json:"from" yaml:"from" toml:"from"`
	To       List          `json:"to" yaml:"to" toml:"to"`
	UseTLS   bool          `json:"use_tls" yaml:"use_tls" toml:"use_tls"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type WebhookConfig struct {
	Enabled bool              `json:"enabled" yaml:"enabled" toml:"enabled"`
	URLs    List              `json:"urls" yaml:"urls" toml:"urls"`
	Headers map[string]string `json:"headers" yaml:"headers" toml:"headers"`
	Timeout time.Duration     `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type TelegramConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	BotToken string        `json:"bot_token" yaml:"bot_token" toml:"bot_token"`
	ChatIDs  List          `json:"chat_ids" yaml:"chat_ids" toml:"chat_ids"`
	APIBase  string        `json:"api_base" yaml:"api_base" toml:"api_base"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

// BotConfig covers the enterprise IM robots, which are addressed by webhook URL.
type BotConfig struct {
	Enabled     bool          `json:"enabled" yaml:"enabled" toml:"enabled"`
	WebhookURLs List          `json:"webhook_urls" yaml:"webhook_urls" toml:"webhook_urls"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
}

type RuleConfig struct {
	Name                    string   `json:"name" yaml:"name" toml:"name"`
	Kind                    string   `json:"kind" yaml:"kind" toml:"kind"`
	Enabled                 *bool    `json:"enabled" yaml:"enabled" toml:"enabled"`
	EntityID                string   `json:"entity_id" yaml:"entity_id" toml:"entity_id"`
	ThresholdBytesPerSec    int64    `json:"threshold_bytes_per_sec" yaml:"threshold_bytes_per_sec" toml:"threshold_bytes_per_sec"`
	OfflineThresholdMinutes int      `json:"offline_threshold_minutes" yaml:"offline_threshold_minutes" toml:"offline_threshold_minutes"`
	Channels                []string `json:"channels" yaml:"channels" toml:"channels"`
	Severity                string   `json:"severity" yaml:"severity" toml:"severity"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

type DeliveriesConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit" toml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Collector: CollectorConfig{
			Enabled:  true,
			Source:   "http",
			Interval: DefaultCollectInterval,
			BaseURL:  "http://localhost:8686",
			Timeout:  DefaultHTTPTimeout,
		},
		Evaluator: EvaluatorConfig{SuppressionWindow: DefaultSuppressionWindow},
		Dispatch: DispatchConfig{
			Workers:         DefaultWorkers,
			QueueCapacity:   DefaultQueueCapacity,
			DequeueTimeout:  DefaultDequeueTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:bandwatch.db?_pragma=busy_timeout(5000)"},
		Notifications: NotificationsConfig{
			Email:    EmailConfig{SMTPPort: 587, UseTLS: true},
			Telegram: TelegramConfig{APIBase: DefaultTelegramAPI},
		},
		API:        APIConfig{Enabled: true, Addr: ":8081"},
		Deliveries: DeliveriesConfig{StoreLimit: 1000},
	}
}

// Load reads a JSON, YAML or TOML config file, applies environment
// overrides (including a sibling .env file) and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	switch {
	case strings.EqualFold(filepath.Ext(path), ".toml"):
		_, decodeErr = toml.Decode(trimmed, cfg)
	case looksLikeJSON(trimmed):
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	default:
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode %s: %w", path, decodeErr)
	}
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("BANDWATCH_SMTP_PASSWORD"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("BANDWATCH_TELEGRAM_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("BANDWATCH_MONITOR_API_KEY"); v != "" {
		cfg.Collector.APIKey = v
	}
	if v := os.Getenv("BANDWATCH_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Collector.Source == "" {
		cfg.Collector.Source = "http"
	}
	if cfg.Collector.Interval <= 0 {
		cfg.Collector.Interval = DefaultCollectInterval
	}
	if cfg.Collector.Timeout <= 0 {
		cfg.Collector.Timeout = DefaultHTTPTimeout
	}
	if cfg.Evaluator.SuppressionWindow <= 0 {
		cfg.Evaluator.SuppressionWindow = DefaultSuppressionWindow
	}
	if cfg.Dispatch.Workers <= 0 {
		cfg.Dispatch.Workers = DefaultWorkers
	}
	if cfg.Dispatch.QueueCapacity <= 0 {
		cfg.Dispatch.QueueCapacity = DefaultQueueCapacity
	}
	if cfg.Dispatch.DequeueTimeout <= 0 {
		cfg.Dispatch.DequeueTimeout = DefaultDequeueTimeout
	}
	if cfg.Dispatch.ShutdownTimeout <= 0 {
		cfg.Dispatch.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Notifications.Email.Timeout <= 0 {
		cfg.Notifications.Email.Timeout = DefaultSMTPTimeout
	}
	if cfg.Notifications.Webhook.Timeout <= 0 {
		cfg.Notifications.Webhook.Timeout = DefaultHTTPTimeout
	}
	if cfg.Notifications.Telegram.APIBase == "" {
		cfg.Notifications.Telegram.APIBase = DefaultTelegramAPI
	}
	if cfg.Notifications.Telegram.Timeout <= 0 {
		cfg.Notifications.Telegram.Timeout = DefaultHTTPTimeout
	}
	if cfg.Notifications.WeCom.Timeout <= 0 {
		cfg.Notifications.WeCom.Timeout = DefaultHTTPTimeout
	}
	if cfg.Notifications.DingTalk.Timeout <= 0 {
		cfg.Notifications.DingTalk.Timeout = DefaultHTTPTimeout
	}
	if cfg.Deliveries.StoreLimit <= 0 {
		cfg.Deliveries.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Collector.Enabled {
		switch strings.ToLower(cfg.Collector.Source) {
		case "http":
			if cfg.Collector.BaseURL == "" {
				return errors.New("collector.base_url required for http source")
			}
		case "kafka":
			k := cfg.Collector.Kafka
			if len(k.Brokers) == 0 || k.Topic == "" || k.GroupID == "" {
				return errors.New("collector.kafka requires brokers, topic, group_id")
			}
		default:
			return fmt.Errorf("collector.source must be http or kafka, got %q", cfg.Collector.Source)
		}
	}
	switch strings.ToLower(cfg.Storage.Driver) {
	case "sqlite", "postgres", "postgresql":
	case "mongodb", "mongo":
		if cfg.Storage.DSN == "" {
			return errors.New("storage.dsn required for mongodb")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
	for i, r := range cfg.Rules {
		if _, err := r.Rule(); err != nil {
			return fmt.Errorf("rules[%d]: %w", i, err)
		}
	}
	return nil
}

// Rule converts a seed rule into the model form.
func (r RuleConfig) Rule() (model.AlertRule, error) {
	if strings.TrimSpace(r.Name) == "" {
		return model.AlertRule{}, errors.New("name required")
	}
	rule := model.AlertRule{
		Name:                    strings.TrimSpace(r.Name),
		Kind:                    model.RuleKind(strings.ToLower(r.Kind)),
		Enabled:                 r.Enabled == nil || *r.Enabled,
		EntityID:                strings.TrimSpace(r.EntityID),
		ThresholdBytesPerSec:    r.ThresholdBytesPerSec,
		OfflineThresholdMinutes: r.OfflineThresholdMinutes,
		Severity:                model.SeverityWarning,
	}
	switch rule.Kind {
	case model.KindTrafficThreshold:
		if rule.ThresholdBytesPerSec <= 0 {
			return model.AlertRule{}, fmt.Errorf("rule %q: threshold_bytes_per_sec must be > 0", rule.Name)
		}
	case model.KindDeviceOffline:
		if rule.OfflineThresholdMinutes <= 0 {
			return model.AlertRule{}, fmt.Errorf("rule %q: offline_threshold_minutes must be > 0", rule.Name)
		}
	default:
		return model.AlertRule{}, fmt.Errorf("rule %q: unknown kind %q", rule.Name, r.Kind)
	}
	if r.Severity != "" {
		sev, err := model.ParseSeverity(r.Severity)
		if err != nil {
			return model.AlertRule{}, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		rule.Severity = sev
	}
	for _, label := range r.Channels {
		kind, err := model.ParseChannelKind(label)
		if err != nil {
			return model.AlertRule{}, fmt.Errorf("rule %q: %w", rule.Name, err)
		}
		rule.NotificationChannels = append(rule.NotificationChannels, kind)
	}
	return rule, nil
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
