package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bandwatch/internal/config"
	"bandwatch/internal/model"
)

var ErrUnsupportedDriver = errors.New("unsupported storage driver")

// Store persists alert rules and alert events. Lookups that find nothing
// return a nil event and a nil error.
type Store interface {
	Init(ctx context.Context) error
	Close() error
	ListEnabledRules(ctx context.Context) ([]model.AlertRule, error)
	SaveRule(ctx context.Context, rule model.AlertRule) (int64, error)
	CreateEvent(ctx context.Context, ev model.NewEvent) (int64, error)
	FindOpenEvent(ctx context.Context, ruleID int64, entityID string, since time.Time) (*model.AlertEvent, error)
	GetEvent(ctx context.Context, id int64) (*model.AlertEvent, error)
}

func NewStore(cfg config.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite":
		return NewSQLite(cfg.DSN)
	case "postgres", "postgresql":
		return NewPostgres(cfg.DSN)
	case "mongodb", "mongo":
		return NewMongo(cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// SeedRules upserts the configured rules by name.
func SeedRules(ctx context.Context, s Store, rules []config.RuleConfig) (int, error) {
	n := 0
	for _, rc := range rules {
		rule, err := rc.Rule()
		if err != nil {
			return n, err
		}
		if _, err := s.SaveRule(ctx, rule); err != nil {
			return n, fmt.Errorf("save rule %q: %w", rule.Name, err)
		}
		n++
	}
	return n, nil
}

func encodeChannels(kinds []model.ChannelKind) string {
	if kinds == nil {
		kinds = []model.ChannelKind{}
	}
	data, _ := json.Marshal(kinds)
	return string(data)
}

func decodeChannels(raw string) ([]model.ChannelKind, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil {
		return nil, fmt.Errorf("decode notification channels: %w", err)
	}
	out := make([]model.ChannelKind, 0, len(labels))
	for _, l := range labels {
		out = append(out, model.ChannelKind(strings.ToLower(strings.TrimSpace(l))))
	}
	return out, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
