package model

import (
	"fmt"
	"strings"
	"time"
)

type RuleKind string

const (
	KindTrafficThreshold RuleKind = "traffic_threshold"
	KindDeviceOffline    RuleKind = "device_offline"
	// KindTest marks synthetic events built for test sends. No rule carries it.
	KindTest RuleKind = "test"
)

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

func ParseSeverity(s string) (Severity, error) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityInfo:
		return SeverityInfo, nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

type Status string

const (
	StatusTriggered    Status = "triggered"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

type ChannelKind string

const (
	ChannelPage     ChannelKind = "page"
	ChannelEmail    ChannelKind = "email"
	ChannelWebhook  ChannelKind = "webhook"
	ChannelTelegram ChannelKind = "telegram"
	ChannelWeCom    ChannelKind = "wecom"
	ChannelDingTalk ChannelKind = "dingtalk"
)

// AllChannels lists every channel kind in registry order.
var AllChannels = []ChannelKind{
	ChannelPage,
	ChannelEmail,
	ChannelWebhook,
	ChannelTelegram,
	ChannelWeCom,
	ChannelDingTalk,
}

func ParseChannelKind(s string) (ChannelKind, error) {
	label := ChannelKind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllChannels {
		if k == label {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown channel kind %q", s)
}

type AlertRule struct {
	ID                      int64         `json:"id"`
	Name                    string        `json:"name"`
	Kind                    RuleKind      `json:"kind"`
	Enabled                 bool          `json:"enabled"`
	EntityID                string        `json:"entity_id,omitempty"`
	ThresholdBytesPerSec    int64         `json:"threshold_bytes_per_sec,omitempty"`
	OfflineThresholdMinutes int           `json:"offline_threshold_minutes,omitempty"`
	NotificationChannels    []ChannelKind `json:"notification_channels"`
	Severity                Severity      `json:"severity"`
}

// AllEntities reports whether the rule is scoped to every entity.
func (r AlertRule) AllEntities() bool {
	return r.EntityID == ""
}

// Channels returns the rule's channels, defaulting to page.
func (r AlertRule) Channels() []ChannelKind {
	if len(r.NotificationChannels) == 0 {
		return []ChannelKind{ChannelPage}
	}
	out := make([]ChannelKind, 0, len(r.NotificationChannels))
	seen := make(map[ChannelKind]bool, len(r.NotificationChannels))
	for _, k := range r.NotificationChannels {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

type AlertEvent struct {
	ID          int64      `json:"id"`
	RuleID      int64      `json:"rule_id"`
	Kind        RuleKind   `json:"kind"`
	Message     string     `json:"message"`
	Severity    Severity   `json:"severity"`
	EntityID    string     `json:"entity_id,omitempty"`
	TriggeredAt time.Time  `json:"triggered_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Status      Status     `json:"status"`
}

// NewEvent carries the fields the evaluator supplies when recording a trigger.
type NewEvent struct {
	RuleID      int64
	Kind        RuleKind
	Message     string
	Severity    Severity
	EntityID    string
	TriggeredAt time.Time
}

type DispatchTask struct {
	EventID  int64         `json:"event_id"`
	Channels []ChannelKind `json:"channels"`
}

type ChannelResult struct {
	Channel ChannelKind `json:"channel"`
	Success bool        `json:"success"`
	Detail  string      `json:"detail"`
}

type Rate struct {
	DownRate int64 `json:"down_rate"`
	UpRate   int64 `json:"up_rate"`
}

func (r Rate) Sum() int64 {
	return r.DownRate + r.UpRate
}

type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Rate
	// LastSeen is zero when no traffic record exists for the entity.
	LastSeen time.Time `json:"last_seen"`
}

func (e Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

type Snapshot struct {
	TakenAt  time.Time `json:"taken_at"`
	Total    Rate      `json:"total"`
	Entities []Entity  `json:"entities"`
}

func (s Snapshot) Entity(id string) (Entity, bool) {
	for _, e := range s.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}

// DeliverySummary is the per-task outcome surfaced by the aggregator.
type DeliverySummary struct {
	Timestamp time.Time       `json:"timestamp"`
	EventID   int64           `json:"event_id"`
	RuleID    int64           `json:"rule_id"`
	Kind      RuleKind        `json:"kind"`
	Success   int             `json:"success"`
	Total     int             `json:"total"`
	Results   []ChannelResult `json:"results"`
}
