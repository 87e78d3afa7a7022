package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"bandwatch/internal/model"
)

// dialect holds what differs between the database/sql backends.
type dialect struct {
	name     string
	schema   []string
	numbered bool
	timeArg  func(time.Time) any
}

type baseStore struct {
	db *sql.DB
	d  dialect
}

const ruleColumns = `id, name, kind, enabled, entity_id, threshold_bytes, offline_threshold_minutes, notification_channels, severity`
const eventColumns = `id, rule_id, kind, message, severity, entity_id, triggered_at, resolved_at, status`

func (b *baseStore) Init(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	for _, stmt := range b.d.schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s init: %w", b.d.name, err)
		}
	}
	return nil
}

func (b *baseStore) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// bind rewrites "?" placeholders for drivers that use numbered parameters.
func (b *baseStore) bind(query string) string {
	if !b.d.numbered {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(ch)
	}
	return sb.String()
}

func (b *baseStore) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	rows, err := b.db.QueryContext(ctx,
		b.bind(`SELECT `+ruleColumns+` FROM alert_rules WHERE enabled = ? ORDER BY id`), true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			// one unreadable row must not hide the others
			slog.Warn("skipping unreadable alert rule", "driver", b.d.name, "err", err)
			continue
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (b *baseStore) SaveRule(ctx context.Context, rule model.AlertRule) (int64, error) {
	now := b.d.timeArg(nowUTC())
	var id int64
	err := b.db.QueryRowContext(ctx, b.bind(`SELECT id FROM alert_rules WHERE name = ?`), rule.Name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = b.db.QueryRowContext(ctx, b.bind(
			`INSERT INTO alert_rules (name, kind, enabled, entity_id, threshold_bytes, offline_threshold_minutes, notification_channels, severity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
			rule.Name,
			string(rule.Kind),
			rule.Enabled,
			nullString(rule.EntityID),
			nullInt(rule.ThresholdBytesPerSec),
			nullInt(int64(rule.OfflineThresholdMinutes)),
			encodeChannels(rule.NotificationChannels),
			string(rule.Severity),
			now,
			now,
		).Scan(&id)
		return id, err
	case err != nil:
		return 0, err
	}
	_, err = b.db.ExecContext(ctx, b.bind(
		`UPDATE alert_rules SET kind = ?, enabled = ?, entity_id = ?, threshold_bytes = ?, offline_threshold_minutes = ?,
		notification_channels = ?, severity = ?, updated_at = ? WHERE id = ?`),
		string(rule.Kind),
		rule.Enabled,
		nullString(rule.EntityID),
		nullInt(rule.ThresholdBytesPerSec),
		nullInt(int64(rule.OfflineThresholdMinutes)),
		encodeChannels(rule.NotificationChannels),
		string(rule.Severity),
		now,
		id,
	)
	return id, err
}

func (b *baseStore) CreateEvent(ctx context.Context, ev model.NewEvent) (int64, error) {
	triggered := ev.TriggeredAt
	if triggered.IsZero() {
		triggered = nowUTC()
	}
	var id int64
	err := b.db.QueryRowContext(ctx, b.bind(
		`INSERT INTO alert_events (rule_id, kind, message, severity, entity_id, triggered_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		ev.RuleID,
		string(ev.Kind),
		ev.Message,
		string(ev.Severity),
		nullString(ev.EntityID),
		b.d.timeArg(triggered.UTC()),
		string(model.StatusTriggered),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create event for rule %d: %w", ev.RuleID, err)
	}
	return id, nil
}

func (b *baseStore) FindOpenEvent(ctx context.Context, ruleID int64, entityID string, since time.Time) (*model.AlertEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM alert_events
		WHERE rule_id = ? AND status = ? AND triggered_at >= ? AND `
	args := []any{ruleID, string(model.StatusTriggered), b.d.timeArg(since.UTC())}
	if entityID == "" {
		query += `entity_id IS NULL`
	} else {
		query += `entity_id = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY triggered_at DESC LIMIT 1`
	return b.queryEvent(ctx, query, args...)
}

func (b *baseStore) GetEvent(ctx context.Context, id int64) (*model.AlertEvent, error) {
	return b.queryEvent(ctx, `SELECT `+eventColumns+` FROM alert_events WHERE id = ?`, id)
}

func (b *baseStore) queryEvent(ctx context.Context, query string, args ...any) (*model.AlertEvent, error) {
	var (
		ev        model.AlertEvent
		kind      string
		severity  string
		status    string
		entity    sql.NullString
		triggered timeValue
		resolved  timeValue
	)
	err := b.db.QueryRowContext(ctx, b.bind(query), args...).Scan(
		&ev.ID, &ev.RuleID, &kind, &ev.Message, &severity, &entity, &triggered, &resolved, &status,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ev.Kind = model.RuleKind(kind)
	ev.Severity = model.Severity(severity)
	ev.Status = model.Status(status)
	ev.EntityID = entity.String
	ev.TriggeredAt = triggered.t
	if resolved.valid {
		t := resolved.t
		ev.ResolvedAt = &t
	}
	return &ev, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (model.AlertRule, error) {
	var (
		rule      model.AlertRule
		kind      string
		severity  string
		channels  sql.NullString
		entity    sql.NullString
		threshold sql.NullInt64
		offline   sql.NullInt64
	)
	if err := row.Scan(&rule.ID, &rule.Name, &kind, &rule.Enabled, &entity, &threshold, &offline, &channels, &severity); err != nil {
		return model.AlertRule{}, err
	}
	rule.Kind = model.RuleKind(kind)
	rule.Severity = model.Severity(severity)
	rule.EntityID = entity.String
	rule.ThresholdBytesPerSec = threshold.Int64
	rule.OfflineThresholdMinutes = int(offline.Int64)
	kinds, err := decodeChannels(channels.String)
	if err != nil {
		slog.Warn("malformed notification channels, falling back to page",
			"rule_id", rule.ID, "raw", channels.String, "err", err)
		kinds = []model.ChannelKind{model.ChannelPage}
	}
	rule.NotificationChannels = kinds
	return rule, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

// timeValue scans timestamps stored either natively or as RFC 3339 text.
type timeValue struct {
	t     time.Time
	valid bool
}

func (v *timeValue) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		v.t, v.valid = time.Time{}, false
		return nil
	case time.Time:
		v.t, v.valid = s.UTC(), true
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (v *timeValue) parse(s string) error {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	v.t, v.valid = t.UTC(), true
	return nil
}
