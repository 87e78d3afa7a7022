package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteTimeLayout is fixed width so text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:bandwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db, d: sqliteDialect}}, nil
}

var sqliteDialect = dialect{
	name: "sqlite",
	timeArg: func(t time.Time) any {
		return t.UTC().Format(sqliteTimeLayout)
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			entity_id TEXT,
			threshold_bytes INTEGER,
			offline_threshold_minutes INTEGER,
			notification_channels TEXT NOT NULL DEFAULT '["page"]',
			severity TEXT NOT NULL DEFAULT 'warning',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_rules_kind ON alert_rules(kind)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			rule_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			entity_id TEXT,
			triggered_at TEXT NOT NULL,
			resolved_at TEXT,
			status TEXT NOT NULL DEFAULT 'triggered'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_open ON alert_events(rule_id, status, triggered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_entity ON alert_events(entity_id)`,
	},
}
