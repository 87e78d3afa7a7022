package storage

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/bandwatch?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db, d: postgresDialect}}, nil
}

var postgresDialect = dialect{
	name:     "postgres",
	numbered: true,
	timeArg: func(t time.Time) any {
		return t.UTC()
	},
	schema: []string{
		`CREATE TABLE IF NOT EXISTS alert_rules (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			entity_id TEXT,
			threshold_bytes BIGINT,
			offline_threshold_minutes INTEGER,
			notification_channels TEXT NOT NULL DEFAULT '["page"]',
			severity TEXT NOT NULL DEFAULT 'warning',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_rules_kind ON alert_rules(kind)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			id BIGSERIAL PRIMARY KEY,
			rule_id BIGINT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			severity TEXT NOT NULL,
			entity_id TEXT,
			triggered_at TIMESTAMPTZ NOT NULL,
			resolved_at TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'triggered'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_open ON alert_events(rule_id, status, triggered_at)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_events_entity ON alert_events(entity_id)`,
	},
}
