package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// triageSchema is applied at startup; every statement is idempotent.
var triageSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id                  BIGSERIAL PRIMARY KEY,
		conversation_id     TEXT        NOT NULL,
		role                TEXT        NOT NULL,
		content             TEXT        NOT NULL,
		sentiment           TEXT,
		harassment_severity TEXT,
		combined_risk       TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS harassment_events (
		id               BIGSERIAL PRIMARY KEY,
		conversation_id  TEXT        NOT NULL,
		severity         TEXT        NOT NULL,
		combined_risk    TEXT        NOT NULL,
		categories       TEXT[]      NOT NULL DEFAULT '{}',
		matched_patterns TEXT[]      NOT NULL DEFAULT '{}',
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_logs (
		id                  BIGSERIAL PRIMARY KEY,
		conversation_id     TEXT,
		message_text        TEXT        NOT NULL,
		harassment_severity TEXT        NOT NULL,
		sentiment           TEXT        NOT NULL,
		combined_risk       TEXT        NOT NULL,
		alerted             BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS handoffs (
		id                      BIGINT PRIMARY KEY,
		conversation_id         TEXT        NOT NULL UNIQUE,
		customer_name           TEXT,
		priority                TEXT        NOT NULL,
		summary                 TEXT        NOT NULL,
		status                  TEXT        NOT NULL,
		detected_issues         TEXT[]      NOT NULL DEFAULT '{}',
		order_numbers           TEXT[]      NOT NULL DEFAULT '{}',
		sentiment_history       TEXT[]      NOT NULL DEFAULT '{}',
		harassment_detected     BOOLEAN     NOT NULL DEFAULT FALSE,
		harassment_severity     TEXT        NOT NULL,
		trigger_excerpt         TEXT        NOT NULL DEFAULT '',
		trigger_categories      TEXT[]      NOT NULL DEFAULT '{}',
		escalation_reasons      TEXT[]      NOT NULL DEFAULT '{}',
		ai_resolution_attempted BOOLEAN     NOT NULL DEFAULT FALSE,
		total_messages          INT         NOT NULL DEFAULT 0,
		customer_messages       INT         NOT NULL DEFAULT 0,
		created_at              TIMESTAMPTZ NOT NULL,
		updated_at              TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_handoffs_status ON handoffs (status, created_at DESC)`,
}

// EnsureSchema creates the triage tables if they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range triageSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
