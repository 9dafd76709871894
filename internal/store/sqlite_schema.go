package store

import (
	"context"
	"database/sql"
	"fmt"
)

// sqliteSchema mirrors migrations/0001_init.up.sql in sqlite's dialect
// (no JSONB/BIGSERIAL), for the embedded/test adapter which has no
// golang-migrate runner of its own.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS capture_entries (
	id                     TEXT PRIMARY KEY,
	owner_id               TEXT NOT NULL,
	content                TEXT NOT NULL,
	estimated_minutes      INTEGER NOT NULL,
	importance             INTEGER NOT NULL DEFAULT 0,
	urgency                REAL,
	impact                 REAL,
	reschedule_penalty     REAL,

	constraint_kind        TEXT NOT NULL DEFAULT 'flexible',
	constraint_time        TIMESTAMP,
	constraint_end         TIMESTAMP,
	constraint_date        TIMESTAMP,

	deadline_at            TIMESTAMP,
	window_start           TIMESTAMP,
	window_end             TIMESTAMP,

	start_target_at        TIMESTAMP,
	original_target_time   TIMESTAMP,
	is_soft_start          INTEGER NOT NULL DEFAULT 0,

	cannot_overlap         INTEGER NOT NULL DEFAULT 0,
	start_flexibility      TEXT NOT NULL DEFAULT 'soft',
	duration_flexibility   TEXT NOT NULL DEFAULT 'fixed',
	min_chunk_minutes      INTEGER,
	max_splits             INTEGER,

	extraction_kind        TEXT,
	task_type_hint         TEXT,
	preferred_time_of_day  TEXT,
	time_pref_day          TEXT,

	status                 TEXT NOT NULL DEFAULT 'pending',
	planned_start          TIMESTAMP,
	planned_end            TIMESTAMP,
	scheduled_for          TIMESTAMP,

	calendar_event_id      TEXT,
	calendar_event_etag    TEXT,

	freeze_until           TIMESTAMP,
	reschedule_count       INTEGER NOT NULL DEFAULT 0,
	externality_score      REAL NOT NULL DEFAULT 0,

	created_at             TIMESTAMP NOT NULL,
	updated_at             TIMESTAMP NOT NULL,
	plan_id                TEXT,
	manual_touch_at        TIMESTAMP,
	scheduling_notes       TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_capture_entries_owner_status ON capture_entries (owner_id, status);
CREATE INDEX IF NOT EXISTS idx_capture_entries_owner_window ON capture_entries (owner_id, planned_start, planned_end);

CREATE TABLE IF NOT EXISTS capture_chunks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	capture_id  TEXT NOT NULL REFERENCES capture_entries(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	start_at    TIMESTAMP NOT NULL,
	end_at      TIMESTAMP NOT NULL,
	prime       INTEGER NOT NULL DEFAULT 0,
	late        INTEGER NOT NULL DEFAULT 0,
	overlapped  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_capture_chunks_capture ON capture_chunks (capture_id, seq);

CREATE TABLE IF NOT EXISTS plan_runs (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	summary    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS plan_actions (
	id              TEXT PRIMARY KEY,
	plan_id         TEXT NOT NULL REFERENCES plan_runs(id) ON DELETE CASCADE,
	action_id       TEXT NOT NULL,
	capture_id      TEXT NOT NULL,
	capture_content TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL,
	before          TEXT NOT NULL DEFAULT '{}',
	after           TEXT NOT NULL DEFAULT '{}',
	created_at      TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_plan_actions_plan ON plan_actions (plan_id, created_at);
`

// EnsureSchema creates the sqlite schema if it does not already exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("store: ensure sqlite schema: %w", err)
	}
	return nil
}
