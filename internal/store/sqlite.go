package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"diaguru-scheduler/internal/domain"
)

// sqliteQuerier is the subset of *sql.DB / *sql.Tx SQLiteStore needs,
// mirroring the teacher's pg.Querier split between pool and transaction.
type sqliteQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteTxKey struct{}

// SQLiteStore is the sqlite-backed Store adapter used by tests and
// embedded deployments, grounded on internal/platform/sqlite's
// connection setup (WAL mode, foreign keys, busy timeout).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore builds a SQLiteStore over an already-opened database,
// typically created with sqlite.NewDB or sqlite.NewInMemoryDB.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) querier(ctx context.Context) sqliteQuerier {
	if tx, ok := ctx.Value(sqliteTxKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	ctx = context.WithValue(ctx, sqliteTxKey{}, tx)
	if err := fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

const sqliteCaptureColumns = `
	id, owner_id, content, estimated_minutes, importance, urgency, impact, reschedule_penalty,
	constraint_kind, constraint_time, constraint_end, constraint_date,
	deadline_at, window_start, window_end,
	start_target_at, original_target_time, is_soft_start,
	cannot_overlap, start_flexibility, duration_flexibility, min_chunk_minutes, max_splits,
	extraction_kind, task_type_hint, preferred_time_of_day, time_pref_day,
	status, planned_start, planned_end, scheduled_for,
	calendar_event_id, calendar_event_etag,
	freeze_until, reschedule_count, externality_score,
	created_at, updated_at, plan_id, manual_touch_at, scheduling_notes`

func (s *SQLiteStore) CreateCapture(ctx context.Context, c domain.Capture) error {
	notes, err := encodeNotes(c.SchedulingNotes)
	if err != nil {
		return err
	}
	q := s.querier(ctx)
	_, err = q.ExecContext(ctx, `INSERT INTO capture_entries (`+sqliteCaptureColumns+`) VALUES (`+placeholders(41)+`)`,
		c.ID, c.OwnerID, c.Content, c.EstimatedMinutes, c.Importance, c.Urgency, c.Impact, c.ReschedulePenalty,
		string(c.ConstraintKind), timePtr(c.ConstraintTime), timePtr(c.ConstraintEnd), timePtr(c.ConstraintDate),
		timePtr(c.DeadlineAt), timePtr(c.WindowStart), timePtr(c.WindowEnd),
		timePtr(c.StartTargetAt), timePtr(c.OriginalTargetTime), c.IsSoftStart,
		c.CannotOverlap, string(c.StartFlexibility), string(c.DurationFlexibility), c.MinChunkMinutes, c.MaxSplits,
		c.ExtractionKind, c.TaskTypeHint, timeOfDayPtr(c.PreferredTimeOfDay), c.TimePrefDay,
		string(c.Status), timePtr(c.PlannedStart), timePtr(c.PlannedEnd), timePtr(c.ScheduledFor),
		c.CalendarEventID, c.CalendarEventETag,
		timePtr(c.FreezeUntil), c.RescheduleCount, c.ExternalityScore,
		c.CreatedAt, c.UpdatedAt, c.PlanID, timePtr(c.ManualTouchAt), notes,
	)
	if err != nil {
		return fmt.Errorf("store: create capture: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateCapture(ctx context.Context, c domain.Capture) error {
	notes, err := encodeNotes(c.SchedulingNotes)
	if err != nil {
		return err
	}
	q := s.querier(ctx)
	res, err := q.ExecContext(ctx, `UPDATE capture_entries SET
		owner_id=?, content=?, estimated_minutes=?, importance=?, urgency=?, impact=?, reschedule_penalty=?,
		constraint_kind=?, constraint_time=?, constraint_end=?, constraint_date=?,
		deadline_at=?, window_start=?, window_end=?,
		start_target_at=?, original_target_time=?, is_soft_start=?,
		cannot_overlap=?, start_flexibility=?, duration_flexibility=?, min_chunk_minutes=?, max_splits=?,
		extraction_kind=?, task_type_hint=?, preferred_time_of_day=?, time_pref_day=?,
		status=?, planned_start=?, planned_end=?, scheduled_for=?,
		calendar_event_id=?, calendar_event_etag=?,
		freeze_until=?, reschedule_count=?, externality_score=?,
		updated_at=?, plan_id=?, manual_touch_at=?, scheduling_notes=?
		WHERE id=?`,
		c.OwnerID, c.Content, c.EstimatedMinutes, c.Importance, c.Urgency, c.Impact, c.ReschedulePenalty,
		string(c.ConstraintKind), timePtr(c.ConstraintTime), timePtr(c.ConstraintEnd), timePtr(c.ConstraintDate),
		timePtr(c.DeadlineAt), timePtr(c.WindowStart), timePtr(c.WindowEnd),
		timePtr(c.StartTargetAt), timePtr(c.OriginalTargetTime), c.IsSoftStart,
		c.CannotOverlap, string(c.StartFlexibility), string(c.DurationFlexibility), c.MinChunkMinutes, c.MaxSplits,
		c.ExtractionKind, c.TaskTypeHint, timeOfDayPtr(c.PreferredTimeOfDay), c.TimePrefDay,
		string(c.Status), timePtr(c.PlannedStart), timePtr(c.PlannedEnd), timePtr(c.ScheduledFor),
		c.CalendarEventID, c.CalendarEventETag,
		timePtr(c.FreezeUntil), c.RescheduleCount, c.ExternalityScore,
		c.UpdatedAt, c.PlanID, timePtr(c.ManualTouchAt), notes,
		c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update capture: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update capture rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetCapture(ctx context.Context, id string) (domain.Capture, error) {
	q := s.querier(ctx)
	row := q.QueryRowContext(ctx, `SELECT `+sqliteCaptureColumns+` FROM capture_entries WHERE id=?`, id)
	c, err := scanCaptureSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Capture{}, ErrNotFound
	}
	if err != nil {
		return domain.Capture{}, fmt.Errorf("store: get capture: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListOwnedCaptures(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Capture, error) {
	q := s.querier(ctx)
	rows, err := q.QueryContext(ctx, `SELECT `+sqliteCaptureColumns+` FROM capture_entries
		WHERE owner_id=? AND status='scheduled' AND planned_start < ? AND planned_end > ?`,
		ownerID, to, from)
	if err != nil {
		return nil, fmt.Errorf("store: list owned captures: %w", err)
	}
	defer rows.Close()
	return scanCaptureRowsSQLite(rows)
}

func (s *SQLiteStore) ListPendingCaptures(ctx context.Context, ownerID string) ([]domain.Capture, error) {
	q := s.querier(ctx)
	rows, err := q.QueryContext(ctx, `SELECT `+sqliteCaptureColumns+` FROM capture_entries
		WHERE owner_id=? AND status='pending' ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list pending captures: %w", err)
	}
	defer rows.Close()
	return scanCaptureRowsSQLite(rows)
}

func (s *SQLiteStore) ReplaceChunks(ctx context.Context, captureID string, chunks []domain.Chunk) error {
	q := s.querier(ctx)
	if _, err := q.ExecContext(ctx, `DELETE FROM capture_chunks WHERE capture_id=?`, captureID); err != nil {
		return fmt.Errorf("store: replace chunks (delete): %w", err)
	}
	for i, ch := range chunks {
		if _, err := q.ExecContext(ctx, `INSERT INTO capture_chunks (capture_id, seq, start_at, end_at, prime, late, overlapped)
			VALUES (?,?,?,?,?,?,?)`, captureID, i, ch.Start, ch.End, ch.Prime, ch.Late, ch.Overlapped); err != nil {
			return fmt.Errorf("store: replace chunks (insert): %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetChunks(ctx context.Context, captureID string) ([]domain.Chunk, error) {
	q := s.querier(ctx)
	rows, err := q.QueryContext(ctx, `SELECT start_at, end_at, prime, late, overlapped FROM capture_chunks
		WHERE capture_id=? ORDER BY seq ASC`, captureID)
	if err != nil {
		return nil, fmt.Errorf("store: get chunks: %w", err)
	}
	defer rows.Close()
	var out []domain.Chunk
	for rows.Next() {
		var ch domain.Chunk
		if err := rows.Scan(&ch.Start, &ch.End, &ch.Prime, &ch.Late, &ch.Overlapped); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SavePlanRun(ctx context.Context, run *domain.PlanRun) error {
	q := s.querier(ctx)
	_, err := q.ExecContext(ctx, `INSERT INTO plan_runs (id, user_id, summary, created_at) VALUES (?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET summary=excluded.summary`,
		run.ID, run.UserID, run.Summary, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: save plan run: %w", err)
	}
	for _, a := range run.Actions {
		before, err := encodeSnapshot(a.Before)
		if err != nil {
			return err
		}
		after, err := encodeSnapshot(a.After)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `INSERT INTO plan_actions
			(id, plan_id, action_id, capture_id, capture_content, kind, before, after, created_at)
			VALUES (?,?,?,?,?,?,?,?,?) ON CONFLICT(id) DO NOTHING`,
			a.ID, a.PlanID, a.ActionID, a.CaptureID, a.CaptureContent, string(a.Kind), before, after, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: save plan action: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetPlanRun(ctx context.Context, id string) (*domain.PlanRun, error) {
	q := s.querier(ctx)
	row := q.QueryRowContext(ctx, `SELECT id, user_id, summary, created_at FROM plan_runs WHERE id=?`, id)
	run := &domain.PlanRun{}
	if err := row.Scan(&run.ID, &run.UserID, &run.Summary, &run.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get plan run: %w", err)
	}
	rows, err := q.QueryContext(ctx, `SELECT id, plan_id, action_id, capture_id, capture_content, kind, before, after, created_at
		FROM plan_actions WHERE plan_id=? ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("store: get plan actions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.PlanAction
		var before, after []byte
		var kind string
		if err := rows.Scan(&a.ID, &a.PlanID, &a.ActionID, &a.CaptureID, &a.CaptureContent, &kind, &before, &after, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan plan action: %w", err)
		}
		a.Kind = domain.ActionKind(kind)
		if a.Before, err = decodeSnapshot(before); err != nil {
			return nil, err
		}
		if a.After, err = decodeSnapshot(after); err != nil {
			return nil, err
		}
		run.Actions = append(run.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return run, nil
}

// sqliteRow is the subset of *sql.Row/*sql.Rows scanCaptureSQLite needs.
type sqliteRow interface {
	Scan(dest ...any) error
}

func scanCaptureSQLite(row sqliteRow) (domain.Capture, error) {
	var c domain.Capture
	var constraintKind, startFlex, durFlex, status string
	var preferredTimeOfDay *string
	var notes []byte
	var constraintTime, constraintEnd, constraintDate, deadlineAt, windowStart, windowEnd *time.Time
	var startTargetAt, originalTargetTime, plannedStart, plannedEnd, scheduledFor, freezeUntil, manualTouchAt *time.Time
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Content, &c.EstimatedMinutes, &c.Importance, &c.Urgency, &c.Impact, &c.ReschedulePenalty,
		&constraintKind, &constraintTime, &constraintEnd, &constraintDate,
		&deadlineAt, &windowStart, &windowEnd,
		&startTargetAt, &originalTargetTime, &c.IsSoftStart,
		&c.CannotOverlap, &startFlex, &durFlex, &c.MinChunkMinutes, &c.MaxSplits,
		&c.ExtractionKind, &c.TaskTypeHint, &preferredTimeOfDay, &c.TimePrefDay,
		&status, &plannedStart, &plannedEnd, &scheduledFor,
		&c.CalendarEventID, &c.CalendarEventETag,
		&freezeUntil, &c.RescheduleCount, &c.ExternalityScore,
		&c.CreatedAt, &c.UpdatedAt, &c.PlanID, &manualTouchAt, &notes,
	)
	if err != nil {
		return domain.Capture{}, err
	}
	c.ConstraintKind = domain.ConstraintKind(constraintKind)
	c.StartFlexibility = domain.StartFlexibility(startFlex)
	c.DurationFlexibility = domain.DurationFlexibility(durFlex)
	c.Status = domain.CaptureStatus(status)
	c.ConstraintTime, c.ConstraintEnd, c.ConstraintDate = constraintTime, constraintEnd, constraintDate
	c.DeadlineAt, c.WindowStart, c.WindowEnd = deadlineAt, windowStart, windowEnd
	c.StartTargetAt, c.OriginalTargetTime = startTargetAt, originalTargetTime
	c.PlannedStart, c.PlannedEnd, c.ScheduledFor = plannedStart, plannedEnd, scheduledFor
	c.FreezeUntil, c.ManualTouchAt = freezeUntil, manualTouchAt
	if preferredTimeOfDay != nil {
		tod := domain.TimeOfDay(*preferredTimeOfDay)
		c.PreferredTimeOfDay = &tod
	}
	c.SchedulingNotes, err = decodeNotes(notes)
	if err != nil {
		return domain.Capture{}, err
	}
	return c, nil
}

func scanCaptureRowsSQLite(rows *sql.Rows) ([]domain.Capture, error) {
	var out []domain.Capture
	for rows.Next() {
		c, err := scanCaptureSQLite(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan capture: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
