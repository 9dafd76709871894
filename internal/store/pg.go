package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"diaguru-scheduler/internal/domain"
	"diaguru-scheduler/internal/platform/pg"
)

// PGStore is the Postgres-backed Store adapter. It delegates
// transaction propagation to the teacher's pg.TxRunner/GetQuerier
// pattern: every statement below runs against pg.GetQuerier(ctx),
// which resolves to the active transaction inside WithinTx and to the
// pool otherwise.
type PGStore struct {
	pool *pgxpool.Pool
	tx   *pg.TxRunner
}

// NewPGStore builds a PGStore over an already-connected pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool, tx: pg.NewTxRunner(pool)}
}

func (s *PGStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.tx.WithinTx(ctx, fn)
}

const captureColumns = `
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

func (s *PGStore) CreateCapture(ctx context.Context, c domain.Capture) error {
	notes, err := encodeNotes(c.SchedulingNotes)
	if err != nil {
		return err
	}
	q := s.tx.GetQuerier(ctx)
	_, err = q.Exec(ctx, `INSERT INTO capture_entries (`+captureColumns+`) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,
		$28,$29,$30,$31,$32,$33,$34,$35,$36,$37,$38,$39,$40,$41)`,
		c.ID, c.OwnerID, c.Content, c.EstimatedMinutes, c.Importance, c.Urgency, c.Impact, c.ReschedulePenalty,
		string(c.ConstraintKind), c.ConstraintTime, c.ConstraintEnd, c.ConstraintDate,
		c.DeadlineAt, c.WindowStart, c.WindowEnd,
		c.StartTargetAt, c.OriginalTargetTime, c.IsSoftStart,
		c.CannotOverlap, string(c.StartFlexibility), string(c.DurationFlexibility), c.MinChunkMinutes, c.MaxSplits,
		c.ExtractionKind, c.TaskTypeHint, timeOfDayPtr(c.PreferredTimeOfDay), c.TimePrefDay,
		string(c.Status), c.PlannedStart, c.PlannedEnd, c.ScheduledFor,
		c.CalendarEventID, c.CalendarEventETag,
		c.FreezeUntil, c.RescheduleCount, c.ExternalityScore,
		c.CreatedAt, c.UpdatedAt, c.PlanID, c.ManualTouchAt, notes,
	)
	if err != nil {
		return fmt.Errorf("store: create capture: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateCapture(ctx context.Context, c domain.Capture) error {
	notes, err := encodeNotes(c.SchedulingNotes)
	if err != nil {
		return err
	}
	q := s.tx.GetQuerier(ctx)
	tag, err := q.Exec(ctx, `UPDATE capture_entries SET
		owner_id=$2, content=$3, estimated_minutes=$4, importance=$5, urgency=$6, impact=$7, reschedule_penalty=$8,
		constraint_kind=$9, constraint_time=$10, constraint_end=$11, constraint_date=$12,
		deadline_at=$13, window_start=$14, window_end=$15,
		start_target_at=$16, original_target_time=$17, is_soft_start=$18,
		cannot_overlap=$19, start_flexibility=$20, duration_flexibility=$21, min_chunk_minutes=$22, max_splits=$23,
		extraction_kind=$24, task_type_hint=$25, preferred_time_of_day=$26, time_pref_day=$27,
		status=$28, planned_start=$29, planned_end=$30, scheduled_for=$31,
		calendar_event_id=$32, calendar_event_etag=$33,
		freeze_until=$34, reschedule_count=$35, externality_score=$36,
		updated_at=$37, plan_id=$38, manual_touch_at=$39, scheduling_notes=$40
		WHERE id=$1`,
		c.ID, c.OwnerID, c.Content, c.EstimatedMinutes, c.Importance, c.Urgency, c.Impact, c.ReschedulePenalty,
		string(c.ConstraintKind), c.ConstraintTime, c.ConstraintEnd, c.ConstraintDate,
		c.DeadlineAt, c.WindowStart, c.WindowEnd,
		c.StartTargetAt, c.OriginalTargetTime, c.IsSoftStart,
		c.CannotOverlap, string(c.StartFlexibility), string(c.DurationFlexibility), c.MinChunkMinutes, c.MaxSplits,
		c.ExtractionKind, c.TaskTypeHint, timeOfDayPtr(c.PreferredTimeOfDay), c.TimePrefDay,
		string(c.Status), c.PlannedStart, c.PlannedEnd, c.ScheduledFor,
		c.CalendarEventID, c.CalendarEventETag,
		c.FreezeUntil, c.RescheduleCount, c.ExternalityScore,
		c.UpdatedAt, c.PlanID, c.ManualTouchAt, notes,
	)
	if err != nil {
		return fmt.Errorf("store: update capture: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) GetCapture(ctx context.Context, id string) (domain.Capture, error) {
	q := s.tx.GetQuerier(ctx)
	row := q.QueryRow(ctx, `SELECT `+captureColumns+` FROM capture_entries WHERE id=$1`, id)
	c, err := scanCapturePG(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Capture{}, ErrNotFound
	}
	if err != nil {
		return domain.Capture{}, fmt.Errorf("store: get capture: %w", err)
	}
	return c, nil
}

func (s *PGStore) ListOwnedCaptures(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Capture, error) {
	q := s.tx.GetQuerier(ctx)
	rows, err := q.Query(ctx, `SELECT `+captureColumns+` FROM capture_entries
		WHERE owner_id=$1 AND status='scheduled' AND planned_start < $3 AND planned_end > $2`,
		ownerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("store: list owned captures: %w", err)
	}
	defer rows.Close()
	return scanCaptureRowsPG(rows)
}

func (s *PGStore) ListPendingCaptures(ctx context.Context, ownerID string) ([]domain.Capture, error) {
	q := s.tx.GetQuerier(ctx)
	rows, err := q.Query(ctx, `SELECT `+captureColumns+` FROM capture_entries
		WHERE owner_id=$1 AND status='pending' ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list pending captures: %w", err)
	}
	defer rows.Close()
	return scanCaptureRowsPG(rows)
}

// ListAllPendingCaptures returns every pending capture across all
// owners, for the pending-capture sweep job. It is not part of the
// Store port the orchestrator depends on (that port is always
// owner-scoped); the sweep job reads it through its own narrow
// interface, which *PGStore satisfies.
func (s *PGStore) ListAllPendingCaptures(ctx context.Context) ([]domain.Capture, error) {
	q := s.tx.GetQuerier(ctx)
	rows, err := q.Query(ctx, `SELECT `+captureColumns+` FROM capture_entries
		WHERE status='pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list all pending captures: %w", err)
	}
	defer rows.Close()
	return scanCaptureRowsPG(rows)
}

// RecordOverlapUsage upserts the overlap minutes a commit added to
// ownerID's budget for date's day. It's a best-effort audit record,
// not an enforcement input — overlap budget enforcement stays
// request-scoped (internal/overlap.Usage).
func (s *PGStore) RecordOverlapUsage(ctx context.Context, ownerID string, date time.Time, minutes int) error {
	q := s.tx.GetQuerier(ctx)
	_, err := q.Exec(ctx, `INSERT INTO overlap_budget (owner_id, budget_date, used_minutes, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (owner_id, budget_date)
		DO UPDATE SET used_minutes = overlap_budget.used_minutes + EXCLUDED.used_minutes, updated_at = EXCLUDED.updated_at`,
		ownerID, date.UTC().Format("2006-01-02"), minutes, date)
	if err != nil {
		return fmt.Errorf("store: record overlap usage: %w", err)
	}
	return nil
}

// PruneOverlapBudgetHistory deletes overlap_budget rows older than
// before, for the daily reset job.
func (s *PGStore) PruneOverlapBudgetHistory(ctx context.Context, before time.Time) error {
	q := s.tx.GetQuerier(ctx)
	_, err := q.Exec(ctx, `DELETE FROM overlap_budget WHERE budget_date < $1`, before.UTC().Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("store: prune overlap budget history: %w", err)
	}
	return nil
}

func (s *PGStore) ReplaceChunks(ctx context.Context, captureID string, chunks []domain.Chunk) error {
	q := s.tx.GetQuerier(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM capture_chunks WHERE capture_id=$1`, captureID); err != nil {
		return fmt.Errorf("store: replace chunks (delete): %w", err)
	}
	for i, ch := range chunks {
		if _, err := q.Exec(ctx, `INSERT INTO capture_chunks (capture_id, seq, start_at, end_at, prime, late, overlapped)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`, captureID, i, ch.Start, ch.End, ch.Prime, ch.Late, ch.Overlapped); err != nil {
			return fmt.Errorf("store: replace chunks (insert): %w", err)
		}
	}
	return nil
}

func (s *PGStore) GetChunks(ctx context.Context, captureID string) ([]domain.Chunk, error) {
	q := s.tx.GetQuerier(ctx)
	rows, err := q.Query(ctx, `SELECT start_at, end_at, prime, late, overlapped FROM capture_chunks
		WHERE capture_id=$1 ORDER BY seq ASC`, captureID)
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

func (s *PGStore) SavePlanRun(ctx context.Context, run *domain.PlanRun) error {
	q := s.tx.GetQuerier(ctx)
	_, err := q.Exec(ctx, `INSERT INTO plan_runs (id, user_id, summary, created_at) VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET summary=EXCLUDED.summary`,
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
		_, err = q.Exec(ctx, `INSERT INTO plan_actions
			(id, plan_id, action_id, capture_id, capture_content, kind, before, after, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (id) DO NOTHING`,
			a.ID, a.PlanID, a.ActionID, a.CaptureID, a.CaptureContent, string(a.Kind), before, after, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: save plan action: %w", err)
		}
	}
	return nil
}

func (s *PGStore) GetPlanRun(ctx context.Context, id string) (*domain.PlanRun, error) {
	q := s.tx.GetQuerier(ctx)
	row := q.QueryRow(ctx, `SELECT id, user_id, summary, created_at FROM plan_runs WHERE id=$1`, id)
	run := &domain.PlanRun{}
	if err := row.Scan(&run.ID, &run.UserID, &run.Summary, &run.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get plan run: %w", err)
	}
	rows, err := q.Query(ctx, `SELECT id, plan_id, action_id, capture_id, capture_content, kind, before, after, created_at
		FROM plan_actions WHERE plan_id=$1 ORDER BY created_at ASC`, id)
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

func timeOfDayPtr(t *domain.TimeOfDay) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

// pgRow is the subset of pgx.Row/pgx.Rows scanCapturePG needs, so it
// can be used against both QueryRow and Query results.
type pgRow interface {
	Scan(dest ...any) error
}

func scanCapturePG(row pgRow) (domain.Capture, error) {
	var c domain.Capture
	var constraintKind, startFlex, durFlex, status string
	var preferredTimeOfDay *string
	var notes []byte
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Content, &c.EstimatedMinutes, &c.Importance, &c.Urgency, &c.Impact, &c.ReschedulePenalty,
		&constraintKind, &c.ConstraintTime, &c.ConstraintEnd, &c.ConstraintDate,
		&c.DeadlineAt, &c.WindowStart, &c.WindowEnd,
		&c.StartTargetAt, &c.OriginalTargetTime, &c.IsSoftStart,
		&c.CannotOverlap, &startFlex, &durFlex, &c.MinChunkMinutes, &c.MaxSplits,
		&c.ExtractionKind, &c.TaskTypeHint, &preferredTimeOfDay, &c.TimePrefDay,
		&status, &c.PlannedStart, &c.PlannedEnd, &c.ScheduledFor,
		&c.CalendarEventID, &c.CalendarEventETag,
		&c.FreezeUntil, &c.RescheduleCount, &c.ExternalityScore,
		&c.CreatedAt, &c.UpdatedAt, &c.PlanID, &c.ManualTouchAt, &notes,
	)
	if err != nil {
		return domain.Capture{}, err
	}
	c.ConstraintKind = domain.ConstraintKind(constraintKind)
	c.StartFlexibility = domain.StartFlexibility(startFlex)
	c.DurationFlexibility = domain.DurationFlexibility(durFlex)
	c.Status = domain.CaptureStatus(status)
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

func scanCaptureRowsPG(rows pgx.Rows) ([]domain.Capture, error) {
	var out []domain.Capture
	for rows.Next() {
		c, err := scanCapturePG(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan capture: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
