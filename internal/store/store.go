// Package store defines the persistence port for scheduling state
// (spec.md §6: capture_entries, plan_runs, plan_actions, capture_chunks)
// and its adapters: a Postgres adapter grounded on internal/platform/pg,
// and a sqlite adapter grounded on internal/platform/sqlite, used by
// tests and any embedded deployment that has no Postgres available.
package store

import (
	"context"
	"errors"
	"time"

	"diaguru-scheduler/internal/domain"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence port the orchestrator depends on. Every
// method is context-bound so a caller running inside WithinTx gets a
// transactional view automatically (spec.md §4.15: a scheduling
// request's capture mutations and its audit trail commit atomically).
type Store interface {
	// WithinTx runs fn with a context carrying an active transaction;
	// fn's returned error rolls the transaction back.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateCapture(ctx context.Context, c domain.Capture) error
	UpdateCapture(ctx context.Context, c domain.Capture) error
	GetCapture(ctx context.Context, id string) (domain.Capture, error)

	// ListOwnedCaptures returns every scheduled capture owned by
	// ownerID whose planned placement overlaps [from, to) — the grid's
	// owned-event source (spec.md §4.4).
	ListOwnedCaptures(ctx context.Context, ownerID string, from, to time.Time) ([]domain.Capture, error)

	// ListPendingCaptures returns ownerID's captures awaiting placement,
	// oldest first. The pending-capture sweep job does not use it; it
	// reads PGStore.ListAllPendingCaptures instead.
	ListPendingCaptures(ctx context.Context, ownerID string) ([]domain.Capture, error)

	// ReplaceChunks atomically replaces a capture's committed chunk
	// sequence (spec.md §3: capture_chunks is replaced wholesale on
	// each commit, never diffed).
	ReplaceChunks(ctx context.Context, captureID string, chunks []domain.Chunk) error
	GetChunks(ctx context.Context, captureID string) ([]domain.Chunk, error)

	SavePlanRun(ctx context.Context, run *domain.PlanRun) error
	GetPlanRun(ctx context.Context, id string) (*domain.PlanRun, error)
}
