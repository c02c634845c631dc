// Package repository implements all database queries for the event registration system.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db   DBTX
	inTx bool
}

// NewEventRepository constructs a pool-bound EventRepository.
func NewEventRepository(db DBTX) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event and returns it with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	event := &model.Event{
		ID:             uuid.New(),
		Title:          req.Title,
		Description:    req.Description,
		StartsAt:       req.StartsAt.UTC().Truncate(time.Microsecond),
		SignupDeadline: utcPtr(req.SignupDeadline),
		Capacity:       req.Capacity,
		IsPublished:    req.IsPublished,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
	event.RemainingSeats = event.Remaining()

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, description, starts_at, signup_deadline, capacity, is_published, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.Title, event.Description, event.StartsAt, event.SignupDeadline,
		event.Capacity, event.IsPublished, event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return event, nil
}

const eventColumns = `e.id, e.title, e.description, e.starts_at, e.signup_deadline, e.capacity, e.is_published, e.created_at,
	(SELECT COUNT(*) FROM registrations r WHERE r.event_id = e.id AND r.status = 'registered')`

// List returns all events ordered by start time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+eventColumns+`
		 FROM events e
		 ORDER BY e.starts_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrNotFound.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`
		 FROM events e WHERE e.id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Exists reports whether an event with the given id exists.
func (r *EventRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event: %w", err)
	}
	return exists, nil
}

// Snapshot reads the registration-relevant fields of an event without
// locking. For display only; the registration path uses LockedSnapshot.
func (r *EventRepository) Snapshot(ctx context.Context, id uuid.UUID) (*model.EventSnapshot, error) {
	return r.snapshot(ctx, id, `SELECT capacity, signup_deadline, starts_at, is_published
		 FROM events
		 WHERE id = $1`)
}

// LockedSnapshot reads the registration-relevant fields of an event and
// takes an exclusive lock on its row with SELECT … FOR UPDATE.
//
// Any other transaction calling LockedSnapshot for the same event blocks
// until this transaction commits or rolls back, which serialises every
// count-then-insert performed by the registration ledger for that event.
// It must be called on a repository obtained from Store.WithTx.
func (r *EventRepository) LockedSnapshot(ctx context.Context, id uuid.UUID) (*model.EventSnapshot, error) {
	if !r.inTx {
		return nil, errors.New("locked snapshot requires a transaction")
	}
	return r.snapshot(ctx, id, `SELECT capacity, signup_deadline, starts_at, is_published
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`)
}

func (r *EventRepository) snapshot(ctx context.Context, id uuid.UUID, query string) (*model.EventSnapshot, error) {
	var (
		snap     model.EventSnapshot
		capacity *int32
	)
	err := r.db.QueryRow(ctx, query, id).Scan(&capacity, &snap.SignupDeadline, &snap.StartsAt, &snap.IsPublished)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read event snapshot: %w", err)
	}
	snap.Capacity = intPtr(capacity)
	snap.StartsAt = snap.StartsAt.UTC()
	snap.SignupDeadline = utcPtr(snap.SignupDeadline)
	return &snap, nil
}

func scanEvent(row pgx.Row) (*model.Event, error) {
	var (
		e        model.Event
		capacity *int32
		count    int64
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.SignupDeadline,
		&capacity, &e.IsPublished, &e.CreatedAt, &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.Capacity = intPtr(capacity)
	e.RegisteredCount = int(count)
	e.RemainingSeats = e.Remaining()
	e.StartsAt = e.StartsAt.UTC()
	e.SignupDeadline = utcPtr(e.SignupDeadline)
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC().Truncate(time.Microsecond)
	return &u
}
