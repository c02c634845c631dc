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

// RegistrationRepository is the registration ledger: one row per
// (event, student) pair, flipped between registered and canceled.
type RegistrationRepository struct {
	db DBTX
}

// NewRegistrationRepository constructs a pool-bound RegistrationRepository.
func NewRegistrationRepository(db DBTX) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `event_id, student_id, status::text, registered_at, canceled_at`

// Register makes the student's registration for the event active.
//
// If the pair already has an active row it is returned unchanged and changed
// is false. Otherwise the active count is checked against capacity (nil means
// unlimited) and a row is inserted, or a canceled row is reactivated with
// registered_at reset to now.
//
// The count-then-write is only race free when the caller holds the event row
// lock (EventRepository.LockedSnapshot) in the same transaction.
func (r *RegistrationRepository) Register(
	ctx context.Context,
	eventID, studentID uuid.UUID,
	capacity *int,
	now time.Time,
) (reg *model.Registration, changed bool, err error) {
	existing, err := r.Get(ctx, eventID, studentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	if existing != nil && existing.Status.Active() {
		return existing, false, nil
	}

	if capacity != nil {
		used, err := r.CountActive(ctx, eventID)
		if err != nil {
			return nil, false, err
		}
		if used >= *capacity {
			return nil, false, ErrNoSeats
		}
	}

	// The WHERE on the update arm keeps an already active row untouched; it
	// then returns no row, which only happens if another writer activated the
	// pair without holding the event lock.
	reg, err = scanRegistration(r.db.QueryRow(ctx,
		`INSERT INTO registrations (event_id, student_id, status, registered_at, canceled_at)
		 VALUES ($1, $2, 'registered', $3, NULL)
		 ON CONFLICT (event_id, student_id) DO UPDATE
		   SET status = 'registered',
		       registered_at = EXCLUDED.registered_at,
		       canceled_at = NULL
		   WHERE registrations.status = 'canceled'
		 RETURNING `+registrationColumns,
		eventID, studentID, now,
	))
	switch {
	case err == nil:
		return reg, true, nil
	case errors.Is(err, pgx.ErrNoRows), isUniqueViolation(err):
		return nil, false, ErrConflict
	case isForeignKeyViolation(err):
		return nil, false, fmt.Errorf("student %s: %w", studentID, ErrNotFound)
	default:
		return nil, false, fmt.Errorf("upsert registration: %w", err)
	}
}

// Cancel flips the pair's active row to canceled and returns it.
// It fails with ErrNotFound when no active row exists.
func (r *RegistrationRepository) Cancel(ctx context.Context, eventID, studentID uuid.UUID, now time.Time) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`UPDATE registrations
		 SET status = 'canceled', canceled_at = $3
		 WHERE event_id = $1 AND student_id = $2 AND status = 'registered'
		 RETURNING `+registrationColumns,
		eventID, studentID, now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cancel registration: %w", err)
	}
	return reg, nil
}

// Get returns the pair's row in whatever state it is in, or ErrNotFound.
func (r *RegistrationRepository) Get(ctx context.Context, eventID, studentID uuid.UUID) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+`
		 FROM registrations
		 WHERE event_id = $1 AND student_id = $2`,
		eventID, studentID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// CountActive returns the number of registered rows for the event.
func (r *RegistrationRepository) CountActive(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status = 'registered'`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return int(n), nil
}

// ListActive returns the event's active registrations joined with student
// identity, most recent first.
func (r *RegistrationRepository) ListActive(ctx context.Context, eventID uuid.UUID) ([]model.RegistrationView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.event_id, r.student_id, r.status::text, r.registered_at, r.canceled_at,
		        u.name, u.email
		 FROM registrations r
		 JOIN users u ON u.id = r.student_id
		 WHERE r.event_id = $1 AND r.status = 'registered'
		 ORDER BY r.registered_at DESC, r.student_id`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var views []model.RegistrationView
	for rows.Next() {
		var (
			v      model.RegistrationView
			status string
		)
		if err := rows.Scan(&v.EventID, &v.StudentID, &status, &v.RegisteredAt, &v.CanceledAt,
			&v.StudentName, &v.StudentEmail); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		if err := normalizeRegistration(&v.Registration, status); err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListForStudent returns the student's active registrations with event
// details, soonest event first.
func (r *RegistrationRepository) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]model.StudentRegistration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT r.event_id, r.student_id, r.status::text, r.registered_at, r.canceled_at,
		        e.title, e.starts_at
		 FROM registrations r
		 JOIN events e ON e.id = r.event_id
		 WHERE r.student_id = $1 AND r.status = 'registered'
		 ORDER BY e.starts_at ASC, e.id`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list student registrations: %w", err)
	}
	defer rows.Close()

	var out []model.StudentRegistration
	for rows.Next() {
		var (
			sr     model.StudentRegistration
			status string
		)
		if err := rows.Scan(&sr.EventID, &sr.StudentID, &status, &sr.RegisteredAt, &sr.CanceledAt,
			&sr.EventTitle, &sr.EventStartsAt); err != nil {
			return nil, fmt.Errorf("scan student registration: %w", err)
		}
		if err := normalizeRegistration(&sr.Registration, status); err != nil {
			return nil, err
		}
		sr.EventStartsAt = sr.EventStartsAt.UTC()
		out = append(out, sr)
	}
	return out, rows.Err()
}

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var (
		reg    model.Registration
		status string
	)
	if err := row.Scan(&reg.EventID, &reg.StudentID, &status, &reg.RegisteredAt, &reg.CanceledAt); err != nil {
		return nil, err
	}
	if err := normalizeRegistration(&reg, status); err != nil {
		return nil, err
	}
	return &reg, nil
}

// normalizeRegistration parses the stored status tag and moves timestamps to UTC.
func normalizeRegistration(reg *model.Registration, status string) error {
	st, err := model.ParseRegistrationStatus(status)
	if err != nil {
		return err
	}
	reg.Status = st
	reg.RegisteredAt = reg.RegisteredAt.UTC()
	reg.CanceledAt = utcPtr(reg.CanceledAt)
	return nil
}
