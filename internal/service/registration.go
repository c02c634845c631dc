package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/metrics"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/notify"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/repository"
)

// RegistrationService is the only entry point for changing registrations.
//
// Register holds the event's row lock from the capacity check until commit,
// so concurrent registrations for one event are linearised by PostgreSQL and
// the active count can never exceed capacity, however many instances run.
type RegistrationService struct {
	store     *repository.Store
	publisher notify.Publisher
	logger    *zap.Logger
	clock     func() time.Time
}

// Option configures a RegistrationService.
type Option func(*RegistrationService)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *RegistrationService) { s.clock = clock }
}

// WithPublisher sets where committed changes are announced.
func WithPublisher(p notify.Publisher) Option {
	return func(s *RegistrationService) { s.publisher = p }
}

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *RegistrationService) { s.logger = l }
}

// NewRegistrationService constructs a RegistrationService over store.
func NewRegistrationService(store *repository.Store, opts ...Option) *RegistrationService {
	s := &RegistrationService{
		store:     store,
		publisher: notify.NopPublisher{},
		logger:    zap.NewNop(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now is stored with PostgreSQL's microsecond precision.
func (s *RegistrationService) now() time.Time {
	return s.clock().UTC().Truncate(time.Microsecond)
}

// Register enrolls the student in the event.
//
// Registering twice is not an error: the existing active registration is
// returned. Failures are ErrNotFound (event or student), a precondition
// (not published, deadline passed, no seats), ErrConflict, or a wrapped
// infrastructure error.
func (s *RegistrationService) Register(ctx context.Context, eventID, studentID uuid.UUID) (*model.Registration, error) {
	start := time.Now()

	var (
		reg     *model.Registration
		changed bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		snap, err := tx.Events.LockedSnapshot(ctx, eventID)
		if err != nil {
			return err
		}
		// The deadline is judged when the lock is held, not when the call arrived.
		now := s.now()
		if err := CheckEligibility(*snap, now); err != nil {
			return err
		}
		reg, changed, err = tx.Registrations.Register(ctx, eventID, studentID, snap.Capacity, now)
		return err
	})
	if err != nil {
		s.fail("register", eventID, studentID, err, start)
		return nil, classify("register for event", err)
	}

	if !changed {
		metrics.RecordRegistration("register", metrics.OutcomeUnchanged, start)
		return reg, nil
	}
	metrics.RecordRegistration("register", metrics.OutcomeCreated, start)
	s.logger.Info("student registered",
		zap.Stringer("event_id", eventID),
		zap.Stringer("student_id", studentID),
	)
	s.publish(ctx, notify.KindRegistered, reg.EventID, reg.StudentID, reg.RegisteredAt)
	return reg, nil
}

// Cancel releases the student's seat. It does not take the event lock:
// freeing a seat can never push the count over capacity.
// ErrNotFound means there was no active registration to cancel.
func (s *RegistrationService) Cancel(ctx context.Context, eventID, studentID uuid.UUID) error {
	start := time.Now()

	var reg *model.Registration
	err := s.store.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		reg, err = tx.Registrations.Cancel(ctx, eventID, studentID, s.now())
		return err
	})
	if err != nil {
		s.fail("cancel", eventID, studentID, err, start)
		return classify("cancel registration", err)
	}

	metrics.RecordRegistration("cancel", metrics.OutcomeCanceled, start)
	s.logger.Info("registration canceled",
		zap.Stringer("event_id", eventID),
		zap.Stringer("student_id", studentID),
	)
	s.publish(ctx, notify.KindCanceled, reg.EventID, reg.StudentID, *reg.CanceledAt)
	return nil
}

// ListActive returns the event's active registrations, newest first.
func (s *RegistrationService) ListActive(ctx context.Context, eventID uuid.UUID) ([]model.RegistrationView, error) {
	if err := s.requireEvent(ctx, eventID); err != nil {
		return nil, err
	}
	views, err := s.store.Registrations.ListActive(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return views, nil
}

// CountActive returns the number of seats currently taken.
func (s *RegistrationService) CountActive(ctx context.Context, eventID uuid.UUID) (int, error) {
	if err := s.requireEvent(ctx, eventID); err != nil {
		return 0, err
	}
	n, err := s.store.Registrations.CountActive(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

// ListForStudent returns the events the student is registered for, soonest first.
func (s *RegistrationService) ListForStudent(ctx context.Context, studentID uuid.UUID) ([]model.StudentRegistration, error) {
	regs, err := s.store.Registrations.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student registrations: %w", err)
	}
	return regs, nil
}

func (s *RegistrationService) requireEvent(ctx context.Context, eventID uuid.UUID) error {
	ok, err := s.store.Events.Exists(ctx, eventID)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (s *RegistrationService) publish(ctx context.Context, kind notify.Kind, eventID, studentID uuid.UUID, at time.Time) {
	err := s.publisher.Publish(ctx, notify.Message{
		Type:      kind,
		EventID:   eventID,
		StudentID: studentID,
		At:        at,
	})
	if err != nil {
		metrics.NotificationFailures.Inc()
		s.logger.Warn("failed to publish registration notification",
			zap.String("type", string(kind)),
			zap.Stringer("event_id", eventID),
			zap.Stringer("student_id", studentID),
			zap.Error(err),
		)
	}
}

func (s *RegistrationService) fail(op string, eventID, studentID uuid.UUID, err error, start time.Time) {
	outcome := outcomeOf(err)
	metrics.RecordRegistration(op, outcome, start)

	var pe *repository.PreconditionError
	if errors.As(err, &pe) {
		metrics.RecordRejection(pe.Reason)
	}

	fields := []zap.Field{
		zap.String("operation", op),
		zap.Stringer("event_id", eventID),
		zap.Stringer("student_id", studentID),
		zap.String("outcome", outcome),
		zap.Error(err),
	}
	switch outcome {
	case metrics.OutcomeError, metrics.OutcomeLockTimeout:
		s.logger.Error("registration operation failed", fields...)
	default:
		s.logger.Debug("registration operation refused", fields...)
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, repository.ErrPrecondition):
		return metrics.OutcomeRejected
	case errors.Is(err, repository.ErrConflict):
		return metrics.OutcomeConflict
	case repository.IsLockTimeout(err):
		return metrics.OutcomeLockTimeout
	default:
		return metrics.OutcomeError
	}
}

// classify passes taxonomy errors through untouched and wraps the rest.
func classify(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) ||
		errors.Is(err, repository.ErrPrecondition) ||
		errors.Is(err, repository.ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
