package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/testdb"
)

func TestMain(m *testing.M) {
	testdb.Main(m)
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestPreconditionErrorsMatchCategory(t *testing.T) {
	for _, err := range []error{ErrNotPublished, ErrDeadlinePassed, ErrNoSeats} {
		require.ErrorIs(t, err, ErrPrecondition)
		require.NotErrorIs(t, err, ErrNotFound)
		require.NotErrorIs(t, err, ErrConflict)
	}

	wrapped := errors.Join(errors.New("register"), ErrNoSeats)
	require.ErrorIs(t, wrapped, ErrNoSeats)
	require.ErrorIs(t, wrapped, ErrPrecondition)
	require.NotErrorIs(t, wrapped, ErrDeadlinePassed)
	require.Equal(t, "precondition failed: no seats", ErrNoSeats.Error())
}

func TestIsLockTimeout(t *testing.T) {
	require.True(t, IsLockTimeout(&pgconn.PgError{Code: "55P03"}))
	require.False(t, IsLockTimeout(&pgconn.PgError{Code: "23505"}))
	require.False(t, IsLockTimeout(errors.New("boom")))
	require.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	require.True(t, isForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
}

func TestEventRepositoryCreateAndGet(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	events := NewEventRepository(db)

	starts := time.Date(2026, 5, 1, 18, 0, 0, 123456789, time.FixedZone("CET", 3600))
	deadline := starts.Add(-48 * time.Hour)
	created, err := events.Create(ctx, model.CreateEventRequest{
		Title:          "Hackathon",
		StartsAt:       starts,
		SignupDeadline: &deadline,
		Capacity:       testdb.Cap(30),
		IsPublished:    true,
	})
	require.NoError(t, err)

	got, err := events.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)
	require.Equal(t, "Hackathon", got.Title)
	require.Equal(t, created.StartsAt, got.StartsAt)
	require.Equal(t, *created.SignupDeadline, *got.SignupDeadline)
	require.Equal(t, 30, *got.Capacity)
	require.True(t, got.IsPublished)
	require.Zero(t, got.RegisteredCount)
	require.Equal(t, 30, *created.RemainingSeats)
	require.Equal(t, 30, *got.RemainingSeats)

	list, err := events.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = events.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEventRepositoryCreateRejectsDeadlineAfterStart(t *testing.T) {
	db := testdb.New(t)
	events := NewEventRepository(db)

	starts := time.Now().Add(time.Hour)
	deadline := starts.Add(time.Minute)
	_, err := events.Create(context.Background(), model.CreateEventRequest{
		Title:          "Backwards",
		StartsAt:       starts,
		SignupDeadline: &deadline,
	})
	require.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := NewStore(db)

	deadline := fixedNow().Add(time.Hour)
	limited := testdb.CreateEvent(t, db, testdb.EventSpec{Capacity: testdb.Cap(5), SignupDeadline: &deadline})
	open := testdb.CreateEvent(t, db, testdb.EventSpec{Unpublished: true})

	snap, err := store.Events.Snapshot(ctx, limited)
	require.NoError(t, err)
	require.Equal(t, 5, *snap.Capacity)
	require.Equal(t, deadline, *snap.SignupDeadline)
	require.True(t, snap.IsPublished)

	snap, err = store.Events.Snapshot(ctx, open)
	require.NoError(t, err)
	require.Nil(t, snap.Capacity)
	require.Nil(t, snap.SignupDeadline)
	require.False(t, snap.IsPublished)

	_, err = store.Events.Snapshot(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLockedSnapshotRequiresTransaction(t *testing.T) {
	db := testdb.New(t)
	store := NewStore(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})

	_, err := store.Events.LockedSnapshot(context.Background(), eventID)
	require.ErrorContains(t, err, "requires a transaction")
}

func TestLockedSnapshotNotFound(t *testing.T) {
	db := testdb.New(t)
	store := NewStore(db)

	err := store.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		_, err := tx.Events.LockedSnapshot(ctx, uuid.New())
		return err
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLockedSnapshotBlocksSecondLocker(t *testing.T) {
	db := testdb.New(t)
	store := NewStore(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})

	locked := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan time.Time, 1)

	go func() {
		_ = store.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.Events.LockedSnapshot(ctx, eventID); err != nil {
				return err
			}
			close(locked)
			<-release
			firstDone <- time.Now()
			return nil
		})
	}()

	<-locked
	secondAcquired := make(chan time.Time, 1)
	go func() {
		_ = store.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if _, err := tx.Events.LockedSnapshot(ctx, eventID); err != nil {
				return err
			}
			secondAcquired <- time.Now()
			return nil
		})
	}()

	select {
	case <-secondAcquired:
		t.Fatal("second transaction acquired the event lock while the first held it")
	case <-time.After(300 * time.Millisecond):
	}

	close(release)
	released := <-firstDone
	acquired := <-secondAcquired
	require.False(t, acquired.Before(released))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db := testdb.New(t)
	store := NewStore(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})
	studentID := testdb.CreateStudent(t, db, "Ada")

	sentinel := errors.New("abort")
	err := store.WithTx(context.Background(), func(ctx context.Context, tx Tx) error {
		if _, _, err := tx.Registrations.Register(ctx, eventID, studentID, nil, fixedNow()); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	n, err := store.Registrations.CountActive(context.Background(), eventID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRegisterIsIdempotent(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	regs := NewRegistrationRepository(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})
	studentID := testdb.CreateStudent(t, db, "Ada")

	first, changed, err := regs.Register(ctx, eventID, studentID, testdb.Cap(1), fixedNow())
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, model.StatusRegistered, first.Status)
	require.Equal(t, fixedNow(), first.RegisteredAt)
	require.Nil(t, first.CanceledAt)

	// Capacity is full, but the student's own active row wins.
	second, changed, err := regs.Register(ctx, eventID, studentID, testdb.Cap(1), fixedNow().Add(time.Minute))
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, first, second)

	n, err := regs.CountActive(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRegisterNoSeats(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	regs := NewRegistrationRepository(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})
	s1 := testdb.CreateStudent(t, db, "Ada")
	s2 := testdb.CreateStudent(t, db, "Grace")

	_, _, err := regs.Register(ctx, eventID, s1, testdb.Cap(1), fixedNow())
	require.NoError(t, err)

	_, _, err = regs.Register(ctx, eventID, s2, testdb.Cap(1), fixedNow())
	require.ErrorIs(t, err, ErrNoSeats)

	_, _, err = regs.Register(ctx, eventID, s2, testdb.Cap(0), fixedNow())
	require.ErrorIs(t, err, ErrNoSeats)

	_, changed, err := regs.Register(ctx, eventID, s2, nil, fixedNow())
	require.NoError(t, err)
	require.True(t, changed)
}

func TestRegisterUnknownStudent(t *testing.T) {
	db := testdb.New(t)
	regs := NewRegistrationRepository(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})

	_, _, err := regs.Register(context.Background(), eventID, uuid.New(), nil, fixedNow())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancelAndReactivate(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	regs := NewRegistrationRepository(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})
	studentID := testdb.CreateStudent(t, db, "Ada")

	_, _, err := regs.Register(ctx, eventID, studentID, nil, fixedNow())
	require.NoError(t, err)

	canceledAt := fixedNow().Add(time.Hour)
	canceled, err := regs.Cancel(ctx, eventID, studentID, canceledAt)
	require.NoError(t, err)
	require.Equal(t, model.StatusCanceled, canceled.Status)
	require.Equal(t, canceledAt, *canceled.CanceledAt)

	_, err = regs.Cancel(ctx, eventID, studentID, canceledAt)
	require.ErrorIs(t, err, ErrNotFound)

	n, err := regs.CountActive(ctx, eventID)
	require.NoError(t, err)
	require.Zero(t, n)

	again := fixedNow().Add(2 * time.Hour)
	reactivated, changed, err := regs.Register(ctx, eventID, studentID, testdb.Cap(1), again)
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, model.StatusRegistered, reactivated.Status)
	require.Equal(t, again, reactivated.RegisteredAt)
	require.Nil(t, reactivated.CanceledAt)

	var rows int
	err = db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND student_id = $2`,
		eventID, studentID).Scan(&rows)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
}

func TestCancelNeverRegistered(t *testing.T) {
	db := testdb.New(t)
	regs := NewRegistrationRepository(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})
	studentID := testdb.CreateStudent(t, db, "Ada")

	_, err := regs.Cancel(context.Background(), eventID, studentID, fixedNow())
	require.ErrorIs(t, err, ErrNotFound)

	_, err = regs.Get(context.Background(), eventID, studentID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListActive(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	regs := NewRegistrationRepository(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})
	ada := testdb.CreateStudent(t, db, "Ada")
	grace := testdb.CreateStudent(t, db, "Grace")
	linus := testdb.CreateStudent(t, db, "Linus")

	for i, id := range []uuid.UUID{ada, grace, linus} {
		_, _, err := regs.Register(ctx, eventID, id, nil, fixedNow().Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}
	_, err := regs.Cancel(ctx, eventID, grace, fixedNow().Add(time.Hour))
	require.NoError(t, err)

	views, err := regs.ListActive(ctx, eventID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, linus, views[0].StudentID)
	require.Equal(t, "Linus", views[0].StudentName)
	require.Equal(t, linus.String()+"@students.example.edu", views[0].StudentEmail)
	require.Equal(t, ada, views[1].StudentID)
	for _, v := range views {
		require.Equal(t, model.StatusRegistered, v.Status)
	}

	empty, err := regs.ListActive(ctx, uuid.New())
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestListForStudent(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	regs := NewRegistrationRepository(db)
	soon := testdb.CreateEvent(t, db, testdb.EventSpec{Title: "Soon", StartsAt: fixedNow().Add(24 * time.Hour)})
	later := testdb.CreateEvent(t, db, testdb.EventSpec{Title: "Later", StartsAt: fixedNow().Add(72 * time.Hour)})
	dropped := testdb.CreateEvent(t, db, testdb.EventSpec{Title: "Dropped"})
	studentID := testdb.CreateStudent(t, db, "Ada")

	for _, id := range []uuid.UUID{later, soon, dropped} {
		_, _, err := regs.Register(ctx, id, studentID, nil, fixedNow())
		require.NoError(t, err)
	}
	_, err := regs.Cancel(ctx, dropped, studentID, fixedNow())
	require.NoError(t, err)

	list, err := regs.ListForStudent(ctx, studentID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Soon", list[0].EventTitle)
	require.Equal(t, "Later", list[1].EventTitle)
	require.Equal(t, fixedNow().Add(24*time.Hour), list[0].EventStartsAt)
}

func TestEventRegisteredCountIsLive(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := NewStore(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{Capacity: testdb.Cap(3)})

	for i := 0; i < 2; i++ {
		studentID := testdb.CreateStudent(t, db, "Student")
		_, _, err := store.Registrations.Register(ctx, eventID, studentID, nil, fixedNow())
		require.NoError(t, err)
	}

	event, err := store.Events.GetByID(ctx, eventID)
	require.NoError(t, err)
	require.Equal(t, 2, event.RegisteredCount)
	require.Equal(t, 1, *event.RemainingSeats)

	unlimited := testdb.CreateEvent(t, db, testdb.EventSpec{})
	event, err = store.Events.GetByID(ctx, unlimited)
	require.NoError(t, err)
	require.Nil(t, event.RemainingSeats)
}

func TestLockedSnapshotLockTimeout(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := NewStore(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})

	holder, err := db.Begin(ctx)
	require.NoError(t, err)
	defer func() { _ = holder.Rollback(ctx) }()
	_, err = (&EventRepository{db: holder, inTx: true}).LockedSnapshot(ctx, eventID)
	require.NoError(t, err)

	err = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Events.db.Exec(ctx, `SET LOCAL lock_timeout = '100ms'`); err != nil {
			return err
		}
		_, err := tx.Events.LockedSnapshot(ctx, eventID)
		return err
	})
	require.Error(t, err)
	require.True(t, IsLockTimeout(err), "expected lock timeout, got %v", err)
}

func TestWithTxReleasesLockWhenFnPanics(t *testing.T) {
	db := testdb.New(t)
	ctx := context.Background()
	store := NewStore(db)
	eventID := testdb.CreateEvent(t, db, testdb.EventSpec{})

	require.Panics(t, func() {
		_ = store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.Events.LockedSnapshot(ctx, eventID); err != nil {
				return err
			}
			panic("handler bug")
		})
	})

	err := store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.Events.db.Exec(ctx, `SET LOCAL lock_timeout = '200ms'`); err != nil {
			return err
		}
		_, err := tx.Events.LockedSnapshot(ctx, eventID)
		return err
	})
	require.NoError(t, err)
}
