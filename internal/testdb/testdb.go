// Package testdb starts a disposable PostgreSQL for storage-backed tests.
//
// One container is shared by every test in a package binary; each call to New
// truncates all tables so tests start from an empty schema.
package testdb

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/config"
	"github.com/Shivanand-hulikatti/campus-event-registration/internal/database"
)

const image = "postgres:16-alpine"

var (
	once      sync.Once
	initErr   error
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	dsn       string
)

// Main runs the package's tests and tears the shared container down afterwards.
// Call it from TestMain.
func Main(m *testing.M) {
	code := m.Run()
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		_ = container.Terminate(ctx)
		cancel()
	}
	os.Exit(code)
}

// New returns a pool to a migrated, empty database.
// It skips the test under -short or when no container runtime is available.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	once.Do(start)
	if initErr != nil {
		t.Skipf("postgres container unavailable: %v", initErr)
	}

	reset(t)
	return pool
}

// DSN returns the connection URL of the shared database. New must have been called.
func DSN() string {
	return dsn
}

func start() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := postgres.Run(ctx, image,
		postgres.WithDatabase("registration"),
		postgres.WithUsername("registration"),
		postgres.WithPassword("registration"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		initErr = err
		return
	}
	container = c

	dsn, err = c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		initErr = err
		return
	}

	if err := database.MigrateUp(dsn); err != nil {
		initErr = err
		return
	}

	poolCfg, err := database.PoolConfig(config.DatabaseConfig{
		URL:         dsn,
		MaxConns:    16,
		LockTimeout: 10 * time.Second,
	})
	if err != nil {
		initErr = err
		return
	}
	pool, initErr = pgxpool.NewWithConfig(ctx, poolCfg)
}

func reset(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := pool.Exec(ctx, `TRUNCATE registrations, events, users`)
	require.NoError(t, err)
}

// EventSpec describes an event row to seed. Zero values give a published
// event starting in a week with no deadline and unlimited capacity.
type EventSpec struct {
	Title          string
	StartsAt       time.Time
	SignupDeadline *time.Time
	Capacity       *int
	Unpublished    bool
}

// CreateEvent inserts an event and returns its id.
func CreateEvent(t *testing.T, db *pgxpool.Pool, spec EventSpec) uuid.UUID {
	t.Helper()
	if spec.Title == "" {
		spec.Title = "Career fair"
	}
	if spec.StartsAt.IsZero() {
		spec.StartsAt = time.Now().Add(7 * 24 * time.Hour)
	}

	id := uuid.New()
	_, err := db.Exec(context.Background(),
		`INSERT INTO events (id, title, starts_at, signup_deadline, capacity, is_published)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, spec.Title, spec.StartsAt, spec.SignupDeadline, spec.Capacity, !spec.Unpublished,
	)
	require.NoError(t, err)
	return id
}

// CreateStudent inserts a user and returns its id.
func CreateStudent(t *testing.T, db *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(context.Background(),
		`INSERT INTO users (id, name, email) VALUES ($1, $2, $3)`,
		id, name, id.String()+"@students.example.edu",
	)
	require.NoError(t, err)
	return id
}

// Cap returns a pointer to n, for EventSpec.Capacity.
func Cap(n int) *int {
	return &n
}
