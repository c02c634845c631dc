package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store hands out pool-bound repositories and runs transactions.
type Store struct {
	pool *pgxpool.Pool

	Events        *EventRepository
	Registrations *RegistrationRepository
}

// NewStore constructs a Store over pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:          pool,
		Events:        NewEventRepository(pool),
		Registrations: NewRegistrationRepository(pool),
	}
}

// Tx groups repositories bound to one open transaction.
type Tx struct {
	Events        *EventRepository
	Registrations *RegistrationRepository
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise, including when fn panics; fn's error
// is returned unchanged.
// Row locks taken inside fn are held until that commit or rollback.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// No-op after Commit; releases the connection and its locks if fn fails or panics.
	defer func() { _ = pgTx.Rollback(ctx) }()

	txRepos := Tx{
		Events:        &EventRepository{db: pgTx, inTx: true},
		Registrations: &RegistrationRepository{db: pgTx},
	}
	if err := fn(ctx, txRepos); err != nil {
		return err
	}

	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
