package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/studyhub/groupmatch/internal/application/uow"
)

// Store implements uow.Store on a pgx pool.
type Store struct {
	conn *Connection
}

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{conn: conn}
}

var _ uow.Store = (*Store)(nil)

func repositories(q Querier) uow.Repositories {
	return uow.Repositories{
		Tickets:      NewTicketRepository(q),
		GroupTickets: NewGroupTicketRepository(q),
		Groups:       NewGroupRepository(q),
		Courses:      NewCourseRepository(q),
		Users:        NewUserRepository(q),
	}
}

// Repositories returns pool-backed repositories.
func (s *Store) Repositories() uow.Repositories {
	return repositories(s.conn.pool)
}

// WithinTx runs fn in a read-committed transaction.
func (s *Store) WithinTx(ctx context.Context, fn uow.TxFunc) error {
	return s.conn.WithTx(ctx, DefaultTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, repositories(tx))
	})
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
