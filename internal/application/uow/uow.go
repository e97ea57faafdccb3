// Package uow defines the transaction boundary shared by queue commands and
// the matchmaking orchestrator.
package uow

import (
	"context"

	"github.com/studyhub/groupmatch/internal/domain/course"
	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/queue"
)

// Repositories is a set of repositories bound to one connection or transaction.
type Repositories struct {
	Tickets      queue.TicketRepository
	GroupTickets queue.GroupTicketRepository
	Groups       group.Repository
	Courses      course.Repository
	Users        identity.Repository
}

// TxFunc runs inside a transaction. Returning an error rolls back.
type TxFunc func(ctx context.Context, repos Repositories) error

// Store is implemented by each persistence backend.
type Store interface {
	// Repositories returns repositories outside any transaction.
	Repositories() Repositories

	// WithinTx runs fn in a single transaction. The transaction commits when
	// fn returns nil and rolls back on error or panic.
	WithinTx(ctx context.Context, fn TxFunc) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close() error
}
