package command

import (
	"context"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/queue"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WITHDRAW TICKET COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// WithdrawTicketCommand removes a student's ticket from the queue.
type WithdrawTicketCommand struct {
	TicketID string
	// UserID is the caller; only the ticket owner may withdraw it.
	UserID string
}

// Validate validates the command.
func (c WithdrawTicketCommand) Validate() error {
	if err := required("queue", "WithdrawTicket", "ticket_id", c.TicketID); err != nil {
		return err
	}
	return required("queue", "WithdrawTicket", "user_id", c.UserID)
}

// WithdrawTicketHandler handles WithdrawTicketCommand.
type WithdrawTicketHandler struct {
	deps Deps
}

// NewWithdrawTicketHandler creates a new WithdrawTicketHandler.
func NewWithdrawTicketHandler(d Deps) *WithdrawTicketHandler {
	return &WithdrawTicketHandler{deps: d.withDefaults()}
}

// Handle deletes the ticket. A ticket consumed by a concurrent matchmaking
// run reports shared.ErrTicketNotFound.
func (h *WithdrawTicketHandler) Handle(ctx context.Context, cmd WithdrawTicketCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	var ticket *queue.Ticket
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetByID(ctx, cmd.TicketID)
		if err != nil {
			return err
		}
		if ticket.UserID() != cmd.UserID {
			return shared.ErrTicketNotOwned
		}
		n, err := r.Tickets.Dequeue(ctx, ticket.ID())
		if err != nil {
			return err
		}
		if n == 0 {
			return shared.ErrTicketNotFound
		}
		return nil
	})
	if err != nil {
		return err
	}

	h.deps.Logger.Info("ticket withdrawn",
		logger.CourseID(ticket.CourseID()),
		logger.UserID(cmd.UserID),
		logger.TicketID(ticket.ID()))
	h.deps.publish([]shared.Event{
		shared.NewTicketWithdrawnEvent(ticket.ID(), ticket.CourseID(), cmd.UserID),
	})
	return nil
}
