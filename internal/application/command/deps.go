// Package command contains queue and group write operations (CQRS - Commands).
// Every handler runs its reads and writes in one unit of work and publishes
// the resulting domain events only after the transaction commits.
package command

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// Deps holds collaborators shared by all command handlers.
type Deps struct {
	Store     uow.Store
	Publisher shared.EventPublisher
	Logger    *zap.Logger
	Clock     shared.Clock
	// NewID generates entity ids; defaults to random UUIDs.
	NewID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Clock == nil {
		d.Clock = shared.SystemClock
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return d
}

// publish forwards committed events. Failures are logged, never returned:
// the state change already happened.
func (d Deps) publish(events []shared.Event) {
	if d.Publisher == nil {
		return
	}
	for _, e := range events {
		if err := d.Publisher.Publish(e); err != nil {
			d.Logger.Warn("failed to publish event",
				zap.String("event_type", string(e.EventType())),
				zap.String("aggregate_id", e.AggregateID()),
				zap.Error(err))
		}
	}
}

func required(domain, op, field, value string) error {
	if value == "" {
		return shared.WrapError(domain, op, shared.ErrValidation, field+" is required", shared.ErrEmptyValue)
	}
	return nil
}
