// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// QUEUE STATUS QUERY
// Lists who is waiting in a course queue and for how long. Display names
// come from the identity directory; an unresolved name falls back to the id.
// ══════════════════════════════════════════════════════════════════════════════

// QueueStatusQuery selects a course.
type QueueStatusQuery struct {
	CourseID string
}

// Validate validates the query.
func (q QueueStatusQuery) Validate() error {
	if q.CourseID == "" {
		return shared.WrapError("query", "QueueStatus", shared.ErrValidation, "course_id is required", shared.ErrEmptyValue)
	}
	return nil
}

// QueueEntryDTO is one waiting candidate.
type QueueEntryDTO struct {
	TicketID string        `json:"ticket_id"`
	Kind     matching.Kind `json:"kind"`

	// UserID is set for individual tickets, GroupID for group tickets.
	UserID  string `json:"user_id,omitempty"`
	GroupID string `json:"group_id,omitempty"`

	Members     []string               `json:"members"`
	MemberNames []string               `json:"member_names"`
	Occupancy   int                    `json:"occupancy"`
	OpenSeats   int                    `json:"open_seats"`
	Preferences preference.Preferences `json:"preferences"`
	QueuedAt    time.Time              `json:"queued_at"`
	WaitSeconds int64                  `json:"wait_seconds"`
}

// QueueStatusDTO is the query result.
type QueueStatusDTO struct {
	CourseID    string          `json:"course_id"`
	CourseName  string          `json:"course_name"`
	GroupSize   int             `json:"group_size"`
	Entries     []QueueEntryDTO `json:"entries"`
	Individuals int             `json:"individuals"`
	Groups      int             `json:"groups"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// QueueStatusHandler handles QueueStatusQuery.
type QueueStatusHandler struct {
	store     uow.Store
	directory identity.Directory
	clock     shared.Clock
	log       *zap.Logger
}

// NewQueueStatusHandler creates a new QueueStatusHandler. directory may be a
// cache in front of the store's user repository.
func NewQueueStatusHandler(store uow.Store, directory identity.Directory, clock shared.Clock, log *zap.Logger) *QueueStatusHandler {
	if log == nil {
		log = zap.NewNop()
	}
	if directory == nil {
		directory = store.Repositories().Users
	}
	return &QueueStatusHandler{store: store, directory: directory, clock: clock, log: log}
}

// Handle returns the course queue ordered by wait time, longest first.
func (h *QueueStatusHandler) Handle(ctx context.Context, q QueueStatusQuery) (*QueueStatusDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	repos := h.store.Repositories()
	c, err := repos.Courses.GetCourse(ctx, q.CourseID)
	if err != nil {
		return nil, err
	}
	tickets, err := repos.Tickets.ListByCourse(ctx, q.CourseID)
	if err != nil {
		return nil, err
	}
	groupTickets, err := repos.GroupTickets.ListByCourse(ctx, q.CourseID)
	if err != nil {
		return nil, err
	}

	now := h.clock.Now()
	out := &QueueStatusDTO{
		CourseID:    c.ID,
		CourseName:  c.Name,
		GroupSize:   c.GroupSize,
		Entries:     make([]QueueEntryDTO, 0, len(tickets)+len(groupTickets)),
		Individuals: len(tickets),
		Groups:      len(groupTickets),
		GeneratedAt: now,
	}
	for _, t := range tickets {
		e := h.entry(ctx, t, now)
		e.UserID = t.UserID()
		e.OpenSeats = c.GroupSize - 1
		out.Entries = append(out.Entries, e)
	}
	for _, gt := range groupTickets {
		e := h.entry(ctx, gt, now)
		e.GroupID = gt.GroupID()
		e.OpenSeats = gt.OpenSeats()
		out.Entries = append(out.Entries, e)
	}
	sort.SliceStable(out.Entries, func(i, j int) bool {
		return out.Entries[i].QueuedAt.Before(out.Entries[j].QueuedAt)
	})
	return out, nil
}

func (h *QueueStatusHandler) entry(ctx context.Context, c matching.Candidate, now time.Time) QueueEntryDTO {
	members := c.Members()
	names := make([]string, len(members))
	for i, id := range members {
		name, err := h.directory.GetName(ctx, id)
		if err != nil {
			if !shared.IsNotFound(err) {
				h.log.Debug("failed to resolve display name", zap.String("user_id", id), zap.Error(err))
			}
			name = id
		}
		names[i] = name
	}
	return QueueEntryDTO{
		TicketID:    c.ID(),
		Kind:        c.Kind(),
		Members:     members,
		MemberNames: names,
		Occupancy:   c.Occupancy(),
		Preferences: c.Preferences(),
		QueuedAt:    c.QueuedAt(),
		WaitSeconds: int64(matching.WaitTime(c, now) / time.Second),
	}
}
