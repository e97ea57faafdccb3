package command

import (
	"context"
	"errors"
	"time"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE GROUP COMMAND
// Instructor-created groups. Members holding individual tickets for the
// course are dequeued since they now belong to a group.
// ══════════════════════════════════════════════════════════════════════════════

// CreateGroupCommand contains the data to create a group.
type CreateGroupCommand struct {
	CourseID string
	// Capacity defaults to the course group size when zero.
	Capacity int
	Members  []string
	// Preferences default to the first member's global preferences when zero.
	Preferences preference.Preferences
}

// Validate validates the command.
func (c CreateGroupCommand) Validate() error {
	if err := required("group", "CreateGroup", "course_id", c.CourseID); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return shared.ErrInvalidCapacity
	}
	if c.Preferences.IsZero() && len(c.Members) == 0 {
		return shared.WrapError("group", "CreateGroup", shared.ErrValidation,
			"preferences or at least one member are required", shared.ErrEmptyValue)
	}
	if err := c.Preferences.Validate(); err != nil {
		return shared.WrapError("group", "CreateGroup", shared.ErrValidation, "invalid preferences", err)
	}
	return nil
}

// CreateGroupResult describes the new group.
type CreateGroupResult struct {
	GroupID    string
	Capacity   int
	Members    []string
	IsComplete bool
	CreatedAt  time.Time
	// Withdrawn lists tickets dequeued because their owners joined the group.
	Withdrawn []string
}

// CreateGroupHandler handles CreateGroupCommand.
type CreateGroupHandler struct {
	deps Deps
}

// NewCreateGroupHandler creates a new CreateGroupHandler.
func NewCreateGroupHandler(d Deps) *CreateGroupHandler {
	return &CreateGroupHandler{deps: d.withDefaults()}
}

// Handle creates the group. The capacity must match the course group size
// unless the course allows custom sizes.
func (h *CreateGroupHandler) Handle(ctx context.Context, cmd CreateGroupCommand) (*CreateGroupResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var (
		g       *group.Group
		events  []shared.Event
		removed []string
	)
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		c, err := r.Courses.GetCourse(ctx, cmd.CourseID)
		if err != nil {
			return err
		}
		capacity := cmd.Capacity
		if capacity == 0 {
			capacity = c.GroupSize
		}
		if err := c.ValidateCapacity(capacity); err != nil {
			return err
		}

		prefs := cmd.Preferences
		if prefs.IsZero() {
			first, err := r.Users.GetUser(ctx, cmd.Members[0])
			if err != nil {
				return err
			}
			prefs = first.Preferences
		}

		now := h.deps.Clock.Now()
		g, err = group.NewGroup(h.deps.NewID(), c.ID, capacity, prefs, now)
		if err != nil {
			return err
		}
		if err := g.CanAdmit(cmd.Members); err != nil {
			return err
		}
		for _, userID := range cmd.Members {
			if !c.IsEnrolled(userID) {
				return shared.ErrNotEnrolled
			}
			if _, err := r.Users.GetUser(ctx, userID); err != nil {
				return err
			}
			if err := ensureNotGrouped(ctx, r, c.ID, userID); err != nil {
				if errors.Is(err, shared.ErrAlreadyInCourseGroup) {
					return shared.ErrMemberInOtherGrp
				}
				return err
			}
			if err := g.AddMember(userID, now); err != nil {
				return err
			}
		}
		if err := r.Groups.Create(ctx, g); err != nil {
			return err
		}

		removed, err = withdrawMemberTickets(ctx, r, c.ID, g)
		if err != nil {
			return err
		}
		events = g.PullEvents()
		for _, id := range removed {
			events = append(events, shared.NewTicketWithdrawnEvent(id, c.ID, g.ID()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("group created",
		logger.CourseID(cmd.CourseID),
		logger.GroupID(g.ID()))
	h.deps.publish(events)

	return &CreateGroupResult{
		GroupID:    g.ID(),
		Capacity:   g.Capacity(),
		Members:    g.MemberIDs(),
		IsComplete: g.IsComplete(),
		CreatedAt:  g.CreatedAt(),
		Withdrawn:  removed,
	}, nil
}

func withdrawMemberTickets(ctx context.Context, r uow.Repositories, courseID string, g *group.Group) ([]string, error) {
	tickets, err := r.Tickets.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, t := range tickets {
		if g.HasMember(t.UserID()) {
			ids = append(ids, t.ID())
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := r.Tickets.Dequeue(ctx, ids...); err != nil {
		return nil, err
	}
	return ids, nil
}
