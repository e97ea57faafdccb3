package command

import (
	"context"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEAVE GROUP COMMAND
// Removing the last member deletes the group together with its queue entry.
// A full group that loses members keeps its completion latch.
// ══════════════════════════════════════════════════════════════════════════════

// LeaveGroupCommand removes the caller from a group.
type LeaveGroupCommand struct {
	GroupID string
	UserID  string
}

// Validate validates the command.
func (c LeaveGroupCommand) Validate() error {
	if err := required("group", "LeaveGroup", "group_id", c.GroupID); err != nil {
		return err
	}
	return required("group", "LeaveGroup", "user_id", c.UserID)
}

// LeaveGroupResult reports what happened to the group.
type LeaveGroupResult struct {
	Remaining int
	Disbanded bool
}

// LeaveGroupHandler handles LeaveGroupCommand.
type LeaveGroupHandler struct {
	deps Deps
}

// NewLeaveGroupHandler creates a new LeaveGroupHandler.
func NewLeaveGroupHandler(d Deps) *LeaveGroupHandler {
	return &LeaveGroupHandler{deps: d.withDefaults()}
}

// Handle removes the member and emits group.member_left, plus
// group.disbanded when the group becomes empty.
func (h *LeaveGroupHandler) Handle(ctx context.Context, cmd LeaveGroupCommand) (*LeaveGroupResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var (
		events   []shared.Event
		result   LeaveGroupResult
		courseID string
	)
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		g, err := r.Groups.GetByID(ctx, cmd.GroupID)
		if err != nil {
			return err
		}
		courseID = g.CourseID()
		if err := g.RemoveMember(cmd.UserID, h.deps.Clock.Now()); err != nil {
			return err
		}

		if g.IsDisbanded() {
			if err := r.Groups.Delete(ctx, g.ID()); err != nil {
				return err
			}
		} else if err := r.Groups.Save(ctx, g); err != nil {
			return err
		}

		result = LeaveGroupResult{Remaining: g.Size(), Disbanded: g.IsDisbanded()}
		events = g.PullEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}

	h.deps.Logger.Info("member left group",
		logger.CourseID(courseID),
		logger.GroupID(cmd.GroupID),
		logger.UserID(cmd.UserID))
	h.deps.publish(events)
	return &result, nil
}
