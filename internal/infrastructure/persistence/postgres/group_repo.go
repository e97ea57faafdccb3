package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// GroupRepository implements group.Repository for PostgreSQL.
type GroupRepository struct {
	q Querier
}

// NewGroupRepository creates a GroupRepository.
func NewGroupRepository(q Querier) *GroupRepository {
	return &GroupRepository{q: q}
}

var _ group.Repository = (*GroupRepository)(nil)

// Create inserts the group and its members.
func (r *GroupRepository) Create(ctx context.Context, g *group.Group) error {
	s := g.Snapshot()
	args := append([]any{s.ID, s.CourseID, s.Capacity}, prefsArgs(s.Preferences)...)
	args = append(args, s.IsComplete, s.CreatedAt, s.UpdatedAt)
	_, err := r.q.Exec(ctx, `
		INSERT INTO groups (id, course_id, capacity, languages, availability, days, locations,
		                    is_complete, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10)
	`, args...)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrCourseNotFound
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	if err := r.insertMembers(ctx, s); err != nil {
		return err
	}
	g.AssignVersion(0)
	return nil
}

// GetByID loads a group with its members in join order.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*group.Group, error) {
	var (
		s     group.Snapshot
		prefs prefsRow
	)
	dest := append([]any{&s.ID, &s.CourseID, &s.Capacity}, prefs.dest()...)
	dest = append(dest, &s.IsComplete, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	err := r.q.QueryRow(ctx, `
		SELECT id, course_id, capacity, languages, availability, days, locations,
		       is_complete, version, created_at, updated_at
		FROM groups WHERE id = $1
	`, id).Scan(dest...)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	s.Preferences = prefs.toDomain()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()

	rows, err := r.q.Query(ctx, `
		SELECT user_id::text, joined_at FROM group_members
		WHERE group_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	s.Members, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (group.Member, error) {
		var m group.Member
		err := row.Scan(&m.UserID, &m.JoinedAt)
		m.JoinedAt = m.JoinedAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan group members: %w", err)
	}
	return group.Restore(s), nil
}

// Save bumps the version guarded by the loaded value and rewrites membership.
// The stored completion flag is OR-ed so it can only move to true.
func (r *GroupRepository) Save(ctx context.Context, g *group.Group) error {
	s := g.Snapshot()
	tag, err := r.q.Exec(ctx, `
		UPDATE groups
		SET is_complete = is_complete OR $2, updated_at = $3, version = version + 1
		WHERE id = $1 AND version = $4
	`, s.ID, s.IsComplete, s.UpdatedAt, s.Version)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check group: %w", err)
		}
		if !exists {
			return shared.ErrGroupNotFound
		}
		return shared.WrapError("group", "Save", shared.ErrConcurrentModification, "group changed since it was loaded", nil)
	}

	if _, err := r.q.Exec(ctx, `DELETE FROM group_members WHERE group_id = $1`, s.ID); err != nil {
		return fmt.Errorf("failed to clear group members: %w", err)
	}
	if err := r.insertMembers(ctx, s); err != nil {
		return err
	}
	g.AssignVersion(s.Version + 1)
	return nil
}

// Delete removes the group; members and group ticket cascade.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrGroupNotFound
	}
	return nil
}

// FindByMember returns the user's group in the course.
func (r *GroupRepository) FindByMember(ctx context.Context, courseID, userID string) (*group.Group, error) {
	var groupID string
	err := r.q.QueryRow(ctx,
		`SELECT group_id::text FROM group_members WHERE course_id = $1 AND user_id = $2`,
		courseID, userID).Scan(&groupID)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to find group by member: %w", err)
	}
	return r.GetByID(ctx, groupID)
}

// ListByCourse returns the course's groups, oldest first.
func (r *GroupRepository) ListByCourse(ctx context.Context, courseID string) ([]*group.Group, error) {
	rows, err := r.q.Query(ctx,
		`SELECT id::text FROM groups WHERE course_id = $1 ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan group ids: %w", err)
	}

	out := make([]*group.Group, 0, len(ids))
	for _, id := range ids {
		g, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

func (r *GroupRepository) insertMembers(ctx context.Context, s group.Snapshot) error {
	for i, m := range s.Members {
		joined := m.JoinedAt
		if joined.IsZero() {
			joined = time.Now().UTC()
		}
		_, err := r.q.Exec(ctx, `
			INSERT INTO group_members (group_id, course_id, user_id, position, joined_at)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, s.CourseID, m.UserID, i, joined)
		if err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrMemberInOtherGrp
			}
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}
	return nil
}
