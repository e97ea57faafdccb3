package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/studyhub/groupmatch/internal/domain/group"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// GroupRepository implements group.Repository for SQLite.
type GroupRepository struct {
	q dbtx
}

var _ group.Repository = (*GroupRepository)(nil)

// Create inserts the group and its members.
func (r *GroupRepository) Create(ctx context.Context, g *group.Group) error {
	s := g.Snapshot()
	args := append([]any{s.ID, s.CourseID, s.Capacity}, prefsArgs(s.Preferences)...)
	args = append(args, s.IsComplete, toNanos(s.CreatedAt), toNanos(s.UpdatedAt))
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO groups (id, course_id, capacity, languages, availability, days, locations,
		                    is_complete, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`, args...)
	if err != nil {
		if isForeignKeyViolation(err) {
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
		s                    group.Snapshot
		prefs                prefsRow
		createdAt, updatedAt int64
	)
	dest := append([]any{&s.ID, &s.CourseID, &s.Capacity}, prefs.dest()...)
	dest = append(dest, &s.IsComplete, &s.Version, &createdAt, &updatedAt)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, course_id, capacity, languages, availability, days, locations,
		       is_complete, version, created_at, updated_at
		FROM groups WHERE id = ?`, id).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	s.Preferences = prefs.toDomain()
	s.CreatedAt = fromNanos(createdAt)
	s.UpdatedAt = fromNanos(updatedAt)

	rows, err := r.q.QueryContext(ctx,
		`SELECT user_id, joined_at FROM group_members WHERE group_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load group members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			m      group.Member
			joined int64
		)
		if err := rows.Scan(&m.UserID, &joined); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		m.JoinedAt = fromNanos(joined)
		s.Members = append(s.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return group.Restore(s), nil
}

// Save bumps the version guarded by the loaded value and rewrites membership.
func (r *GroupRepository) Save(ctx context.Context, g *group.Group) error {
	s := g.Snapshot()
	res, err := r.q.ExecContext(ctx, `
		UPDATE groups
		SET is_complete = (is_complete OR ?), updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		s.IsComplete, toNanos(s.UpdatedAt), s.ID, s.Version)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := r.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM groups WHERE id = ?)`, s.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check group: %w", err)
		}
		if !exists {
			return shared.ErrGroupNotFound
		}
		return shared.WrapError("group", "Save", shared.ErrConcurrentModification, "group changed since it was loaded", nil)
	}

	if _, err := r.q.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, s.ID); err != nil {
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
	res, err := r.q.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrGroupNotFound
	}
	return nil
}

// FindByMember returns the user's group in the course.
func (r *GroupRepository) FindByMember(ctx context.Context, courseID, userID string) (*group.Group, error) {
	var groupID string
	err := r.q.QueryRowContext(ctx,
		`SELECT group_id FROM group_members WHERE course_id = ? AND user_id = ?`,
		courseID, userID).Scan(&groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to find group by member: %w", err)
	}
	return r.GetByID(ctx, groupID)
}

// ListByCourse returns the course's groups, oldest first.
func (r *GroupRepository) ListByCourse(ctx context.Context, courseID string) ([]*group.Group, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id FROM groups WHERE course_id = ? ORDER BY created_at, id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	ids, err := collectStrings(rows)
	if err != nil {
		return nil, err
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
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO group_members (group_id, course_id, user_id, position, joined_at)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, s.CourseID, m.UserID, i, toNanos(joined))
		if err != nil {
			if isUniqueViolation(err) {
				return shared.ErrMemberInOtherGrp
			}
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}
	return nil
}
