package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/studyhub/groupmatch/internal/domain/course"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// CourseRepository implements course.Repository for SQLite.
type CourseRepository struct {
	q dbtx
}

var _ course.Repository = (*CourseRepository)(nil)

// ListCourses returns all courses ordered by id.
func (r *CourseRepository) ListCourses(ctx context.Context) ([]*course.Course, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, group_size, allow_custom_sizes FROM courses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	var out []*course.Course
	for rows.Next() {
		var c course.Course
		if err := rows.Scan(&c.ID, &c.Name, &c.GroupSize, &c.AllowCustomSizes); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, &c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, c := range out {
		if c.Roster, err = r.roster(ctx, c.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// GetCourse returns a course by id.
func (r *CourseRepository) GetCourse(ctx context.Context, id string) (*course.Course, error) {
	var c course.Course
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, group_size, allow_custom_sizes FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.GroupSize, &c.AllowCustomSizes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	if c.Roster, err = r.roster(ctx, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CourseRepository) roster(ctx context.Context, courseID string) ([]string, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT user_id FROM course_enrollments WHERE course_id = ? ORDER BY user_id`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roster: %w", err)
	}
	return collectStrings(rows)
}

// Save upserts the course and replaces its roster.
func (r *CourseRepository) Save(ctx context.Context, c *course.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO courses (id, name, group_size, allow_custom_sizes) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			group_size = excluded.group_size,
			allow_custom_sizes = excluded.allow_custom_sizes`,
		c.ID, c.Name, c.GroupSize, c.AllowCustomSizes)
	if err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM course_enrollments WHERE course_id = ?`, c.ID); err != nil {
		return fmt.Errorf("failed to clear roster: %w", err)
	}
	for _, userID := range dedupe(c.Roster) {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO course_enrollments (course_id, user_id) VALUES (?, ?)`, c.ID, userID); err != nil {
			return fmt.Errorf("failed to enroll %s: %w", userID, err)
		}
	}
	return nil
}

// UserRepository implements identity.Repository for SQLite.
type UserRepository struct {
	q dbtx
}

var _ identity.Repository = (*UserRepository)(nil)

// GetUser returns a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*identity.User, error) {
	var (
		u     identity.User
		prefs prefsRow
	)
	dest := append([]any{&u.ID, &u.Name, &u.Email}, prefs.dest()...)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, name, email, languages, availability, days, locations
		FROM users WHERE id = ?`, id).Scan(dest...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	u.Preferences = prefs.toDomain()
	return &u, nil
}

// GetName returns the user's display name.
func (r *UserRepository) GetName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.q.QueryRowContext(ctx, `SELECT name FROM users WHERE id = ?`, id).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", shared.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to load user name: %w", err)
	}
	return name, nil
}

// Save upserts a user.
func (r *UserRepository) Save(ctx context.Context, u *identity.User) error {
	args := append([]any{u.ID, u.Name, u.Email}, prefsArgs(u.Preferences)...)
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, languages, availability, days, locations)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			languages = excluded.languages,
			availability = excluded.availability,
			days = excluded.days,
			locations = excluded.locations`, args...)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
