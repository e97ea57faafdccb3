package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/studyhub/groupmatch/internal/domain/course"
	"github.com/studyhub/groupmatch/internal/domain/identity"
	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COURSE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// CourseRepository implements course.Repository for PostgreSQL.
type CourseRepository struct {
	q Querier
}

// NewCourseRepository creates a CourseRepository.
func NewCourseRepository(q Querier) *CourseRepository {
	return &CourseRepository{q: q}
}

var _ course.Repository = (*CourseRepository)(nil)

const courseSelect = `
	SELECT c.id::text, c.name, c.group_size, c.allow_custom_sizes,
	       COALESCE((SELECT array_agg(e.user_id::text ORDER BY e.user_id)
	                 FROM course_enrollments e WHERE e.course_id = c.id), '{}'::text[])
	FROM courses c
`

// ListCourses returns all courses ordered by id.
func (r *CourseRepository) ListCourses(ctx context.Context) ([]*course.Course, error) {
	rows, err := r.q.Query(ctx, courseSelect+` ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*course.Course, error) {
		return scanCourse(row)
	})
}

// GetCourse returns a course by id.
func (r *CourseRepository) GetCourse(ctx context.Context, id string) (*course.Course, error) {
	c, err := scanCourse(r.q.QueryRow(ctx, courseSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	return c, nil
}

// Save upserts the course and replaces its roster.
func (r *CourseRepository) Save(ctx context.Context, c *course.Course) error {
	if err := c.Validate(); err != nil {
		return err
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO courses (id, name, group_size, allow_custom_sizes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    group_size = EXCLUDED.group_size,
		    allow_custom_sizes = EXCLUDED.allow_custom_sizes
	`, c.ID, c.Name, c.GroupSize, c.AllowCustomSizes)
	if err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	if _, err := r.q.Exec(ctx, `DELETE FROM course_enrollments WHERE course_id = $1`, c.ID); err != nil {
		return fmt.Errorf("failed to clear roster: %w", err)
	}
	for _, userID := range dedupe(c.Roster) {
		if _, err := r.q.Exec(ctx,
			`INSERT INTO course_enrollments (course_id, user_id) VALUES ($1, $2)`, c.ID, userID); err != nil {
			return fmt.Errorf("failed to enroll %s: %w", userID, err)
		}
	}
	return nil
}

func scanCourse(row pgx.Row) (*course.Course, error) {
	var c course.Course
	if err := row.Scan(&c.ID, &c.Name, &c.GroupSize, &c.AllowCustomSizes, &c.Roster); err != nil {
		return nil, err
	}
	return &c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// USER REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// UserRepository implements identity.Repository for PostgreSQL.
type UserRepository struct {
	q Querier
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(q Querier) *UserRepository {
	return &UserRepository{q: q}
}

var _ identity.Repository = (*UserRepository)(nil)

// GetUser returns a user by id.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*identity.User, error) {
	var (
		u     identity.User
		prefs prefsRow
	)
	dest := append([]any{&u.ID, &u.Name, &u.Email}, prefs.dest()...)
	err := r.q.QueryRow(ctx, `
		SELECT id::text, name, email, languages, availability, days, locations
		FROM users WHERE id = $1
	`, id).Scan(dest...)
	if err != nil {
		if IsNoRows(err) {
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
	err := r.q.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, id).Scan(&name)
	if err != nil {
		if IsNoRows(err) {
			return "", shared.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to load user name: %w", err)
	}
	return name, nil
}

// Save upserts a user.
func (r *UserRepository) Save(ctx context.Context, u *identity.User) error {
	args := append([]any{u.ID, u.Name, u.Email}, prefsArgs(u.Preferences)...)
	_, err := r.q.Exec(ctx, `
		INSERT INTO users (id, name, email, languages, availability, days, locations)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    email = EXCLUDED.email,
		    languages = EXCLUDED.languages,
		    availability = EXCLUDED.availability,
		    days = EXCLUDED.days,
		    locations = EXCLUDED.locations,
		    updated_at = NOW()
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}
