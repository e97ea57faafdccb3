// Package course holds course configuration consumed by matchmaking.
package course

import (
	"context"

	"github.com/studyhub/groupmatch/internal/domain/shared"
)

// Course is a course whose students are matched into groups.
type Course struct {
	ID               string
	Name             string
	GroupSize        int
	AllowCustomSizes bool
	// Roster lists enrolled user ids. An empty roster means open enrollment.
	Roster []string
}

// MinGroupSize is the smallest group a course may be configured for.
const MinGroupSize = 2

// Validate checks the course configuration.
func (c Course) Validate() error {
	if c.ID == "" || c.Name == "" {
		return shared.WrapError("course", "Validate", shared.ErrValidation, "invalid course", shared.ErrEmptyValue)
	}
	if c.GroupSize < MinGroupSize {
		return shared.WrapError("course", "Validate", shared.ErrValidation, "invalid course", shared.ErrValueOutOfRange)
	}
	return nil
}

// ValidateCapacity enforces the course size policy for a group.
func (c Course) ValidateCapacity(capacity int) error {
	if capacity < MinGroupSize {
		return shared.ErrInvalidCapacity
	}
	if capacity != c.GroupSize && !c.AllowCustomSizes {
		return shared.ErrInvalidCapacity
	}
	return nil
}

// IsEnrolled reports whether the user may queue for this course.
func (c Course) IsEnrolled(userID string) bool {
	if len(c.Roster) == 0 {
		return true
	}
	for _, id := range c.Roster {
		if id == userID {
			return true
		}
	}
	return false
}

// Directory is the read side consumed by the orchestrator.
type Directory interface {
	// ListCourses returns every course ordered by id.
	ListCourses(ctx context.Context) ([]*Course, error)
	// GetCourse returns shared.ErrCourseNotFound when absent.
	GetCourse(ctx context.Context, id string) (*Course, error)
}

// Repository adds write access used by administration and fixtures.
type Repository interface {
	Directory
	// Save inserts or updates the course and replaces its roster.
	Save(ctx context.Context, c *Course) error
}
