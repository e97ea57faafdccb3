// Package identity is the narrow view of the external user directory.
// Matching never reads it; it resolves display names, ownership and the
// global preferences that seed each ticket snapshot.
package identity

import (
	"context"

	"github.com/studyhub/groupmatch/internal/domain/preference"
)

// User is a directory entry.
type User struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Email       string                 `json:"email"`
	Preferences preference.Preferences `json:"preferences"`
}

// Directory resolves users.
type Directory interface {
	// GetUser returns shared.ErrUserNotFound when absent.
	GetUser(ctx context.Context, id string) (*User, error)
	// GetName returns the display name, or shared.ErrUserNotFound.
	GetName(ctx context.Context, id string) (string, error)
}

// Repository adds write access for directory sync and fixtures.
type Repository interface {
	Directory
	// Save inserts or updates a user.
	Save(ctx context.Context, u *User) error
}
