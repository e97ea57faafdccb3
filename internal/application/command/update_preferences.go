package command

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/studyhub/groupmatch/internal/application/uow"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PREFERENCES COMMAND
// Updates a user's global preferences. Tickets already in a queue keep the
// snapshot taken at enqueue time; only future tickets see the change.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesCommand contains the data to update preferences.
type UpdatePreferencesCommand struct {
	UserID string

	// Preferences holds the fields to change; empty fields are left as is.
	Preferences preference.Preferences
}

// Validate validates the command.
func (c UpdatePreferencesCommand) Validate() error {
	if err := required("identity", "UpdatePreferences", "user_id", c.UserID); err != nil {
		return err
	}
	if c.Preferences.IsZero() {
		return shared.WrapError("identity", "UpdatePreferences", shared.ErrValidation,
			"at least one preference is required", shared.ErrEmptyValue)
	}
	if err := c.Preferences.Validate(); err != nil {
		return shared.WrapError("identity", "UpdatePreferences", shared.ErrValidation, "invalid preferences", err)
	}
	return nil
}

// UpdatePreferencesResult contains the result of updating preferences.
type UpdatePreferencesResult struct {
	UserID      string
	Preferences preference.Preferences

	// ChangedFields lists which fields were changed.
	ChangedFields []string

	UpdatedAt time.Time
}

// CacheInvalidator drops cached directory entries.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

// UpdatePreferencesHandler handles UpdatePreferencesCommand.
type UpdatePreferencesHandler struct {
	deps  Deps
	cache CacheInvalidator
}

// NewUpdatePreferencesHandler creates a new UpdatePreferencesHandler. cache
// may be nil.
func NewUpdatePreferencesHandler(d Deps, cache CacheInvalidator) *UpdatePreferencesHandler {
	return &UpdatePreferencesHandler{deps: d.withDefaults(), cache: cache}
}

// Handle merges the update into the stored preferences. Nothing is written
// when no field actually changes.
func (h *UpdatePreferencesHandler) Handle(ctx context.Context, cmd UpdatePreferencesCommand) (*UpdatePreferencesResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result := &UpdatePreferencesResult{UserID: cmd.UserID, UpdatedAt: h.deps.Clock.Now()}
	err := h.deps.Store.WithinTx(ctx, func(ctx context.Context, r uow.Repositories) error {
		u, err := r.Users.GetUser(ctx, cmd.UserID)
		if err != nil {
			return err
		}

		merged := u.Preferences.Merge(cmd.Preferences)
		result.ChangedFields = changedFields(u.Preferences, merged)
		result.Preferences = merged
		if len(result.ChangedFields) == 0 {
			return nil
		}

		u.Preferences = merged
		return r.Users.Save(ctx, u)
	})
	if err != nil {
		return nil, err
	}

	if len(result.ChangedFields) > 0 {
		h.deps.Logger.Info("preferences updated",
			logger.UserID(cmd.UserID),
			zap.Strings("fields", result.ChangedFields))
		if h.cache != nil {
			if err := h.cache.Invalidate(ctx, cmd.UserID); err != nil {
				h.deps.Logger.Warn("failed to invalidate user cache", logger.UserID(cmd.UserID), zap.Error(err))
			}
		}
	}
	return result, nil
}

func changedFields(before, after preference.Preferences) []string {
	var out []string
	if before.Languages != after.Languages {
		out = append(out, "languages")
	}
	if before.Availability != after.Availability {
		out = append(out, "availability")
	}
	if before.Days != after.Days {
		out = append(out, "days")
	}
	if before.Locations != after.Locations {
		out = append(out, "locations")
	}
	return out
}
