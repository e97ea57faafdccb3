package course

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyhub/groupmatch/internal/domain/shared"
)

func TestValidateCapacity(t *testing.T) {
	fixed := Course{ID: "c", Name: "Algebra", GroupSize: 3}
	assert.NoError(t, fixed.ValidateCapacity(3))
	assert.ErrorIs(t, fixed.ValidateCapacity(4), shared.ErrInvalidCapacity)
	assert.ErrorIs(t, fixed.ValidateCapacity(1), shared.ErrInvalidCapacity)

	custom := Course{ID: "c", Name: "Algebra", GroupSize: 3, AllowCustomSizes: true}
	assert.NoError(t, custom.ValidateCapacity(5))
	assert.True(t, shared.IsValidation(custom.ValidateCapacity(1)))
}

func TestIsEnrolled(t *testing.T) {
	open := Course{ID: "c", Name: "Open", GroupSize: 2}
	assert.True(t, open.IsEnrolled("anyone"))

	closed := Course{ID: "c", Name: "Closed", GroupSize: 2, Roster: []string{"u1"}}
	assert.True(t, closed.IsEnrolled("u1"))
	assert.False(t, closed.IsEnrolled("u2"))
}

func TestCourseValidate(t *testing.T) {
	assert.NoError(t, Course{ID: "c", Name: "n", GroupSize: 2}.Validate())
	assert.True(t, shared.IsValidation(Course{ID: "c", Name: "n", GroupSize: 1}.Validate()))
	assert.True(t, shared.IsValidation(Course{GroupSize: 3}.Validate()))
}
