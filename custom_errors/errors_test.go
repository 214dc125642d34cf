package custom_errors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Aggregates(t *testing.T) {
	v := &ValidationError{}
	assert.False(t, v.HasError())
	assert.NoError(t, v.OrNil())

	v.Add(errors.New("name is required"))
	v.Addf("intervalMinutes must be > 0, got %d", 0)

	assert.True(t, v.HasError())
	assert.Len(t, v.Errors, 2)
	assert.Contains(t, v.Error(), "name is required")
	assert.Contains(t, v.Error(), "intervalMinutes must be > 0")
	assert.True(t, IsValidation(fmt.Errorf("create: %w", v.OrNil())))
}

func TestNotFoundError_Is(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewNotFound("job", "abc"))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsSchedulingConflict(err))
	assert.Equal(t, `lookup: job "abc" not found`, err.Error())
}

func TestSchedulingConflictError_As(t *testing.T) {
	err := fmt.Errorf("trigger: %w", NewSchedulingConflict("job-1"))

	var conflict *SchedulingConflictError
	assert.True(t, errors.As(err, &conflict))
	assert.Equal(t, "job-1", conflict.JobID)
	assert.True(t, IsSchedulingConflict(err))
}

func TestHandlerAndTimeoutErrors(t *testing.T) {
	cause := errors.New("marketplace unavailable")
	herr := &HandlerError{JobType: "sync.orders", Err: cause}
	assert.Equal(t, "marketplace unavailable", herr.Error())
	assert.ErrorIs(t, herr, cause)

	terr := &TimeoutError{Timeout: 2 * time.Second}
	assert.Equal(t, "handler exceeded timeout of 2s", terr.Error())
}

func TestTransitionError(t *testing.T) {
	err := fmt.Errorf("pause: %w", &TransitionError{JobID: "job-1", From: "inactive", To: "paused"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "cannot move from inactive to paused")
}
