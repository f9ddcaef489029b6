package rate_limited

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallError(t *testing.T) {
	err := fmt.Errorf("charge: %w", &CallError{
		Key:      "billing",
		Attempts: 2,
		Kind:     ErrRetryInterrupted,
		Cause:    context.DeadlineExceeded,
	})

	assert.ErrorIs(t, err, ErrRetryInterrupted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRateLimitError(err))
	assert.False(t, IsConfigurationError(err))
	assert.Equal(t, `charge: rate limit retry interrupted for key "billing" after 2 attempt(s): context deadline exceeded`, err.Error())

	blocked := &CallError{Key: "billing", Kind: ErrCallBlocked}
	assert.Equal(t, `call blocked by configuration for key "billing"`, blocked.Error())
	assert.NotErrorIs(t, blocked, ErrRateLimitExceeded)
}

func TestIsConfigurationError(t *testing.T) {
	assert.True(t, IsConfigurationError(fmt.Errorf("%w: x", ErrIllegalConfiguration)))
	assert.True(t, IsConfigurationError(fmt.Errorf("%w: x", ErrAmbiguousOptions)))
	assert.False(t, IsConfigurationError(errors.New("x")))
	assert.False(t, IsRateLimitError(errors.New("x")))
}
