package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOfUnwrapsNestedErrors(t *testing.T) {
	err := fmt.Errorf("outer: %w", NotFound("row missing"))
	assert.Equal(t, CodeNotFound, CodeOf(err))

	assert.Equal(t, CodeUnknown, CodeOf(errors.New("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestTransientCarriesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transient("sending message", cause)

	assert.Equal(t, CodeUnavailable, CodeOf(err))
	assert.ErrorIs(t, err, cause)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Transient("x", nil)))
	assert.True(t, IsTransient(Wrap(CodeDeadlineExceeded, "slow", context.DeadlineExceeded)))
	assert.False(t, IsTransient(InvalidArg("bad")))
	assert.False(t, IsTransient(nil))
}
