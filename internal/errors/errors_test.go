package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/lightsync/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestFactoryMessages(t *testing.T) {
	f := errors.New()

	assert.Equal(t, "Invalid color", f.New(errors.ErrInvalidColor).Error())
	assert.Equal(t, "custom", f.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "unknown_code", f.New(errors.ErrorCode("unknown_code")).Error())

	wrapped := f.Wrap(errors.ErrTimeout, fmt.Errorf("deadline"))
	assert.Equal(t, "Operation timed out: deadline", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "deadline")
}

func TestHasCode(t *testing.T) {
	f := errors.New()
	inner := f.New(errors.ErrInvalidColor)
	outer := f.Wrap(errors.ErrOperationFailed, fmt.Errorf("capture: %w", inner))

	assert.True(t, errors.HasCode(outer, errors.ErrOperationFailed))
	assert.True(t, errors.HasCode(outer, errors.ErrInvalidColor))
	assert.False(t, errors.HasCode(outer, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))

	assert.Equal(t, errors.ErrOperationFailed, errors.CodeOf(outer))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(fmt.Errorf("plain")))
}

func TestWithDataKeepsCode(t *testing.T) {
	err := errors.New().New(errors.ErrInvalidConfig).WithData("sensitivity")

	assert.Equal(t, errors.ErrInvalidConfig, err.Code())
	assert.Equal(t, "sensitivity", err.GetData())
	assert.Equal(t, "Invalid configuration: sensitivity", err.Error())
}
