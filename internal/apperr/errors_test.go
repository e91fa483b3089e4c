package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("load payment: %w", NotFound("payment %s not found", "p-1"))

	assert.True(t, IsNotFound(err))
	assert.False(t, IsValidation(err))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "load payment: payment p-1 not found", err.Error())
}

func TestKindOf_PlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	inner := Conflict("insufficient slots")
	assert.Same(t, error(inner), Wrap(KindTransformFailure, inner, "ignored"))

	cause := errors.New("dial tcp: refused")
	wrapped := Wrap(KindRemoteUnavailable, cause, "booking service")
	assert.True(t, IsRemoteUnavailable(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, Wrap(KindConflict, nil, "nothing"))
}
