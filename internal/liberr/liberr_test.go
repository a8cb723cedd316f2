package liberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	t.Run("returns the kind of taxonomy errors", func(t *testing.T) {
		assert.Equal(t, KindNotFound, KindOf(NotFound("book 1 not found")))
		assert.Equal(t, KindConflict, KindOf(Conflict("isbn taken")))
		assert.Equal(t, KindBlocked, KindOf(Blocked("has loans")))
		assert.Equal(t, KindUnknown, KindOf(Unknown(errors.New("disk on fire"))))
	})

	t.Run("unwraps through fmt.Errorf", func(t *testing.T) {
		wrapped := fmt.Errorf("create loan: %w", Conflict("book unavailable"))
		assert.Equal(t, KindConflict, KindOf(wrapped))
		assert.True(t, IsConflict(wrapped))
	})

	t.Run("foreign errors are unknown", func(t *testing.T) {
		assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	})
}

func TestHelpers(t *testing.T) {
	assert.True(t, IsNotFound(NotFound("x")))
	assert.False(t, IsNotFound(Conflict("x")))
	assert.True(t, IsBlocked(Blocked("x")))
	assert.False(t, IsTimeout(Blocked("x")))
	assert.True(t, IsTimeout(New(KindTimeout, "slow")))
}

func TestReturnedAtMs(t *testing.T) {
	at := int64(1700000000000)
	err := Conflict("loan already returned")
	err.ReturnedAtMs = &at

	var le *Error
	assert.True(t, errors.As(error(err), &le))
	assert.NotNil(t, le.ReturnedAtMs)
	assert.Equal(t, at, *le.ReturnedAtMs)
}

func TestMessageFormatting(t *testing.T) {
	err := NotFound("book %d not found", 42)
	assert.Equal(t, "book 42 not found", err.Error())
}
