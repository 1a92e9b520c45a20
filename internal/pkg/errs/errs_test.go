package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorDefaultsStatusToOK(t *testing.T) {
	err := NewError(ErrPeerNotConnected)

	assert.Equal(t, ErrPeerNotConnected, err.Code)
	assert.Equal(t, http.StatusOK, err.Status)
	assert.Equal(t, "You're not connected. Check your internet", err.Message)
}

func TestNewErrorFormatsDetails(t *testing.T) {
	err := NewError(ErrCallTimedOut, "bob")
	assert.Equal(t, "bob did not answer.", err.Message)

	plain := NewError(ErrCallSelf, "ignored")
	assert.Equal(t, "You cannot call yourself.", plain.Message)
}

func TestNewErrorUnknownCode(t *testing.T) {
	err := NewError(424242)

	assert.Equal(t, ErrUnknown, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
}

func TestNewErrorDoesNotMutateTemplate(t *testing.T) {
	first := NewError(ErrCallTimedOut, "alice")
	second := NewError(ErrCallTimedOut, "carol")

	assert.Equal(t, "alice did not answer.", first.Message)
	assert.Equal(t, "carol did not answer.", second.Message)
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("place call: %w", NewError(ErrPeerNotConnected))

	assert.True(t, errors.Is(wrapped, NewError(ErrPeerNotConnected)))
	assert.False(t, errors.Is(wrapped, NewError(ErrCallSelf)))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	custom := From(fmt.Errorf("outer: %w", NewError(ErrCallSelf)))
	require.NotNil(t, custom)
	assert.Equal(t, ErrCallSelf, custom.Code)

	unknown := From(errors.New("boom"))
	assert.Equal(t, ErrUnknown, unknown.Code)
}
