package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapBuildsClassifiedError(t *testing.T) {
	err := WrapValidation(ErrMissingTargetID, "commands", "Handle", "resolve target")
	require.Error(t, err)

	var ce *ClassifiedError
	require.True(t, As(err, &ce))
	assert.Equal(t, ErrorValidation, ce.Class)
	assert.Equal(t, "commands", ce.Component)
	assert.Contains(t, err.Error(), "commands.Handle")
	assert.Contains(t, err.Error(), "resolve target")
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapInternal(nil, "c", "m", "a"))
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorClass
	}{
		{WrapAuthentication(ErrInvalidCredential, "auth", "Verify", "check token"), ErrorAuthentication},
		{WrapProtocol(ErrInvalidJSON, "commands", "Handle", "decode"), ErrorProtocol},
		{WrapValidation(ErrMissingTargetID, "commands", "Handle", "target"), ErrorValidation},
		{WrapDelivery(ErrQueueFull, "Queue", "Push", "enqueue"), ErrorDelivery},
		{WrapInternal(fmt.Errorf("boom"), "hub", "Attach", "register"), ErrorInternal},
		{fmt.Errorf("plain"), ErrorInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassOf(tt.err))
	}
}

func TestClassOfSurvivesWrapping(t *testing.T) {
	inner := WrapAuthentication(ErrInvalidCredential, "auth", "Verify", "check token")
	outer := fmt.Errorf("gateway handshake: %w", inner)

	assert.Equal(t, ErrorAuthentication, ClassOf(outer))
	assert.True(t, IsAuthentication(outer))
	assert.True(t, Is(outer, ErrInvalidCredential))
}

func TestClassPredicates(t *testing.T) {
	auth := WrapAuthentication(ErrInvalidCredential, "auth", "Verify", "check")
	assert.True(t, IsAuthentication(auth))
	assert.False(t, IsProtocol(auth))
	assert.False(t, IsValidation(auth))
	assert.False(t, IsDelivery(auth))

	delivery := WrapDelivery(ErrWriteFailed, "Conn", "writePump", "write")
	assert.True(t, IsDelivery(delivery))
	assert.True(t, Is(delivery, ErrWriteFailed))
}

func TestUnwrapChain(t *testing.T) {
	err := WrapDelivery(ErrQueueClosed, "Queue", "Push", "push to closed queue")
	assert.True(t, Is(err, ErrQueueClosed))

	var ce *ClassifiedError
	require.True(t, As(err, &ce))
	assert.True(t, Is(ce.Unwrap(), ErrQueueClosed))
}
