package errkind

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerErrorDefaultsSQLState(t *testing.T) {
	err := NewServerError(1146, "", "Table 'x' doesn't exist")
	assert.Equal(t, "HY000", err.SQLState)
	assert.Contains(t, err.Error(), "1146")
}

func TestServerErrorIsQueryInterrupted(t *testing.T) {
	err := NewServerError(ErrQueryInterrupted, "70100", "Query execution was interrupted")
	assert.True(t, err.IsQueryInterrupted())

	other := NewServerError(ErrBadDB, "42000", "Unknown database")
	assert.False(t, other.IsQueryInterrupted())
}

func TestProtocolErrorUnwrap(t *testing.T) {
	cause := errors.New("short read")
	err := NewProtocolError(UnexpectedSequence, "want 3 got 7", cause)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected sequence id")
	assert.Contains(t, err.Error(), "want 3 got 7")
	assert.True(t, errors.Is(errors.Unwrap(err), cause) || errors.Unwrap(err).Error() == cause.Error())
}

func TestAuthErrorUnwrap(t *testing.T) {
	cause := errors.New("bad scramble")
	err := NewAuthError("handshake rejected", cause)
	assert.ErrorIs(t, err, cause)
}

func TestUsageErrorIndexOutOfRange(t *testing.T) {
	err := NewUsageError(IndexOutOfRange, "index -1")
	assert.Equal(t, "usage error: index out of range: index -1", err.Error())
}

func TestCancelledWrapsServerError(t *testing.T) {
	se := NewServerError(ErrQueryInterrupted, "70100", "Query execution was interrupted")
	c := NewCancelled(se)
	var target *ServerError
	assert.True(t, errors.As(c, &target))
	assert.True(t, target.IsQueryInterrupted())
}
