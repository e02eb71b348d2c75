// Package errkind defines the error taxonomy surfaced by the driver core:
// server errors, protocol errors, auth errors, transport/TLS errors,
// timeouts, cancellation, conversion errors and usage errors. Every error
// the core returns to a caller can be matched with errors.As against one of
// these concrete types.
package errkind

import (
	"fmt"

	jerrors "github.com/juju/errors"
	pingcaperrors "github.com/pingcap/errors"
)

// ServerError wraps a MySQL ERR packet. It carries no fatality flag of
// its own: receiving one does not by itself end the session.
type ServerError struct {
	Code     uint16
	SQLState string
	Message  string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("Error %d (%s): %s", e.Code, e.SQLState, e.Message)
}

// Well-known SQLSTATE-carrying server error codes the core itself produces
// or specifically recognizes, grounded on the teacher's ER_* table
// (server/common/constant.go).
const (
	ErrAccessDenied    uint16 = 1045
	ErrBadDB           uint16 = 1049
	ErrUnknown         uint16 = 1105
	ErrMalformedPacket uint16 = 1835
	ErrQueryInterrupted uint16 = 1317
	ErrConnCountError  uint16 = 1040
)

// NewServerError builds a ServerError, defaulting SQLState to "HY000" the
// way the wire protocol does when the server omits it.
func NewServerError(code uint16, sqlState, message string) *ServerError {
	if sqlState == "" {
		sqlState = "HY000"
	}
	return &ServerError{Code: code, SQLState: sqlState, Message: message}
}

// IsQueryInterrupted reports whether a ServerError is the KILL QUERY
// signature the executor's cancellation path looks for.
func (e *ServerError) IsQueryInterrupted() bool {
	return e.Code == ErrQueryInterrupted
}

// ProtocolKind enumerates the ways the wire framing or state machine can be
// violated. All of them poison the session.
type ProtocolKind int

const (
	UnexpectedSequence ProtocolKind = iota
	MalformedPacket
	UnexpectedPacketType
	PacketTooLarge
	CompressionError
)

func (k ProtocolKind) String() string {
	switch k {
	case UnexpectedSequence:
		return "unexpected sequence id"
	case MalformedPacket:
		return "malformed packet"
	case UnexpectedPacketType:
		return "unexpected packet type"
	case PacketTooLarge:
		return "packet too large"
	case CompressionError:
		return "compression envelope error"
	default:
		return "unknown protocol error"
	}
}

// ProtocolError always poisons the session that produced it.
type ProtocolError struct {
	Kind ProtocolKind
	// Detail carries the offending value(s), e.g. "want 3 got 7".
	Detail string
	cause  error
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return "protocol error: " + e.Kind.String()
	}
	return fmt.Sprintf("protocol error: %s: %s", e.Kind, e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.cause }

// NewProtocolError wraps cause (if any) with jerrors.Trace the way the
// teacher's transport layer does (server/net/connection.go), preserving a
// stack for diagnostics while keeping Unwrap compatible with errors.As.
func NewProtocolError(kind ProtocolKind, detail string, cause error) *ProtocolError {
	if cause != nil {
		cause = jerrors.Trace(cause)
	}
	return &ProtocolError{Kind: kind, Detail: detail, cause: cause}
}

// AuthError is terminal for the session: the handshake failed and the
// transport should be closed without retry on this Session value.
type AuthError struct {
	Reason string
	cause  error
}

func (e *AuthError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("auth error: %s: %v", e.Reason, e.cause)
	}
	return "auth error: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.cause }

func NewAuthError(reason string, cause error) *AuthError {
	return &AuthError{Reason: reason, cause: cause}
}

// TLSError wraps a TLS handshake/config failure. Terminal.
type TLSError struct {
	cause error
}

func (e *TLSError) Error() string { return "tls error: " + e.cause.Error() }
func (e *TLSError) Unwrap() error { return e.cause }

func NewTLSError(cause error) *TLSError { return &TLSError{cause: jerrors.Trace(cause)} }

// TransportError wraps a network I/O failure. Terminal.
type TransportError struct {
	cause error
}

func (e *TransportError) Error() string { return "transport error: " + e.cause.Error() }
func (e *TransportError) Unwrap() error { return e.cause }

func NewTransportError(cause error) *TransportError {
	return &TransportError{cause: jerrors.Trace(cause)}
}

// TimeoutScope names which budget elapsed.
type TimeoutScope int

const (
	TimeoutCommand TimeoutScope = iota
	TimeoutConnect
	TimeoutLifetime
)

func (s TimeoutScope) String() string {
	switch s {
	case TimeoutCommand:
		return "command"
	case TimeoutConnect:
		return "connect"
	case TimeoutLifetime:
		return "lifetime"
	default:
		return "unknown"
	}
}

// Timeout records which time budget expired. The executor translates this
// into either a ServerError{QueryInterrupted} (KILL succeeded) or a
// CommandTimeoutExpired poison, per spec §7.
type Timeout struct {
	Scope TimeoutScope
}

func (e *Timeout) Error() string { return e.Scope.String() + " timeout expired" }

func NewTimeout(scope TimeoutScope) *Timeout { return &Timeout{Scope: scope} }

// CommandTimeoutExpired is returned instead of Timeout when the
// cancellation side-channel did not bring the session back to Ready within
// the grace window (or CancellationTimeout was -1): the session is poisoned.
type CommandTimeoutExpired struct{}

func (e *CommandTimeoutExpired) Error() string { return "command timeout expired, connection closed" }

// Cancelled wraps the server-side interruption produced by a caller-issued
// cancellation (as opposed to a command timeout).
type Cancelled struct {
	cause error
}

func (e *Cancelled) Error() string {
	if e.cause != nil {
		return "cancelled: " + e.cause.Error()
	}
	return "cancelled"
}
func (e *Cancelled) Unwrap() error { return e.cause }

func NewCancelled(cause error) *Cancelled { return &Cancelled{cause: cause} }

// ConversionError means a returned value could not be coerced to the
// requested type. Non-fatal: the session stays usable.
type ConversionError struct {
	From, To string
	cause    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert value from %s to %s: %v", e.From, e.To, e.cause)
}
func (e *ConversionError) Unwrap() error { return e.cause }

func NewConversionError(from, to string, cause error) *ConversionError {
	return &ConversionError{From: from, To: to, cause: cause}
}

// UsageKind enumerates caller-contract violations.
type UsageKind int

const (
	IndexOutOfRange UsageKind = iota
	NoConnection
	StatementClosed
	InvalidState
)

func (k UsageKind) String() string {
	switch k {
	case IndexOutOfRange:
		return "index out of range"
	case NoConnection:
		return "no connection"
	case StatementClosed:
		return "statement closed"
	case InvalidState:
		return "invalid state"
	default:
		return "usage error"
	}
}

// UsageError means the caller violated the API contract. Non-fatal.
type UsageError struct {
	Kind   UsageKind
	Detail string
}

func (e *UsageError) Error() string {
	if e.Detail == "" {
		return "usage error: " + e.Kind.String()
	}
	return fmt.Sprintf("usage error: %s: %s", e.Kind, e.Detail)
}

func NewUsageError(kind UsageKind, detail string) *UsageError {
	return &UsageError{Kind: kind, Detail: detail}
}

// Traced attaches a pingcap/errors stack trace to err, for driver-detected
// conditions (not decoded off the wire) that are worth a capture site when
// logged — the KILL QUERY sidecar failing, or a pool fill failing, for
// example. Grounded on the teacher's server/common error construction,
// which credits pingcap/errors for the same Trace-style wrapping.
func Traced(err error) error {
	if err == nil {
		return nil
	}
	return pingcaperrors.AddStack(err)
}
