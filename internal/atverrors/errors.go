// Package atverrors defines the error-kind taxonomy shared by every
// protocol stack in atvkit. Kinds are sentinel values checked with
// errors.Is; concrete errors carry a message and, where the protocol
// defines one, a sub-code.
package atverrors

import (
	"errors"
	"fmt"
	"time"
)

// Kind identifies the category of failure, independent of which protocol
// stack produced it.
type Kind struct {
	name string
}

func (k Kind) Error() string { return k.name }

var (
	KindDiscovery       = Kind{"discovery error"}
	KindAuthentication  = Kind{"authentication error"}
	KindPairing         = Kind{"pairing error"}
	KindBackOff         = Kind{"back-off error"}
	KindConnection      = Kind{"connection error"}
	KindProtocol        = Kind{"protocol error"}
	KindCommand         = Kind{"command error"}
	KindNotSupported    = Kind{"not supported"}
	KindInvalidArgument = Kind{"invalid argument"}
	KindDeviceAuth      = Kind{"device auth error"}
)

// Error wraps a Kind with a message, an optional sub-code, and an
// optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	SubCode string
	Cause   error
}

func (e *Error) Error() string {
	s := e.Kind.name
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.SubCode != "" {
		s += " (" + e.SubCode + ")"
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is the Kind this error belongs to, so that
// errors.Is(err, atverrors.KindConnection) works without type assertions.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

func Discovery(format string, args ...any) error       { return newErr(KindDiscovery, format, args...) }
func Authentication(format string, args ...any) error   { return newErr(KindAuthentication, format, args...) }
func Pairing(format string, args ...any) error          { return newErr(KindPairing, format, args...) }
func Connection(format string, args ...any) error       { return newErr(KindConnection, format, args...) }
func Protocol(format string, args ...any) error         { return newErr(KindProtocol, format, args...) }
func NotSupported(format string, args ...any) error     { return newErr(KindNotSupported, format, args...) }
func InvalidArgument(format string, args ...any) error  { return newErr(KindInvalidArgument, format, args...) }
func DeviceAuth(format string, args ...any) error       { return newErr(KindDeviceAuth, format, args...) }

// Command carries a device-reported sub-code alongside the command
// failure.
func Command(subCode, format string, args ...any) error {
	e := newErr(KindCommand, format, args...)
	e.SubCode = subCode
	return e
}

// Wrap attaches a Kind to an existing error without discarding it.
func Wrap(k Kind, cause error, format string, args ...any) error {
	e := newErr(k, format, args...)
	e.Cause = cause
	return e
}

// BackOffError carries a suggested minimum retry delay.
type BackOffError struct {
	*Error
	RetryAfter time.Duration
}

func BackOff(retryAfter time.Duration, format string, args ...any) error {
	return &BackOffError{Error: newErr(KindBackOff, format, args...), RetryAfter: retryAfter}
}

// AsBackOff extracts the suggested retry delay, if err is a BackOffError.
func AsBackOff(err error) (time.Duration, bool) {
	var boe *BackOffError
	if errors.As(err, &boe) {
		return boe.RetryAfter, true
	}
	return 0, false
}
