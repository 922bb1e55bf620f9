package iap

import (
	"errors"
	"fmt"
)

// ErrorCode classifies why a validation call did not produce a usable receipt.
// It is independent of the remote Status, which is carried alongside it for
// ErrorCodeApple and ErrorCodeUnknown.
type ErrorCode uint8

const (
	ErrorCodeNoData ErrorCode = iota
	ErrorCodeInvalidData
	ErrorCodeConnection
	ErrorCodeApple
	ErrorCodeUnknown
)

var (
	ErrNoData      = errors.New("no receipt data")
	ErrInvalidData = errors.New("invalid response data")
	ErrConnection  = errors.New("connection error")
	ErrApple       = errors.New("app store error")
	ErrUnknown     = errors.New("unknown error")
)

func (c ErrorCode) sentinel() error {
	switch c {
	case ErrorCodeNoData:
		return ErrNoData
	case ErrorCodeInvalidData:
		return ErrInvalidData
	case ErrorCodeConnection:
		return ErrConnection
	case ErrorCodeApple:
		return ErrApple
	default:
		return ErrUnknown
	}
}

func (c ErrorCode) String() string {
	return c.sentinel().Error()
}

// ValidationError is the error delivered for every failed validation call.
//
// errors.Is(err, ErrApple) and friends match on Code, and errors.As can be used
// to get at the remote Status.
type ValidationError struct {
	Code ErrorCode

	// Status is the remote status code when one was received, otherwise
	// StatusMissing.
	Status Status

	// Err is the underlying cause, if any.
	Err error
}

// NewError returns a ValidationError with the given code, status and cause.
func NewError(code ErrorCode, status Status, cause error) *ValidationError {
	return &ValidationError{
		Code:   code,
		Status: status,
		Err:    cause,
	}
}

func (e *ValidationError) Error() string {
	msg := e.Code.String()
	if e.Code == ErrorCodeApple || e.Code == ErrorCodeUnknown {
		if e.Status != StatusMissing {
			msg = fmt.Sprintf("%s (status %d: %s)", msg, int(e.Status), e.Status)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == e.Code.sentinel()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode carried by err, if err is (or wraps) a
// ValidationError.
func CodeOf(err error) (ErrorCode, bool) {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return ErrorCodeUnknown, false
	}
	return verr.Code, true
}

// StatusOf returns the remote status carried by err, or StatusMissing.
func StatusOf(err error) Status {
	var verr *ValidationError
	if !errors.As(err, &verr) {
		return StatusMissing
	}
	return verr.Status
}
