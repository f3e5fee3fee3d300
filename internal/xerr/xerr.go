// Package xerr is winbridge's error taxonomy: a small set of sentinel-tagged error
// types plus github.com/pkg/errors for stack-annotated wrapping, so an operator's log
// carries a trace while a caller can still errors.As to the coded type and match on
// Code.
package xerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is one of the error taxonomy's string tags.
type Code string

const (
	IframeNotReady Code = "IFRAME_NOT_READY"
	TargetWindowClosed Code = "TARGET_WINDOW_CLOSED"
	AckTimeout Code = "ACK_TIMEOUT"
	Timeout Code = "TIMEOUT"
	AsyncTimeout Code = "ASYNC_TIMEOUT"
	RequestError Code = "REQUEST_ERROR"
	MethodNotFound Code = "METHOD_NOT_FOUND"
	NoResponse Code = "NO_RESPONSE"
	ProtocolUnsupported Code = "PROTOCOL_UNSUPPORTED"
)

// CodedError is the error shape propagated to callers: a code, a message, and the
// originating requestId. Config is omitted here -- it belongs to the caller-facing
// client wrapper, not this library's error type -- but RequestID is carried since it
// is always known at the point a CodedError is raised.
type CodedError struct {
	Code Code
	RequestID string
	cause error
}

func New(code Code, requestID, format string, args...any) *CodedError {
	msg := fmt.Sprintf(format, args...)
	return &CodedError{Code: code, RequestID: requestID, cause: errors.New(msg)}
}

func Wrap(code Code, requestID string, cause error) *CodedError {
	return &CodedError{Code: code, RequestID: requestID, cause: errors.WithStack(cause)}
}

func (e *CodedError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Code, e.RequestID, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.cause)
}

func (e *CodedError) Unwrap() error { return e.cause }

// Cause returns the pkg/errors-annotated root cause, useful for logging a stack trace
// with %+v without exposing the stack through Error itself.
func (e *CodedError) Cause() error { return errors.Cause(e.cause) }

// Is lets errors.Is(err, xerr.MethodNotFound) work by comparing codes, not identity --
// every METHOD_NOT_FOUND CodedError for a different request is still "the same kind of
// error" to a caller deciding how to react.
func (e *CodedError) Is(target error) bool {
	ce, ok := target.(*CodedError)
	return ok && ce.Code == e.Code
}

// CodeOf extracts the Code from err if it is (or wraps) a *CodedError.
func CodeOf(err error) (Code, bool) {
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}
