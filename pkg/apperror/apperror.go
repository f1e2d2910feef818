// Package apperror provides structured error handling for the fontleak
// core, mapping each failure kind named in the design to an HTTP status.
package apperror

import (
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// Code identifies a distinct failure kind.
type Code string

const (
	CodeInvalidConfig      Code = "INVALID_CONFIG"
	CodeInvalidAlphabet    Code = "INVALID_ALPHABET"
	CodeCodepointExhausted Code = "CODEPOINT_EXHAUSTED"
	CodeAlphabetTooLarge   Code = "ALPHABET_TOO_LARGE"
	CodeUnsupportedBrowser Code = "UNSUPPORTED_BROWSER"
	CodeSessionUnknown     Code = "SESSION_UNKNOWN"
	CodeBadRequest         Code = "BAD_REQUEST"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is a typed application error carrying enough context to both log
// and answer an HTTP client without a second translation step.
type Error struct {
	Code       Code
	Message    string
	Details    string
	Cause      error
	StackTrace string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode maps the error's Code to the HTTP status the design assigns it.
func (e *Error) StatusCode() int {
	switch e.Code {
	case CodeInvalidAlphabet, CodeCodepointExhausted, CodeAlphabetTooLarge:
		return http.StatusUnprocessableEntity
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeUnsupportedBrowser:
		return http.StatusNotImplemented
	case CodeInvalidConfig:
		return http.StatusInternalServerError
	case CodeSessionUnknown:
		return http.StatusOK // handled as a protocol no-op, never surfaced as an error body
	default:
		return http.StatusInternalServerError
	}
}

func New(code Code, message, details string) *Error {
	return &Error{Code: code, Message: message, Details: details, StackTrace: stack()}
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func NewInvalidConfig(details string) *Error {
	return New(CodeInvalidConfig, "invalid configuration", details)
}

func NewInvalidAlphabet(details string) *Error {
	return New(CodeInvalidAlphabet, "invalid alphabet", details)
}

func NewCodepointExhausted(idxMax, available int) *Error {
	return New(CodeCodepointExhausted, "codepoint table exhausted",
		fmt.Sprintf("idx_max=%d exceeds available index points=%d", idxMax, available))
}

func NewAlphabetTooLarge(size int) *Error {
	return New(CodeAlphabetTooLarge, "alphabet too large",
		fmt.Sprintf("alphabet length %d exceeds maximum of 128", size))
}

func NewUnsupportedBrowser(browser string) *Error {
	return New(CodeUnsupportedBrowser, "unsupported browser", browser)
}

func NewSessionUnknown(id string) *Error {
	return New(CodeSessionUnknown, "session unknown", id)
}

func NewBadRequest(details string) *Error {
	return New(CodeBadRequest, "bad request", details)
}

func NewInternal(message string) *Error {
	if message == "" {
		message = "an unexpected error occurred"
	}
	return New(CodeInternal, message, "")
}

// Wrap promotes any error into an *Error, leaving one that already is
// untouched.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*Error); ok {
		return appErr
	}
	return NewInternal(err.Error()).WithCause(err)
}

func stack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "pkg/apperror") {
			fmt.Fprintf(&b, "%s:%d %s\n", frame.File, frame.Line, frame.Function)
		}
		if !more {
			break
		}
	}
	return b.String()
}
