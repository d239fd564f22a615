package dispatch

import (
	"errors"
	"fmt"
)

// Error represents a failed dispatch or startup load.
//
// Error carries structured fields for diagnostics; the underlying cause is
// available through Unwrap.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Domain is the affected domain, if any.
	Domain string

	// Event is the event being dispatched; empty during startup load.
	Event string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes dispatch errors.
type ErrorCode string

const (
	// ErrCodeParse indicates stored content or a payload is not valid for the
	// shape the domain expects.
	ErrCodeParse ErrorCode = "PARSE_ERROR"

	// ErrCodeIO indicates a domain file could not be created, read or written.
	ErrCodeIO ErrorCode = "IO_ERROR"

	// ErrCodeMissingDomain indicates a stored domain has no registry entry.
	// This is a configuration defect, not a per-call condition.
	ErrCodeMissingDomain ErrorCode = "MISSING_DOMAIN"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Domain != "" && e.Event != "":
		return fmt.Sprintf("%s: %v (domain=%s, event=%s)", e.Code, e.Err, e.Domain, e.Event)
	case e.Domain != "":
		return fmt.Sprintf("%s: %v (domain=%s)", e.Code, e.Err, e.Domain)
	default:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the ErrorCode of err, or "" if err is not a dispatch error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsParseError returns true if err is a parse error.
func IsParseError(err error) bool {
	return CodeOf(err) == ErrCodeParse
}

// IsIOError returns true if err is an I/O error.
func IsIOError(err error) bool {
	return CodeOf(err) == ErrCodeIO
}

// IsMissingDomain returns true if err reports a domain without registry entry.
func IsMissingDomain(err error) bool {
	return CodeOf(err) == ErrCodeMissingDomain
}

func newParseError(domain, event string, err error) *Error {
	return &Error{Code: ErrCodeParse, Domain: domain, Event: event, Err: err}
}

func newIOError(domain, event string, err error) *Error {
	return &Error{Code: ErrCodeIO, Domain: domain, Event: event, Err: err}
}

func newMissingDomainError(domain, event string) *Error {
	return &Error{
		Code:   ErrCodeMissingDomain,
		Domain: domain,
		Event:  event,
		Err:    errors.New("domain has no registry entry"),
	}
}
