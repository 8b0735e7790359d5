// Package mxerrors defines the typed error kinds of spec §7: the set of
// ways an invocation can fail, how each surfaces to the MCP client, and how
// each maps to an HTTP status for the admin surface.
package mxerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies one of the §7 error kinds.
type Kind string

const (
	KindBadInput        Kind = "bad_input"
	KindPolicyDenied     Kind = "policy_denied"
	KindNotFound         Kind = "not_found"
	KindUnavailable      Kind = "unavailable"
	KindSQLExecution     Kind = "sql_execution"
	KindHostExecution    Kind = "host_execution"
	KindNoRows           Kind = "no_rows"
	KindTooManyRows      Kind = "too_many_rows"
	KindColumnMismatch   Kind = "column_mismatch"
	KindBadOutput        Kind = "bad_output"
	KindCancelled        Kind = "cancelled"
	KindInternal         Kind = "internal"
)

// Error is the typed error carried through the executor: a kind, a
// message, and an optional cause, so every failure can be matched on its
// Kind without parsing strings.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NewBadInput(message string, cause error) *Error      { return New(KindBadInput, message, cause) }
func NewPolicyDenied(message string, cause error) *Error  { return New(KindPolicyDenied, message, cause) }
func NewNotFound(message string, cause error) *Error      { return New(KindNotFound, message, cause) }
func NewUnavailable(message string, cause error) *Error   { return New(KindUnavailable, message, cause) }
func NewSQLExecution(message string, cause error) *Error  { return New(KindSQLExecution, message, cause) }
func NewHostExecution(message string, cause error) *Error { return New(KindHostExecution, message, cause) }
func NewNoRows(message string, cause error) *Error        { return New(KindNoRows, message, cause) }
func NewTooManyRows(message string, cause error) *Error   { return New(KindTooManyRows, message, cause) }
func NewColumnMismatch(message string, cause error) *Error {
	return New(KindColumnMismatch, message, cause)
}
func NewBadOutput(message string, cause error) *Error  { return New(KindBadOutput, message, cause) }
func NewCancelled(message string, cause error) *Error  { return New(KindCancelled, message, cause) }
func NewInternal(message string, cause error) *Error   { return New(KindInternal, message, cause) }

// is reports whether err is an *Error of the given kind.
func is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsBadInput(err error) bool      { return is(err, KindBadInput) }
func IsPolicyDenied(err error) bool  { return is(err, KindPolicyDenied) }
func IsNotFound(err error) bool      { return is(err, KindNotFound) }
func IsUnavailable(err error) bool   { return is(err, KindUnavailable) }
func IsSQLExecution(err error) bool  { return is(err, KindSQLExecution) }
func IsHostExecution(err error) bool { return is(err, KindHostExecution) }
func IsNoRows(err error) bool        { return is(err, KindNoRows) }
func IsTooManyRows(err error) bool   { return is(err, KindTooManyRows) }
func IsColumnMismatch(err error) bool { return is(err, KindColumnMismatch) }
func IsBadOutput(err error) bool     { return is(err, KindBadOutput) }
func IsCancelled(err error) bool     { return is(err, KindCancelled) }
func IsInternal(err error) bool      { return is(err, KindInternal) }

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unrecognized errors so every failure still has a reportable kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Code maps a Kind to an HTTP status, used by the admin surface's error
// handler (mirrors pkg/api/errors.Handler's errors.Code(err) call).
func Code(err error) int {
	switch KindOf(err) {
	case KindBadInput, KindBadOutput, KindColumnMismatch:
		return http.StatusBadRequest
	case KindPolicyDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindCancelled:
		return 499 // client closed request, matches nginx convention
	case KindNoRows, KindTooManyRows, KindSQLExecution, KindHostExecution, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
