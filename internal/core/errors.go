package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Error codes carried by the Result Envelope. Database errors carry the
// driver's own code (SQLSTATE for PostgreSQL, error number for MySQL,
// result code for SQLite) instead.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnboundedUpdate   = "UNBOUNDED_UPDATE"
	CodeNoRows            = "NO_ROWS"
	CodeMultipleRows      = "MULTIPLE_ROWS"
	CodeNetwork           = "NETWORK_ERROR"
	CodeRejectedStatement = "REJECTED_STATEMENT"
	CodeDatabase          = "DATABASE_ERROR"
	CodeConnection        = "CONNECTION_ERROR"
	CodeCanceled          = "CONTEXT_CANCELED"
	CodeUnsupported       = "UNSUPPORTED_DIALECT"
)

// Error is the error half of the Result Envelope. It survives the network
// round trip unchanged, so errors.Is against the predefined errors below
// compares codes rather than identities.
type Error struct {
	Message string `json:"message" msgpack:"message"`
	Code    string `json:"code,omitempty" msgpack:"code,omitempty"`
	Details string `json:"details,omitempty" msgpack:"details,omitempty"`
	Hint    string `json:"hint,omitempty" msgpack:"hint,omitempty"`

	cause error
}

// Predefined errors returned through the Result Envelope.
var (
	// ErrNoRows is returned by Single when the query matched no rows.
	ErrNoRows = &Error{Code: CodeNoRows, Message: "no rows returned, expected one"}
	// ErrMultipleRows is returned by Single and MaybeSingle when more than one row matched.
	ErrMultipleRows = &Error{Code: CodeMultipleRows, Message: "multiple rows returned, expected one"}
	// ErrUnboundedUpdate is returned for an UPDATE without any WHERE condition.
	ErrUnboundedUpdate = &Error{Code: CodeUnboundedUpdate, Message: "update requires at least one filter"}
	// ErrNetwork is returned when the remote data endpoint cannot be reached.
	ErrNetwork = &Error{Code: CodeNetwork, Message: "could not reach the data endpoint"}
	// ErrValidation is the generic validation failure; concrete errors carry details.
	ErrValidation = &Error{Code: CodeValidation, Message: "invalid query"}
	// ErrRejectedStatement is returned by the server when a statement fails the safety check.
	ErrRejectedStatement = &Error{Code: CodeRejectedStatement, Message: "statement rejected"}
	// ErrUnsupportedDialect is returned when a driver has no registered dialect.
	ErrUnsupportedDialect = &Error{Code: CodeUnsupported, Message: "unsupported database dialect"}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

// Unwrap returns the underlying driver or transport error, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches another *Error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code != "" && t.Code == e.Code
}

// Wrap returns a copy of e carrying details and cause. The predefined
// errors are never modified.
func (e *Error) Wrap(details string, cause error) *Error {
	return e.with(details, cause)
}

// with returns a copy of e carrying details and cause.
func (e *Error) with(details string, cause error) *Error {
	c := *e
	c.Details = details
	c.cause = cause
	return &c
}

// validationError builds a VALIDATION_ERROR from err.
func validationError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrValidation.with(err.Error(), err)
}

// validationf builds a VALIDATION_ERROR with a formatted detail.
func validationf(format string, args ...any) *Error {
	return ErrValidation.with(fmt.Sprintf(format, args...), nil)
}

// sqliteError matches modernc.org/sqlite and mattn/go-sqlite3 style errors
// without linking either driver.
type sqliteError interface {
	error
	Code() int
}

// databaseError maps a driver error onto the envelope error, keeping the
// driver's code, message and detail. Nothing is retried here.
func databaseError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &Error{
			Message: pqErr.Message,
			Code:    string(pqErr.Code),
			Details: pqErr.Detail,
			Hint:    pqErr.Hint,
			cause:   err,
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return &Error{
			Message: myErr.Message,
			Code:    strconv.Itoa(int(myErr.Number)),
			Details: string(myErr.SQLState[:]),
			cause:   err,
		}
	}

	var liteErr sqliteError
	if errors.As(err, &liteErr) {
		return &Error{
			Message: liteErr.Error(),
			Code:    "SQLITE_" + strconv.Itoa(liteErr.Code()),
			cause:   err,
		}
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Message: err.Error(), Code: CodeCanceled, cause: err}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return &Error{Message: err.Error(), Code: CodeConnection, cause: err}
	}

	return &Error{Message: err.Error(), Code: CodeDatabase, cause: err}
}

// networkError wraps a transport failure as NETWORK_ERROR.
func networkError(details string, cause error) *Error {
	return ErrNetwork.with(details, cause)
}
