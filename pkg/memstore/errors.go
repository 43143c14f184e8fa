package memstore

import (
	"net/http"

	"github.com/cortexdb/cortex/pkg/errx"
)

var errorRegistry = errx.NewRegistry("MEMSTORE")

var (
	ErrInvalidInput = errorRegistry.Register(
		"INVALID_INPUT",
		errx.TypeValidation,
		http.StatusBadRequest,
		"request shape or range violation",
	)

	ErrNotFound = errorRegistry.Register(
		"NOT_FOUND",
		errx.TypeNotFound,
		http.StatusNotFound,
		"memory, session, relationship, version, template, chain or subtask not found",
	)

	ErrConflict = errorRegistry.Register(
		"CONFLICT",
		errx.TypeConflict,
		http.StatusConflict,
		"operation conflicts with an existing resource",
	)

	ErrMisconfigured = errorRegistry.Register(
		"MISCONFIGURED",
		errx.TypeValidation,
		http.StatusPreconditionFailed,
		"missing credential or unreachable backend",
	)

	ErrTransient = errorRegistry.Register(
		"TRANSIENT",
		errx.TypeExternal,
		http.StatusBadGateway,
		"backend connection dropped after retries exhausted",
	)

	ErrInternal = errorRegistry.Register(
		"INTERNAL",
		errx.TypeInternal,
		http.StatusInternalServerError,
		"unexpected internal state",
	)
)

// NewInvalidInput builds an InvalidInput error with a specific message.
func NewInvalidInput(msg string) *errx.Error {
	return errorRegistry.NewWithMessage(ErrInvalidInput, msg)
}

// NewNotFound builds a NotFound error with a specific message.
func NewNotFound(msg string) *errx.Error {
	return errorRegistry.NewWithMessage(ErrNotFound, msg)
}

// NewConflict builds a Conflict error with a specific message.
func NewConflict(msg string) *errx.Error {
	return errorRegistry.NewWithMessage(ErrConflict, msg)
}

// NewMisconfigured builds a Misconfigured error with a specific message.
func NewMisconfigured(msg string) *errx.Error {
	return errorRegistry.NewWithMessage(ErrMisconfigured, msg)
}

// NewTransient wraps cause as a Transient error with a specific message.
func NewTransient(msg string, cause error) *errx.Error {
	if cause == nil {
		return errorRegistry.NewWithMessage(ErrTransient, msg)
	}
	return errorRegistry.NewWithCause(ErrTransient, cause).WithDetail("message", msg)
}

// NewInternal wraps cause as an Internal error with a specific message.
func NewInternal(msg string, cause error) *errx.Error {
	if cause == nil {
		return errorRegistry.NewWithMessage(ErrInternal, msg)
	}
	return errorRegistry.NewWithCause(ErrInternal, cause).WithDetail("message", msg)
}
