// Package engineerr implements the engine's tagged-result error taxonomy
// (spec.md §7): recoverable error kinds that stay local to a component and
// are reported back as part of an operation's result record, rather than
// being treated as unexpected exceptions.
package engineerr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for both logging and JSON-RPC mapping.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindStorage      Kind = "storage"
	KindFilesystem   Kind = "filesystem"
	KindDedup        Kind = "dedup"
	KindCleanup      Kind = "cleanup"
	KindRelationship Kind = "relationship"
	KindLifecycle    Kind = "lifecycle"
)

// Error is the engine's structured error type. Kind drives both logging
// policy (validation/not-found are never logged as errors) and the
// JSON-RPC code the transport layer assigns it.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, engineerr.KindStorage) style matching against a
// bare Kind value wrapped as an error by New.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithData attaches structured diagnostic data to an error and returns it.
func (e *Error) WithData(data map[string]interface{}) *Error {
	e.Data = data
	return e
}

// KindOf extracts the Kind from err, defaulting to KindStorage (the
// engine's fail-closed default for genuinely unexpected errors) when err
// does not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

// JSONRPCCode maps a Kind to the -32000..-32009 range spec.md §6 reserves
// for tool/storage/dedup/lifecycle/validation failures.
func JSONRPCCode(kind Kind) int {
	switch kind {
	case KindValidation:
		return -32001
	case KindNotFound:
		return -32002
	case KindStorage:
		return -32003
	case KindFilesystem:
		return -32004
	case KindDedup:
		return -32005
	case KindCleanup:
		return -32006
	case KindRelationship:
		return -32007
	case KindLifecycle:
		return -32008
	default:
		return -32000 // TOOL_EXECUTION_ERROR, the catch-all per spec.md §7
	}
}
