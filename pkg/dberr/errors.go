// Package dberr defines the typed error taxonomy shared by every solidb
// component. Components never let a driver-specific error (a bbolt error,
// a JSON-Schema validation error, an HTTP status) escape directly — they
// wrap it into one of these kinds so callers can switch on Kind without
// depending on the underlying storage or transport.
package dberr

import (
	"errors"
	"fmt"
)

// Kind identifies a class of error from the design-level taxonomy.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindConflict             Kind = "conflict"
	KindInvalidDocument      Kind = "invalid_document"
	KindBadRequest           Kind = "bad_request"
	KindOperationNotSupported Kind = "operation_not_supported"
	KindCollectionNotFound   Kind = "collection_not_found"
	KindInternal             Kind = "internal"
	KindTimeout              Kind = "timeout"
	KindShardUnavailable     Kind = "shard_unavailable"
	KindMigrationFailed      Kind = "migration_failed"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, dberr.NotFoundErr) work by comparing Kind rather than
// identity, since each call site constructs its own *Error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func new_(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func NotFound(msg string) *Error             { return new_(KindNotFound, msg, nil) }
func Conflict(msg string) *Error             { return new_(KindConflict, msg, nil) }
func InvalidDocument(msg string) *Error      { return new_(KindInvalidDocument, msg, nil) }
func BadRequest(msg string) *Error           { return new_(KindBadRequest, msg, nil) }
func OperationNotSupported(msg string) *Error { return new_(KindOperationNotSupported, msg, nil) }
func CollectionNotFound(msg string) *Error   { return new_(KindCollectionNotFound, msg, nil) }
func Timeout(msg string) *Error              { return new_(KindTimeout, msg, nil) }
func ShardUnavailable(msg string) *Error     { return new_(KindShardUnavailable, msg, nil) }
func MigrationFailed(msg string) *Error      { return new_(KindMigrationFailed, msg, nil) }

// Internal wraps a lower-level error (KV failure, lock poisoning, …) as an
// InternalError while preserving it for unwrapping/logging.
func Internal(msg string, err error) *Error { return new_(KindInternal, msg, err) }

// Wrap classifies err into a Kind-tagged Error, leaving already-tagged
// errors untouched. Used at package boundaries that call into the KV
// engine or another component.
func Wrap(kind Kind, msg string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}
	return new_(kind, msg, err)
}

// Sentinels for errors.Is comparisons against a bare Kind value.
var (
	NotFoundErr             = &Error{Kind: KindNotFound}
	ConflictErr             = &Error{Kind: KindConflict}
	InvalidDocumentErr      = &Error{Kind: KindInvalidDocument}
	BadRequestErr           = &Error{Kind: KindBadRequest}
	OperationNotSupportedErr = &Error{Kind: KindOperationNotSupported}
	CollectionNotFoundErr   = &Error{Kind: KindCollectionNotFound}
	InternalErr             = &Error{Kind: KindInternal}
	TimeoutErr              = &Error{Kind: KindTimeout}
	ShardUnavailableErr     = &Error{Kind: KindShardUnavailable}
	MigrationFailedErr      = &Error{Kind: KindMigrationFailed}
)

// KindOf extracts the Kind of err, or KindInternal if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
