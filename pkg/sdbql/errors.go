package sdbql

import "fmt"

// Kind is SDBQL's own error taxonomy (spec.md §4.M), distinct from
// pkg/dberr's storage-level taxonomy: a query can fail for reasons a
// storage engine never sees (unknown function, wrong arity, a type
// mismatch an operator can't evaluate).
type Kind string

const (
	KindUnknownFunction   Kind = "unknown_function"
	KindArity             Kind = "arity"
	KindType              Kind = "type"
	KindCollectionNotFound Kind = "collection_not_found"
	KindExecutionError    Kind = "execution_error"
	KindParseError        Kind = "parse_error"
)

// Error is the error type every SDBQL evaluation returns on failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func unknownFunction(name string) *Error {
	return &Error{Kind: KindUnknownFunction, Message: fmt.Sprintf("unknown function %q", name)}
}

func arityError(name string, want, got int) *Error {
	return &Error{Kind: KindArity, Message: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got)}
}

func typeError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindType, Message: fmt.Sprintf(format, args...)}
}

func collectionNotFound(name string) *Error {
	return &Error{Kind: KindCollectionNotFound, Message: fmt.Sprintf("collection %q not found", name)}
}

func executionError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindExecutionError, Message: fmt.Sprintf(format, args...)}
}

func parseError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindParseError, Message: fmt.Sprintf(format, args...)}
}
