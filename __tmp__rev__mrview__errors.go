package mrview

import "fmt"

// Error is the engine's single error type. It mirrors CouchDB's own
// {error, reason} response shape with an attached HTTP-equivalent status
// code, so callers that already understand CouchDB error names can keep
// treating them the same way here.
type Error struct {
	Status  int    // HTTP-equivalent status code
	Name    string // canonical error name, e.g. "query_parse_error"
	Message string // human-readable detail
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Canonical error names produced by the query planner, updater, and
// built-in reducers.
const (
	ErrQueryParse   = "query_parse_error"
	ErrNotFound     = "not_found"
	ErrInvalidValue = "invalid_value"
)

func newError(status int, name, format string, args ...any) *Error {
	return &Error{Status: status, Name: name, Message: fmt.Sprintf(format, args...)}
}

// QueryParseError reports a malformed or contradictory set of query
// options (e.g. an inverted startkey/endkey range, or reduce combined with
// include_docs).
func QueryParseError(format string, args ...any) *Error {
	return newError(400, ErrQueryParse, format, args...)
}

// NotFoundError reports a missing index, design document, or source
// document.
func NotFoundError(format string, args ...any) *Error {
	return newError(404, ErrNotFound, format, args...)
}

// InvalidValueError reports a value a built-in reducer cannot operate on,
// such as a non-numeric input to _sum or _stats.
func InvalidValueError(format string, args ...any) *Error {
	return newError(500, ErrInvalidValue, format, args...)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Name == ErrNotFound
}

// IsQueryParseError reports whether err is a QueryParseError.
func IsQueryParseError(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Name == ErrQueryParse
}

// IsInvalidValue reports whether err is an InvalidValueError.
func IsInvalidValue(err error) bool {
	e, ok := err.(*Error)
	return ok && e.Name == ErrInvalidValue
}


