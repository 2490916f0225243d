package canopyerr

import "fmt"

// Error is Canopy's structured error type: a closed Code, a human-readable
// Message, and an optional Hint suggesting corrective action. It serializes
// directly as the service API's {code, message, hint} envelope.
type Error struct {
	Code    Code
	Message string
	Hint    string

	// Details carries additional machine-readable context, e.g. the
	// offending repo or handle ID.
	Details map[string]string

	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two canopyerr.Error values by code, so errors.Is(err,
// &Error{Code: CodeStaleGeneration}) works without comparing messages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetail attaches a key-value detail and returns the error for chaining.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithHint sets the hint and returns the error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an Error from an existing cause, preserving its message.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: err.Error(), Cause: err}
}

// CategoryOf returns the failure-isolation category for an error, or
// CategoryUnknown if err is not a *Error.
func CategoryOf(err error) Category {
	if ce, ok := err.(*Error); ok {
		return categoryOf(ce.Code)
	}
	return CategoryUnknown
}

// IsRetryable reports whether err is a canopyerr.Error whose code represents
// a transient infrastructure condition worth retrying unchanged.
func IsRetryable(err error) bool {
	ce, ok := err.(*Error)
	if !ok {
		return false
	}
	return isRetryable(ce.Code)
}

// GetCode extracts the Code from err, or "" if err is not a *Error.
func GetCode(err error) Code {
	if ce, ok := err.(*Error); ok {
		return ce.Code
	}
	return ""
}

// RepoNotFound builds the repo_not_found error for the given repo
// identifier.
func RepoNotFound(repo string) *Error {
	return New(CodeRepoNotFound, fmt.Sprintf("repo not found: %s", repo)).
		WithDetail("repo", repo).
		WithHint("register the repo with POST /repos/add before querying it")
}

// HandleNotFound builds the handle_not_found error for a single handle ID.
func HandleNotFound(handleID string) *Error {
	return New(CodeHandleNotFound, fmt.Sprintf("handle not found: %s", handleID)).
		WithDetail("handle_id", handleID)
}

// StaleGeneration builds the stale_generation error for an expand request
// whose generation no longer matches the shard's current generation.
func StaleGeneration(repo string, requested, current uint64) *Error {
	return New(CodeStaleGeneration, fmt.Sprintf("requested generation %d, current is %d", requested, current)).
		WithDetail("repo", repo).
		WithHint("re-query to obtain handles at the current generation")
}

// StaleIndex builds the stale_index error returned when a handle's content
// hash no longer matches the file on disk.
func StaleIndex(path string) *Error {
	return New(CodeStaleIndex, fmt.Sprintf("content changed since indexing: %s", path)).
		WithDetail("path", path).
		WithHint("reindex to refresh handles for this file")
}

// SchemaVersionMismatch builds the schema_version_mismatch error returned
// when a store's on-disk schema version doesn't match the running binary's.
func SchemaVersionMismatch(stored, current int) *Error {
	return New(CodeSchemaVersionMismatch, fmt.Sprintf("stored schema version %d, expected %d", stored, current)).
		WithHint("this index was built by an incompatible version; delete and reindex")
}

// InvalidRepo builds the invalid_repo error for a root that fails the
// registration precondition (not a git repository, unreadable, etc.).
func InvalidRepo(path, reason string) *Error {
	return New(CodeInvalidRepo, reason).WithDetail("path", path)
}
