package domain

import "errors"

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")

	ErrStorage            = errors.New("storage error")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrRetriesExhausted   = errors.New("job retries exhausted")
	ErrUnknownJobType     = errors.New(MsgUnknownJobType)
	ErrOpenAIKeyNotFound  = errors.New(MsgOpenAIKeyNotFound)
	ErrGitHubNotConnected = errors.New(MsgGitHubNotConnected)
)

// Messages stored on failed jobs and shown to the user as-is.
const (
	MsgOpenAIKeyNotFound  = "OpenAI API key not found"
	MsgGitHubNotConnected = "GitHub not connected"
	MsgUnknownJobType     = "Unknown job type"
	MsgUnknownError       = "Unknown error"
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// UnrecoverableError marks a failure that retrying cannot fix.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return e.Err.Error()
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// Unrecoverable wraps err so job processing fails it without retry.
func Unrecoverable(err error) error {
	return &UnrecoverableError{Err: err}
}

// IsUnrecoverable reports whether err, or anything it wraps, is unrecoverable.
func IsUnrecoverable(err error) bool {
	var u *UnrecoverableError
	return errors.As(err, &u)
}
