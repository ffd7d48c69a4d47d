package common

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can tell retry-worthy errors from terminal ones.
type Kind string

const (
	KindConfig     Kind = "CONFIG_ERROR"
	KindTransport  Kind = "TRANSPORT_ERROR"
	KindOverload   Kind = "OVERLOAD_ERROR"
	KindFormat     Kind = "FORMAT_ERROR"
	KindFilesystem Kind = "FILESYSTEM_ERROR"
	KindSubprocess Kind = "SUBPROCESS_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrMissingAPIKey = errors.New("api key is required")
	ErrProcessFailed = errors.New("failed to call utility")
)

// Error constructors
func NewAppError(kind Kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

func ConfigError(message string, cause error) error {
	return NewAppError(KindConfig, message, cause)
}

func TransportError(message string, cause error) error {
	return NewAppError(KindTransport, message, cause)
}

func OverloadError(message string, cause error) error {
	return NewAppError(KindOverload, message, cause)
}

func FormatError(message string, cause error) error {
	return NewAppError(KindFormat, message, cause)
}

func FilesystemError(message string, cause error) error {
	return NewAppError(KindFilesystem, message, cause)
}

func SubprocessError(message string, cause error) error {
	return NewAppError(KindSubprocess, message, cause)
}

// KindOf returns the kind of the outermost AppError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
