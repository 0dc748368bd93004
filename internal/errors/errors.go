package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrTypeFileSystem ErrorType = "filesystem"
	ErrTypeTool       ErrorType = "tool"
	ErrTypeConfig     ErrorType = "config"
	ErrTypeValidation ErrorType = "validation"
	ErrTypeNotFound   ErrorType = "not_found"
	ErrTypeDatabase   ErrorType = "database"
	ErrTypeInternal   ErrorType = "internal"
)

// Error represents a structured error with type and optional suggestions
type Error struct {
	Type        ErrorType
	Message     string
	Cause       error
	Suggestions []string
	// Details carries captured tool output; it is not part of Error()
	Details string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithSuggestion adds a suggestion for resolving the error
func (e *Error) WithSuggestion(suggestion string) *Error {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithDetails attaches extra diagnostic text
func (e *Error) WithDetails(details string) *Error {
	e.Details = details
	return e
}

// New creates a new structured error
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new structured error with formatted message
func Newf(errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with formatted message
func Wrapf(err error, errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type == errType
	}

	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var structErr *Error
	if errors.As(err, &structErr) {
		return structErr.Type
	}

	return ErrTypeInternal
}

// NewConfigError creates a configuration error with suggestions
func NewConfigError(message, field string) *Error {
	err := New(ErrTypeConfig, message)
	if field != "" {
		err.Message = fmt.Sprintf("%s (field: %s)", message, field)
	}

	return err.
		WithSuggestion("Check your configuration file syntax").
		WithSuggestion("Run with --help to see valid configuration options")
}

// NewToolError describes a failed `dotnet ef` invocation. The captured output
// goes into Details and known failure patterns become suggestions.
func NewToolError(title, stdout, stderr, workDir string) *Error {
	err := New(ErrTypeTool, title).
		WithDetails(fmt.Sprintf("working directory: %s\n\nstdout:\n%s\n\nstderr:\n%s", workDir, stdout, stderr))

	for _, hint := range ToolHints(stdout, stderr, workDir) {
		err.WithSuggestion(hint)
	}

	return err
}

// ToolHints matches common `dotnet ef` failure messages
func ToolHints(stdout, stderr, workDir string) []string {
	combined := strings.ToLower(stdout + "\n" + stderr)

	var hints []string

	if strings.Contains(combined, "dotnet-ef") && strings.Contains(combined, "not") && strings.Contains(combined, "found") {
		hints = append(hints, "Install the EF tool with `dotnet tool install --global dotnet-ef` and keep it compatible with the project's EF Core version")
	}

	if strings.Contains(combined, "unable to create an object of type") || strings.Contains(combined, "no design-time services") {
		hints = append(hints, "The DbContext could not be created: add a parameterless constructor or implement IDesignTimeDbContextFactory<TContext>")
	}

	if strings.Contains(combined, "the target framework") && strings.Contains(combined, "is not specified") {
		hints = append(hints, "The project targets multiple frameworks: pass --framework with one of them")
	}

	if strings.Contains(combined, "could not find a part of the path") || strings.Contains(combined, "no project was found") {
		hints = append(hints, fmt.Sprintf("Check that %s is the project directory and that the project builds", workDir))
	}

	return hints
}
