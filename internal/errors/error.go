package errors

import "fmt"

// Category classifies an error by the subsystem that raised it.
type Category string

const (
	CategoryRuntime     Category = "runtime"
	CategoryPersistence Category = "persistence"
	CategoryConfig      Category = "config"
	CategoryCLI         Category = "cli"
)

// TetherError is a structured error with a registered code, a fix
// suggestion, and a documentation link.
type TetherError struct {
	// Code is a unique error identifier (e.g., "E001").
	Code string

	// Category is the subsystem the error belongs to.
	Category Category

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Example is code showing the correct approach.
	Example string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *TetherError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *TetherError) Unwrap() error {
	return e.Wrapped
}

// WithSuggestion adds a fix suggestion to the error.
func (e *TetherError) WithSuggestion(s string) *TetherError {
	e.Suggestion = s
	return e
}

// WithExample adds a code example to the error.
func (e *TetherError) WithExample(ex string) *TetherError {
	e.Example = ex
	return e
}

// WithDetail replaces the detailed explanation.
func (e *TetherError) WithDetail(d string) *TetherError {
	e.Detail = d
	return e
}

// Wrap attaches an underlying error.
func (e *TetherError) Wrap(err error) *TetherError {
	e.Wrapped = err
	return e
}

// New creates a TetherError from a registered error code.
func New(code string) *TetherError {
	template, ok := registry[code]
	if !ok {
		return &TetherError{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &TetherError{
		Code:     code,
		Category: template.Category,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a TetherError with a formatted message and no code.
func Newf(category Category, format string, args ...any) *TetherError {
	return &TetherError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in a TetherError.
func FromError(err error, code string) *TetherError {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TetherError); ok {
		return te
	}
	return New(code).Wrap(err)
}
