// Package errors provides structured, actionable error messages for tether.
//
// The errors package implements an error system that:
//   - Explains what went wrong in plain language
//   - Suggests how to fix issues with code examples
//   - Links to documentation for deeper understanding
//
// # Error Categories
//
// Errors are organized into categories:
//   - runtime: Hook and session errors (hook outside render, handler panic)
//   - persistence: Durable state errors (backend unavailable, decode failure)
//   - config: tether.json errors (missing file, invalid values)
//   - cli: Command-line usage errors
//
// # Error Codes
//
// Each error has a unique code (e.g., "E001") that maps to:
//   - A short message describing the error
//   - A detailed explanation
//   - A documentation URL
//
// # Usage
//
//	err := errors.New("E001").
//	    WithSuggestion("Call UseState inside the component function, not in main()")
//
//	fmt.Println(err.Format())
//	// Output:
//	// ERROR E001: Hook called outside component render
//	//
//	//   Hooks like UseState, UseStore, and UseEffect only work inside a
//	//   component render driven by a scope.
//	//
//	//   Hint: Call UseState inside the component function, not in main()
//	//
//	//   Learn more: https://tether-go.dev/docs/errors/E001
package errors
