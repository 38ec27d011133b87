package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/flatdoc/internal/doc"
	"github.com/roach88/flatdoc/internal/entry"
	"github.com/roach88/flatdoc/internal/flatten"
	"github.com/roach88/flatdoc/internal/query"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Operation refused (document not found, conflict)
	ExitCommandError = 2 // Command error (invalid input, config, database errors)
)

// Error codes carried in CLIError.Code.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeInvalidInput = "E002" // Malformed document, query or flag
	ErrCodeNotFound     = "E003" // Document not found
	ErrCodeConflict     = "E004" // Create of an existing id or rejected update
	ErrCodeStorage      = "E005" // Database error
	ErrCodeConfig       = "E006" // Config file error
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Documents outputs documents in their canonical serialized form: one
// per line as text, or as a JSON array under data.
func (f *OutputFormatter) Documents(docs ...doc.Document) error {
	raws := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		b, err := doc.Marshal(d)
		if err != nil {
			return err
		}
		raws[i] = b
	}

	if f.Format == "json" {
		return f.Success(raws)
	}
	for _, raw := range raws {
		fmt.Fprintln(f.Writer, string(raw))
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// classify maps an error to its CLI error code and exit code.
func classify(err error) (string, int) {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return ErrCodeGeneric, exitErr.Code
	case errors.Is(err, entry.ErrNotFound):
		return ErrCodeNotFound, ExitFailure
	case errors.Is(err, entry.ErrConflict):
		return ErrCodeConflict, ExitFailure
	case errors.Is(err, errInvalidInput),
		errors.Is(err, entry.ErrMissingID),
		errors.Is(err, entry.ErrInvalidID),
		errors.Is(err, entry.ErrInvalidTimestamp),
		errors.Is(err, flatten.ErrReservedToken),
		errors.Is(err, doc.ErrUnsupportedValue),
		errors.Is(err, query.ErrBadOperator):
		return ErrCodeInvalidInput, ExitCommandError
	case errors.Is(err, errConfig):
		return ErrCodeConfig, ExitCommandError
	default:
		return ErrCodeStorage, ExitCommandError
	}
}

// fail reports err through the formatter and returns it as an ExitError.
func fail(formatter *OutputFormatter, err error) error {
	code, exit := classify(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(exit, code, err)
}

// Sentinels for errors raised by the CLI itself.
var (
	errInvalidInput = errors.New("invalid input")
	errConfig       = errors.New("config")
)
