package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // successful execution
	ExitFailure      = 1 // operation ran but failed (device applies failed, validation errors)
	ExitCommandError = 2 // command could not run (bad paths, unreadable config, missing database)
)

// ExitError carries a specific process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the envelope for JSON output.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError is the error half of a CLIResponse.
type CLIError struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// JSON emits data inside the standard envelope. Returns false when the
// configured format is not JSON, so callers can fall through to text.
func (f *OutputFormatter) JSON(data interface{}) (bool, error) {
	if f.Format != "json" {
		return false, nil
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return true, enc.Encode(CLIResponse{Status: "ok", Data: data})
}

// ErrorJSON emits an error envelope when the format is JSON.
func (f *OutputFormatter) ErrorJSON(message string, details interface{}) (bool, error) {
	if f.Format != "json" {
		return false, nil
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return true, enc.Encode(CLIResponse{
		Status: "error",
		Error:  &CLIError{Message: message, Details: details},
	})
}

// Textf writes formatted text output.
func (f *OutputFormatter) Textf(format string, args ...interface{}) {
	fmt.Fprintf(f.Writer, format+"\n", args...)
}
