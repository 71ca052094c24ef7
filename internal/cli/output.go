package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/chronicle/internal/aggregate"
	"github.com/roach88/chronicle/internal/command"
	"github.com/roach88/chronicle/internal/eventlog"
	"github.com/roach88/chronicle/internal/gate"
	"github.com/roach88/chronicle/internal/projection"
	"github.com/roach88/chronicle/internal/rebuild"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Command rejected, rebuild failed, drift found, scenario failed
	ExitCommandError = 2 // Command error (bad flags, unreadable config, I/O failure)
	ExitConflict     = 3 // Version conflict persisted after every retry
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
	Reason  string // Stable machine-readable reason, e.g. NOT_FOUND
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

// classify maps an error from the core packages onto an ExitError.
// Errors that already carry an exit code keep it.
func classify(err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Reason == "" {
			exitErr.Reason = reasonFor(exitErr.Err, exitErr.Code)
		}
		return exitErr
	}

	code := ExitCommandError
	message := "command error"
	switch {
	case eventlog.IsVersionConflict(err):
		code, message = ExitConflict, "version conflict"
	case aggregate.IsDomainError(err):
		code, message = ExitFailure, "command rejected"
	case errors.Is(err, gate.ErrBusy), errors.Is(err, gate.ErrRebuilding):
		code, message = ExitFailure, "projection busy"
	case rebuild.IsFailure(err):
		code, message = ExitFailure, "rebuild failed; live projection untouched"
	case errors.Is(err, projection.ErrNotFound):
		code, message = ExitFailure, "not found"
	case errors.Is(err, eventlog.ErrInvalidAggregateID), errors.Is(err, command.ErrIDMismatch):
		code, message = ExitFailure, "invalid id"
	}
	return &ExitError{Code: code, Reason: reasonFor(err, code), Message: message, Err: err}
}

func reasonFor(err error, code int) string {
	switch {
	case err == nil:
	case eventlog.IsVersionConflict(err):
		return "VERSION_CONFLICT"
	case aggregate.IsDomainError(err):
		return string(aggregate.CodeOf(err))
	case errors.Is(err, gate.ErrBusy):
		return "BUSY"
	case errors.Is(err, gate.ErrRebuilding):
		return "REBUILDING"
	case rebuild.IsFailure(err):
		return "REBUILD_FAILED"
	case eventlog.IsStreamCorruption(err):
		return "STREAM_CORRUPT"
	case errors.Is(err, projection.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, projection.ErrUnknownKind):
		return "UNKNOWN_KIND"
	case errors.Is(err, eventlog.ErrInvalidAggregateID), errors.Is(err, command.ErrIDMismatch):
		return "INVALID"
	}
	if code == ExitCommandError {
		return "COMMAND_ERROR"
	}
	return "FAILED"
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
	Code    string `json:"code"`              // NOT_FOUND, VERSION_CONFLICT, ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format. In text
// mode data is printed with fmt, so result types implement String.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	_, err := fmt.Fprintln(f.Writer, data)
	return err
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

// Table renders rows under header in text mode. JSON callers use Success.
func (f *OutputFormatter) Table(header []string, rows [][]string) {
	table := tablewriter.NewWriter(f.Writer)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.AppendBulk(rows)
	table.Render()
}

// Warn writes a diagnostic line regardless of verbosity.
func (f *OutputFormatter) Warn(format string, args ...any) {
	fmt.Fprintf(f.GetErrWriter(), "warning: "+format+"\n", args...)
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
