package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Command ran and the result is good
	ExitFailure      = 1 // Instruction rejected, replay diverged, scenario failed
	ExitCommandError = 2 // Bad arguments, unreadable config, store unavailable
)

// Error codes carried in CLIError.Code.
const (
	CodeConfig     = "E_CONFIG"
	CodeStore      = "E_STORE"
	CodeRejected   = "E_REJECTED"
	CodeDiverged   = "E_DIVERGED"
	CodeMismatch   = "E_MISMATCH"
	CodeTestFailed = "E_TEST_FAILED"
)

// ExitError carries the process exit code alongside the error.
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

// NewExitError creates an ExitError with no underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError attaches an exit code to err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Nil is ExitSuccess; an error
// that is not an ExitError is ExitCommandError, since cobra reports flag and
// argument problems that way.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

// textRenderer is implemented by results with a multi-line text form.
type textRenderer interface {
	renderText(w io.Writer, verbose bool)
}

// OutputFormatter writes command results as text or JSON.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; defaults to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

// CLIError describes why a command did not succeed.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success writes data as a successful result.
func (f *OutputFormatter) Success(data any) error {
	return f.Result(data, nil)
}

// Result writes data, marked failed when failure is non-nil. Data is still
// written on failure so callers can see what was produced.
func (f *OutputFormatter) Result(data any, failure *CLIError) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: data, Error: failure}
		if failure != nil {
			resp.Status = "error"
		}
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if r, ok := data.(textRenderer); ok {
		r.renderText(f.Writer, f.Verbose)
	} else if data != nil {
		fmt.Fprintln(f.Writer, data)
	}
	if failure != nil {
		f.writeTextError(failure)
	}
	return nil
}

// Error writes an error with no result data.
func (f *OutputFormatter) Error(code, message string, details any) error {
	failure := &CLIError{Code: code, Message: message, Details: details}
	if f.Format == "json" {
		return f.Result(nil, failure)
	}
	f.writeTextError(failure)
	return nil
}

func (f *OutputFormatter) writeTextError(e *CLIError) {
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", e.Details)
	}
}

// VerboseLog writes a diagnostic line when verbose mode is on. It goes to
// ErrWriter so JSON output stays parseable.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter, or Writer when unset.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
