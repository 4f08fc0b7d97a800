// Copyright 2026 b2bgate
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package errors provides the structured error taxonomy used throughout the
// ingestion pipeline, plus the CLI-facing presentation (colored terminal
// output, JSON output, exit codes) used by cmd/xmlgate.
//
// Every error the pipeline raises carries a Kind from the fixed taxonomy
// (ParseError, ValidationError, ConfigurationError, TransformError,
// PersistenceError, CircuitOpen, Timeout, Interrupted). Pipeline code
// should construct these with New, never with bare fmt.Errorf, so that
// ProcessedFile.ErrorMessage can be composed uniformly as "{kind}: {detail}".
package errors

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Exit codes for different error categories, used only by the CLI entrypoint.
const (
	ExitSuccess    = 0
	ExitConfig     = 1
	ExitDatabase   = 2
	ExitNetwork    = 3
	ExitInput      = 4
	ExitPermission = 5
	ExitNotFound   = 6
	ExitInternal   = 10
)

// Kind is one taxonomy member from the error handling design.
type Kind string

const (
	KindParse         Kind = "ParseError"
	KindValidation    Kind = "ValidationError"
	KindConfiguration Kind = "ConfigurationError"
	KindTransform     Kind = "TransformError"
	KindPersistence   Kind = "PersistenceError"
	KindCircuitOpen   Kind = "CircuitOpen"
	KindTimeout       Kind = "Timeout"
	KindInterrupted   Kind = "Interrupted"
)

// UserError represents an error with structured context, for both
// operator-facing CLI output and the ProcessedFile error message composed
// by the pipeline orchestrator.
type UserError struct {
	// Kind is the taxonomy member this error belongs to. Empty for errors
	// that never reach ProcessedFile (pure CLI/config errors).
	Kind Kind

	// Message describes what went wrong in user-friendly language.
	Message string

	// Cause explains why the error occurred (diagnostic information).
	Cause string

	// Fix provides an actionable suggestion on how to resolve the error.
	Fix string

	// ExitCode is the exit code used when this error reaches the CLI.
	ExitCode int

	// Err is the underlying error that caused this one.
	Err error
}

// Error implements the error interface. When Kind is set, the result is
// exactly the "{kind}: {detail}" form the ProcessedFile ledger expects;
// otherwise it falls back to the plain CLI message.
func (e *UserError) Error() string {
	detail := e.Message
	if e.Err != nil {
		detail = fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Kind, detail)
	}
	return detail
}

// Unwrap enables compatibility with errors.Is/errors.As.
func (e *UserError) Unwrap() error {
	return e.Err
}

// New creates an error of a given taxonomy Kind. fix may be empty for
// errors that never surface to an operator.
func New(kind Kind, msg, cause, fix string, err error) *UserError {
	return &UserError{Kind: kind, Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInternal, Err: err}
}

func NewParseError(msg string, err error) *UserError {
	return New(KindParse, msg, "", "", err)
}

func NewValidationError(msg, fieldPath string) *UserError {
	return New(KindValidation, msg, fieldPath, "", nil)
}

func NewConfigurationError(msg, cause string) *UserError {
	return New(KindConfiguration, msg, cause, "", nil)
}

func NewTransformError(msg string, err error) *UserError {
	return New(KindTransform, msg, "", "", err)
}

func NewPersistenceError(msg string, err error) *UserError {
	return New(KindPersistence, msg, "", "", err)
}

func NewCircuitOpenError(dependency string) *UserError {
	return New(KindCircuitOpen, fmt.Sprintf("circuit breaker %q is open", dependency), "", "", nil)
}

func NewTimeoutError(msg string) *UserError {
	return New(KindTimeout, msg, "", "", nil)
}

func NewInterruptedError(msg string) *UserError {
	return New(KindInterrupted, msg, "", "", nil)
}

// NewConfigError creates a CLI configuration error with exit code ExitConfig.
func NewConfigError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitConfig, Err: err}
}

// NewDatabaseError creates a CLI database error with exit code ExitDatabase.
func NewDatabaseError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitDatabase, Err: err}
}

// NewNetworkError creates a CLI network error with exit code ExitNetwork.
func NewNetworkError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitNetwork, Err: err}
}

// NewInputError creates a CLI input error with exit code ExitInput.
func NewInputError(msg, cause, fix string) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInput}
}

// NewInternalError creates a CLI internal error with exit code ExitInternal.
func NewInternalError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitInternal, Err: err}
}

// NewPermissionError creates a CLI permission error with exit code ExitPermission.
func NewPermissionError(msg, cause, fix string, err error) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitPermission, Err: err}
}

// NewNotFoundError creates a CLI not-found error with exit code ExitNotFound.
func NewNotFoundError(msg, cause, fix string) *UserError {
	return &UserError{Message: msg, Cause: cause, Fix: fix, ExitCode: ExitNotFound}
}

// Color definitions for error formatting.
var (
	colorError = color.New(color.FgRed, color.Bold)
	colorCause = color.New(color.FgYellow)
	colorFix   = color.New(color.FgGreen)
)

// Format returns a formatted error message for terminal display, honoring
// NO_COLOR and the noColor parameter.
func (e *UserError) Format(noColor bool) string {
	originalNoColor := color.NoColor
	defer func() { color.NoColor = originalNoColor }()

	if noColor || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	var out strings.Builder
	out.WriteString(colorError.Sprint("Error: "))
	out.WriteString(e.Message)
	out.WriteString("\n")

	if e.Cause != "" {
		out.WriteString(colorCause.Sprint("Cause: "))
		out.WriteString(e.Cause)
		out.WriteString("\n")
	}

	if e.Fix != "" {
		out.WriteString(colorFix.Sprint("Fix:   "))
		out.WriteString(e.Fix)
		out.WriteString("\n")
	}

	return out.String()
}

// ErrorJSON is the machine-readable form of a UserError.
type ErrorJSON struct {
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error"`
	Cause    string `json:"cause,omitempty"`
	Fix      string `json:"fix,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// ToJSON converts the UserError to a JSON-serializable structure.
func (e *UserError) ToJSON() ErrorJSON {
	return ErrorJSON{
		Kind:     string(e.Kind),
		Error:    e.Message,
		Cause:    e.Cause,
		Fix:      e.Fix,
		ExitCode: e.ExitCode,
	}
}

// FatalError prints the error and exits with the appropriate code. Never
// returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	if ue, ok := err.(*UserError); ok {
		if jsonOutput {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(ue.ToJSON())
		} else {
			fmt.Fprint(os.Stderr, ue.Format(false))
		}
		os.Exit(ue.ExitCode)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(ExitInternal)
}
