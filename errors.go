// errors.go defines the error taxonomy shared by the pipeline and its
// collaborators, plus the mapping from errors to the short messages shown on
// failed tasks and toasts.
package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrorKind classifies which stage of the pipeline produced an error.
type ErrorKind string

const (
	KindExtraction ErrorKind = "EXTRACTION"
	KindGeneration ErrorKind = "GENERATION"
	KindFileSystem ErrorKind = "FILESYSTEM"
	KindHistory    ErrorKind = "HISTORY"
	KindValidation ErrorKind = "VALIDATION"
)

// ErrorReason narrows an ErrorKind down to a specific failure.
type ErrorReason string

const (
	// Generation
	ReasonNetwork       ErrorReason = "network"
	ReasonAuth          ErrorReason = "auth"
	ReasonQuota         ErrorReason = "quota"
	ReasonModelNotFound ErrorReason = "model_not_found"
	ReasonEmptyResult   ErrorReason = "empty_result"
	ReasonTimeout       ErrorReason = "timeout"
	ReasonServer        ErrorReason = "server"

	// Extraction
	ReasonUnreadable  ErrorReason = "unreadable"
	ReasonUnsupported ErrorReason = "unsupported"

	// File system
	ReasonDestinationExists ErrorReason = "destination_exists"
	ReasonSourceMissing     ErrorReason = "source_missing"
	ReasonPermission        ErrorReason = "permission_denied"
	ReasonIO                ErrorReason = "io"

	// History
	ReasonEntryNotFound ErrorReason = "entry_not_found"
	ReasonStorage       ErrorReason = "storage"

	// Validation
	ReasonTaskNotFound      ErrorReason = "task_not_found"
	ReasonInvalidTransition ErrorReason = "invalid_transition"
	ReasonNotReady          ErrorReason = "not_ready"
	ReasonInvalidInput      ErrorReason = "invalid_input"
)

var (
	// ErrTaskNotFound is returned when an operation names a task that is not
	// (or no longer) in the store.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned when a status change is not in the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PipelineError is the single error type used across the pipeline.
type PipelineError struct {
	Kind    ErrorKind
	Reason  ErrorReason
	Message string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	prefix := string(e.Kind)
	if e.Reason != "" {
		prefix += "/" + string(e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", prefix, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError creates a PipelineError.
func NewPipelineError(kind ErrorKind, reason ErrorReason, message string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Reason: reason, Message: message, Err: err}
}

func ExtractionError(reason ErrorReason, message string, err error) *PipelineError {
	return NewPipelineError(KindExtraction, reason, message, err)
}

func GenerationError(reason ErrorReason, message string, err error) *PipelineError {
	return NewPipelineError(KindGeneration, reason, message, err)
}

func FileSystemError(reason ErrorReason, message string, err error) *PipelineError {
	return NewPipelineError(KindFileSystem, reason, message, err)
}

func HistoryError(reason ErrorReason, message string, err error) *PipelineError {
	return NewPipelineError(KindHistory, reason, message, err)
}

func ValidationError(reason ErrorReason, message string, err error) *PipelineError {
	return NewPipelineError(KindValidation, reason, message, err)
}

// taskNotFound and invalidTransition wrap the sentinels so callers can match
// either on the sentinel or on KindValidation.
func taskNotFound(id string) *PipelineError {
	return ValidationError(ReasonTaskNotFound, "task "+id, ErrTaskNotFound)
}

func invalidTransition(id string, from, to Status) *PipelineError {
	return ValidationError(ReasonInvalidTransition,
		fmt.Sprintf("task %s: %s -> %s", id, from, to), ErrInvalidTransition)
}

// KindOf returns the kind of the first PipelineError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first PipelineError in err's chain, or "".
func ReasonOf(err error) ErrorReason {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}

var reasonMessages = map[ErrorReason]string{
	ReasonNetwork:           "Cannot reach the naming service. Is it running?",
	ReasonAuth:              "The naming service rejected the API key",
	ReasonQuota:             "Too many requests, try again later",
	ReasonModelNotFound:     "Model not found, pull or configure it first",
	ReasonEmptyResult:       "The model returned an empty file name",
	ReasonTimeout:           "The naming service timed out",
	ReasonServer:            "The naming service returned a server error",
	ReasonUnreadable:        "Could not read text from the file",
	ReasonUnsupported:       "Unsupported file type",
	ReasonDestinationExists: "A file with that name already exists",
	ReasonSourceMissing:     "The source file no longer exists",
	ReasonPermission:        "Permission denied",
	ReasonEntryNotFound:     "History entry not found",
}

// messagePatterns classify errors that did not come through a
// PipelineError, in priority order.
var messagePatterns = []struct {
	re     *regexp.Regexp
	reason ErrorReason
}{
	{regexp.MustCompile(`(?i)connection refused|no such host|dial tcp`), ReasonNetwork},
	{regexp.MustCompile(`(?i)timeout|deadline exceeded`), ReasonTimeout},
	{regexp.MustCompile(`(?i)\b401\b|unauthorized|invalid api key`), ReasonAuth},
	{regexp.MustCompile(`(?i)\b429\b|too many requests`), ReasonQuota},
	{regexp.MustCompile(`(?i)model .*not found`), ReasonModelNotFound},
	{regexp.MustCompile(`(?i)\b5\d\d\b|internal server error`), ReasonServer},
	{regexp.MustCompile(`(?i)already exists`), ReasonDestinationExists},
	{regexp.MustCompile(`(?i)no such file|not found`), ReasonSourceMissing},
	{regexp.MustCompile(`(?i)permission denied`), ReasonPermission},
}

// FriendlyMessage renders err as a short human-readable message suitable for
// Task.Error and toasts. Unknown errors fall back to their own text.
func FriendlyMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return reasonMessages[ReasonTimeout]
	}
	var pe *PipelineError
	if errors.As(err, &pe) {
		if msg, ok := reasonMessages[pe.Reason]; ok {
			return msg
		}
		if pe.Err != nil {
			return pe.Message + ": " + pe.Err.Error()
		}
		return pe.Message
	}
	text := err.Error()
	if r := reasonFromMessage(text); r != "" {
		return reasonMessages[r]
	}
	return text
}

// reasonFromMessage classifies foreign error text, or returns "".
func reasonFromMessage(text string) ErrorReason {
	for _, p := range messagePatterns {
		if p.re.MatchString(text) {
			return p.reason
		}
	}
	return ""
}
