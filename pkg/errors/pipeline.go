// Package errors provides the error taxonomy for the action-extraction
// pipeline. Errors are classified so call sites can decide between retrying,
// downgrading to a conservative local decision, or skipping a record.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a classified pipeline error.
type ErrorCode string

const (
	ErrMalformedInput   ErrorCode = "malformed_input"
	ErrTimeout          ErrorCode = "timeout"
	ErrRateLimit        ErrorCode = "rate_limit"
	ErrTransport        ErrorCode = "transport"
	ErrContextCancelled ErrorCode = "context_cancelled"
	ErrParseError       ErrorCode = "parse_error"
	ErrEmptyCompletion  ErrorCode = "empty_completion"
	ErrResolutionFailed ErrorCode = "resolution_failed"
	ErrStorage          ErrorCode = "storage"
	ErrIndexUpload      ErrorCode = "index_upload"
	ErrProcessingError  ErrorCode = "processing_error"
)

// codeInfo describes retry semantics for an error code.
type codeInfo struct {
	Retryable   bool
	Description string
}

// codeRegistry maps error codes to their retry semantics.
var codeRegistry = map[ErrorCode]codeInfo{
	ErrMalformedInput:   {false, "record is missing required fields"},
	ErrTimeout:          {true, "external call exceeded its deadline"},
	ErrRateLimit:        {true, "external service throttled the call"},
	ErrTransport:        {true, "external service unreachable"},
	ErrContextCancelled: {false, "caller abandoned the run"},
	ErrParseError:       {false, "completion output was not valid JSON"},
	ErrEmptyCompletion:  {false, "completion service returned no content"},
	ErrResolutionFailed: {false, "deadline phrase could not be resolved"},
	ErrStorage:          {true, "actions table write failed"},
	ErrIndexUpload:      {true, "search index upload failed"},
	ErrProcessingError:  {false, "unclassified processing failure"},
}

// PipelineError is a structured error for pipeline failures.
type PipelineError struct {
	Code     ErrorCode
	Stage    string
	Message  string
	Duration time.Duration
	Cause    error
}

func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// New creates a PipelineError with the given code, stage and message.
func New(code ErrorCode, stage, message string) *PipelineError {
	return &PipelineError{Code: code, Stage: stage, Message: message}
}

// Wrap creates a PipelineError wrapping a cause.
func Wrap(code ErrorCode, stage string, cause error) *PipelineError {
	if cause == nil {
		return nil
	}
	return &PipelineError{Code: code, Stage: stage, Message: cause.Error(), Cause: cause}
}

// ClassifyError inspects an error and returns a *PipelineError with the
// appropriate code. If the error doesn't match any known pattern, it returns
// a PipelineError with ErrProcessingError.
func ClassifyError(err error, stage string) *PipelineError {
	if err == nil {
		return nil
	}

	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}

	pe = &PipelineError{
		Stage: stage,
		Cause: err,
	}

	if errors.Is(err, context.DeadlineExceeded) {
		pe.Code = ErrTimeout
		pe.Message = "operation timed out"
		return pe
	}

	if errors.Is(err, context.Canceled) {
		pe.Code = ErrContextCancelled
		pe.Message = "operation cancelled"
		return pe
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	pe.Message = msg

	switch {
	case strings.Contains(lower, "missing required field") || strings.Contains(lower, "malformed record"):
		pe.Code = ErrMalformedInput
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") ||
		strings.Contains(lower, "too many requests") || strings.Contains(lower, "quota"):
		pe.Code = ErrRateLimit
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "unavailable") ||
		strings.Contains(lower, "unexpected status"):
		pe.Code = ErrTransport
	case strings.Contains(lower, "invalid json") || strings.Contains(lower, "unexpected end of json") ||
		strings.Contains(lower, "no json object") || strings.Contains(lower, "cannot unmarshal"):
		pe.Code = ErrParseError
	case strings.Contains(lower, "empty completion") || strings.Contains(lower, "no choices"):
		pe.Code = ErrEmptyCompletion
	default:
		pe.Code = ErrProcessingError
	}

	return pe
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		if info, ok := codeRegistry[pe.Code]; ok {
			return info.Retryable
		}
	}
	return false
}

// CodeOf returns the ErrorCode of err, or ErrProcessingError for plain errors.
func CodeOf(err error) ErrorCode {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrProcessingError
}
