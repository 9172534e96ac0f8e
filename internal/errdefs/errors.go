// Package errdefs defines the error taxonomy shared by the completion
// pipeline. Callers classify failures with the Is* helpers rather than
// matching on error strings.
package errdefs

import (
	"errors"
	"fmt"
)

// ProviderError wraps an upstream LLM failure. Retryable in the async path.
type ProviderError struct {
	Cause error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error: %v", e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// TimeoutError marks a provider call that exceeded its deadline. It is
// treated identically to ProviderError for retry and propagation.
type TimeoutError struct {
	Op string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out", e.Op)
}

// ValidationError marks a malformed request. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NotFoundError covers both a genuinely missing resource and one owned by a
// different user, so callers cannot distinguish the two cases.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// JobExhaustedError marks an async job that failed all its attempts.
type JobExhaustedError struct {
	JobID    string
	Attempts int
	Cause    error
}

func (e *JobExhaustedError) Error() string {
	return fmt.Sprintf("job %s exhausted after %d attempts: %v", e.JobID, e.Attempts, e.Cause)
}

func (e *JobExhaustedError) Unwrap() error {
	return e.Cause
}

// Provider wraps err as a ProviderError unless it already is one.
func Provider(err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Cause: err}
}

// Timeout builds a TimeoutError for the named operation.
func Timeout(op string) error {
	return &TimeoutError{Op: op}
}

// Validationf builds a ValidationError.
func Validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFoundError for the named resource.
func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

func IsJobExhausted(err error) bool {
	var je *JobExhaustedError
	return errors.As(err, &je)
}

// Retryable reports whether the async path may retry after err. Only
// provider failures and timeouts qualify.
func Retryable(err error) bool {
	return IsProvider(err) || IsTimeout(err)
}
