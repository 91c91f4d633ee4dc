// Package ai provides the error taxonomy and retry configuration shared by
// the speech, language-model, and synthesis providers. Stage code classifies
// provider failures with IsRecoverable and IsFatal: recoverable failures stay
// stage-local and may be retried, fatal failures escalate to pipeline-wide
// cancellation.
package ai

import (
	"errors"
	"time"
)

var (
	// ErrRecoverable marks a temporary provider failure that may succeed if
	// retried: network timeout, rate limiting, transient service error.
	ErrRecoverable = errors.New("recoverable provider error")

	// ErrFatal marks a permanent provider failure that will not succeed if
	// retried: invalid credentials, unsupported audio format, malformed
	// request.
	ErrFatal = errors.New("fatal provider error")
)

// RetryConfig configures backoff for recoverable provider errors.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterPercent float32 // 0.0-1.0
}

// DefaultRetryConfig is tuned for conversational latency: a stage that
// cannot recover within a couple of attempts should report the failure
// rather than stall the turn.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  100 * time.Millisecond,
	MaxDelay:      2 * time.Second,
	BackoffFactor: 2.0,
	JitterPercent: 0.1,
}

// IsRecoverable reports whether err should be retried.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrRecoverable)
}

// IsFatal reports whether err is permanent and must escalate.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// ClassifiedError wraps a provider error with its retry classification so
// errors.Is resolves to ErrRecoverable or ErrFatal.
type ClassifiedError struct {
	Underlying error
	Retryable  bool
	Message    string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Underlying.Error()
}

func (e *ClassifiedError) Unwrap() error {
	if e.Retryable {
		return ErrRecoverable
	}
	return ErrFatal
}

// Recoverable wraps err as a recoverable provider error.
func Recoverable(err error) error {
	return &ClassifiedError{Underlying: err, Retryable: true}
}

// Fatal wraps err as a fatal provider error.
func Fatal(err error) error {
	return &ClassifiedError{Underlying: err, Retryable: false}
}
