package service

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"familygallery/internal/models"
)

var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrRateLimited       = errors.New("rate limited")
	ErrDependencyFailure = errors.New("dependency failure")
	ErrNotFound          = errors.New("not found")
	ErrQuotaExceeded     = errors.New("quota exceeded")
)

// invalidArgument annotates ErrInvalidArgument with a caller-facing reason
func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// RateLimitError carries the retry-after hint of a rejected request
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// QuotaExceededError is returned by creates refused at the plan limit
type QuotaExceededError struct {
	Resource models.ResourceType
	Current  int
	Limit    int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded: %d/%d", e.Resource, e.Current, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// DependencyError wraps a failed store or downstream call. It matches
// ErrDependencyFailure and unwraps to the underlying error.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool {
	return target == ErrDependencyFailure
}

func dependency(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}

// StepError reports the deletion step that failed
type StepError struct {
	Step     string
	Critical bool
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("deletion step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool {
	return target == ErrDependencyFailure
}
