package repository

import "errors"

var (
	// ErrLimitReached is returned by the *WithinLimit creates when the
	// conditional insert matched no row because the owner is at its cap.
	ErrLimitReached = errors.New("resource limit reached")

	// ErrParentNotFound is returned when the owning family or account of a
	// new row does not exist.
	ErrParentNotFound = errors.New("parent record not found")
)

// NoLimit disables the count condition of the *WithinLimit creates
const NoLimit = -1
