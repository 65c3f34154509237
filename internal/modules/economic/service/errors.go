package service

import "github.com/pkg/errors"

var (
	// ErrFeedUnavailable covers a missing, empty or malformed calendar snapshot.
	// The tick is skipped and retried on the next interval.
	ErrFeedUnavailable = errors.New("economic feed unavailable")

	// ErrCallbackFailure wraps an error or panic raised by a single observer callback.
	ErrCallbackFailure = errors.New("observer callback failed")

	ErrInvalidObserver = errors.New("invalid observer")
)
