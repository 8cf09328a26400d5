package requests

import (
	"fmt"
	"time"
)

// TransitionPolicy decides whether a request may move from one status to
// another. Returning a non-nil error aborts the transition; the error is
// wrapped in ErrTransitionRejected unless it already is.
type TransitionPolicy func(from, to Status) error

// PermitAll allows every transition, including re-opening fulfilled or
// denied requests and same-status writes.
func PermitAll(Status, Status) error { return nil }

// LockFinal rejects transitions out of denied or fulfilled. It is the
// stricter alternative for deployments that treat those states as final.
func LockFinal(from, to Status) error {
	if (from == StatusDenied || from == StatusFulfilled) && from != to {
		return fmt.Errorf("%w: %s is final", ErrTransitionRejected, from)
	}
	return nil
}

// Option customizes a Store.
type Option func(*Store)

// WithTransitionPolicy replaces the default PermitAll policy.
func WithTransitionPolicy(policy TransitionPolicy) Option {
	return func(s *Store) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}
