package sessionfetch

import (
	"errors"
	"fmt"
)

var (
	// ErrNoUsableToken matches every failure returned by [Client.ResolveAccessToken].
	ErrNoUsableToken = errors.New("no usable access token")
	// ErrMissingSession reports that the session source has no signed-in user.
	ErrMissingSession = errors.New("missing session")
	// ErrMalformedToken reports a token that is not a three-segment bearer value.
	ErrMalformedToken = errors.New("malformed access token")
	// ErrOversizedToken reports a token still above the header limit after repair.
	ErrOversizedToken = errors.New("access token exceeds header size limit")
	// ErrRefreshFailed reports that the session source could not refresh.
	ErrRefreshFailed = errors.New("session refresh failed")
	// ErrRepairFailed reports a non-success response from the repair endpoint.
	ErrRepairFailed = errors.New("session repair failed")
	// ErrUnauthenticated is returned by [Client.Fetch] when no token could be
	// resolved and the missing-token policy is [MissingTokenFail].
	ErrUnauthenticated = errors.New("unauthenticated")

	ErrInvalidConfig    = errors.New("invalid config")
	ErrBuilderUsed      = errors.New("builder already used")
	ErrSourceRequired   = errors.New("session source required")
	ErrNilRequest       = errors.New("request required")
	ErrRepairNotEnabled = errors.New("repair endpoint not configured")
)

// ResolveError describes why no usable token could be produced.
//
// It matches [ErrNoUsableToken], its Kind sentinel and the underlying cause
// through errors.Is.
type ResolveError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %v (stage %s)", ErrNoUsableToken, e.Kind, e.Stage)
	}
	return fmt.Sprintf("%v: %v (stage %s): %v", ErrNoUsableToken, e.Kind, e.Stage, e.Err)
}

func (e *ResolveError) Unwrap() []error {
	errs := []error{ErrNoUsableToken, e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
