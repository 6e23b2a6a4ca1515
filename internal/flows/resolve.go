package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/sessionfetch/token"
)

// State is a node of the token resolution state machine.
type State int

const (
	StateUnvalidated State = iota
	StateRefreshPending
	StateRepairPending
	StateValid
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnvalidated:
		return "unvalidated"
	case StateRefreshPending:
		return "refresh_pending"
	case StateRepairPending:
		return "repair_pending"
	case StateValid:
		return "valid"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ResolveFailureKind classifies resolution failures for root-level mapping.
type ResolveFailureKind int

const (
	ResolveFailureNone ResolveFailureKind = iota
	ResolveFailureMissingSession
	ResolveFailureMalformed
	ResolveFailureOversized
	ResolveFailureRefresh
	ResolveFailureRepair
)

// ErrEmptyAccessToken is reported when the source returns a session without
// an access token.
var ErrEmptyAccessToken = errors.New("session has no access token")

// ResolveDeps captures resolution dependencies.
type ResolveDeps struct {
	// ReadToken returns the current access token. An error or empty token
	// means there is no session.
	ReadToken func(context.Context) (string, error)
	// RefreshToken refreshes the session and returns the new access token.
	RefreshToken func(context.Context) (string, error)
	// Repair asks the backend to shrink session state for an oversized token.
	Repair   func(context.Context, string) error
	MaxBytes int
	// Enter is called on every state transition, including the terminal one.
	Enter func(State)
}

// ResolveResult carries the token or the failure metadata.
type ResolveResult struct {
	Token     string
	State     State
	Stage     State
	Failure   ResolveFailureKind
	Err       error
	FastPath  bool
	Refreshes int
	Repairs   int
}

// RunResolve walks the bounded chain read → refresh → repair → refresh.
//
// A forced refresh happens before the read and stands in for the escalation
// refresh, so no call makes more than two refreshes or more than one repair.
func RunResolve(ctx context.Context, forceRefresh bool, deps ResolveDeps) ResolveResult {
	res := ResolveResult{State: StateUnvalidated}
	enter := func(s State) {
		res.State = s
		if deps.Enter != nil {
			deps.Enter(s)
		}
	}
	fail := func(stage State, kind ResolveFailureKind, err error) ResolveResult {
		res.Stage = stage
		res.Failure = kind
		res.Err = err
		res.Token = ""
		enter(StateFailed)
		return res
	}
	refresh := func() (string, error) {
		res.Refreshes++
		return deps.RefreshToken(ctx)
	}

	refreshed := false
	if forceRefresh {
		enter(StateRefreshPending)
		if _, err := refresh(); err != nil {
			return fail(StateRefreshPending, ResolveFailureRefresh, err)
		}
		refreshed = true
	}

	tok, err := deps.ReadToken(ctx)
	if err == nil && tok == "" {
		err = ErrEmptyAccessToken
	}
	if err != nil {
		return fail(res.State, ResolveFailureMissingSession, err)
	}

	if token.Check(tok, deps.MaxBytes) == nil {
		res.Token = tok
		res.FastPath = !refreshed
		enter(StateValid)
		return res
	}

	if !refreshed {
		enter(StateRefreshPending)
		tok, err = refresh()
		if err != nil {
			return fail(StateRefreshPending, ResolveFailureRefresh, err)
		}
	}

	if !token.WellFormed(tok) {
		return fail(StateRefreshPending, ResolveFailureMalformed, token.Check(tok, 0))
	}
	if token.Fits(tok, deps.MaxBytes) {
		res.Token = tok
		enter(StateValid)
		return res
	}

	enter(StateRepairPending)
	res.Repairs++
	if err := deps.Repair(ctx, tok); err != nil {
		return fail(StateRepairPending, ResolveFailureRepair, err)
	}

	tok, err = refresh()
	if err != nil {
		return fail(StateRepairPending, ResolveFailureRefresh, err)
	}
	if err := token.Check(tok, deps.MaxBytes); err != nil {
		kind := ResolveFailureMalformed
		if errors.Is(err, token.ErrOversized) {
			kind = ResolveFailureOversized
		}
		return fail(StateRepairPending, kind, err)
	}

	res.Token = tok
	enter(StateValid)
	return res
}
