package middleware

import "net/http"

// RequireSession is [Guard] plus a session store lookup, so revoked sessions
// are rejected before their access tokens expire.
func RequireSession(v Verifier, sessions SessionChecker) func(http.Handler) http.Handler {
	return guard(v, sessions)
}
