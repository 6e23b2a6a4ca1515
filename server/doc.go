// Package server implements the backend half of session repair: a token
// endpoint that rotates refresh tokens, a repair endpoint that marks a
// session compact, and a small guarded API.
//
// Full access tokens embed every workspace membership. Once a session is
// marked compact, refreshes mint tokens that carry only the membership
// version, and handlers look memberships up instead.
package server
