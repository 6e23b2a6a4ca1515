// Package token validates bearer-token shape and size, decodes claims for
// diagnostics, and issues/verifies signed access tokens for the session server.
//
// # Shape rules
//
// A usable bearer token is non-empty after trimming, has exactly three
// '.'-delimited segments, contains no CR or LF bytes, and fits within the
// configured header budget (see [DefaultMaxBytes]).
//
// # What this package must NOT do
//
//   - Perform network I/O or talk to a session source.
//   - Log or return token contents inside error messages.
package token
