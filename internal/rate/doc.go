// Package rate provides Redis-backed fixed-window limiters for the session
// server.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - <prefix>:rr: for repair, per-session
//   - <prefix>:rf: for refresh, per-session
//
// # What this package must NOT do
//
//   - Decide what happens to a rate-limited request (the server maps the error).
//   - Be imported outside the sessionfetch module.
package rate
