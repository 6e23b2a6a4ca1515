// Package session models user sessions on both sides of the wire.
//
// Client side, a [Source] hands out the current [Session] and refreshes it on
// demand. [Holder] is the in-memory Source used by the CLI and tests; it
// refreshes through a [Refresher] such as [TokenEndpoint].
//
// Server side, [Store] persists a compact binary [Record] per session in
// Redis and rotates refresh-token hashes atomically with a Lua CAS script.
//
// # What this package must NOT do
//
//   - Interpret access-token claims (see package token).
//   - Decide whether a token is usable for a request; that belongs to the client.
//   - Store plaintext refresh secrets in a [Record].
package session
