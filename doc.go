// Package sessionfetch sends HTTP requests with a bearer token that is known
// to be well-formed and small enough to fit in a request header.
//
// A [Client] reads the access token from a [session.Source]. When the stored
// token is malformed or oversized the client refreshes the session; when the
// refreshed token is still too large it asks the backend repair endpoint to
// drop embedded workspace claims and refreshes one final time. The chain is
// bounded: at most two refreshes and one repair per call, never a loop.
//
// # Layout
//
//   - token: shape and size checks, claim inspection, signing.
//   - session: client-side sources (Holder, TokenEndpoint, YAML file) and the
//     Redis record store used by the server.
//   - membership: workspace memberships embedded in full tokens.
//   - server: token and repair endpoints.
//   - middleware: bearer guard for protected handlers.
//   - metrics/export: Prometheus and OpenTelemetry views of [Metrics].
//
// Token contents are never logged.
package sessionfetch
