// Package middleware exposes HTTP guards for handlers that require a bearer
// access token.
//
// # Guards
//
//   - [Guard]: stateless signature and expiry verification.
//   - [RequireSession]: Guard plus a session store liveness check.
//
// Both reject malformed bearer values with 401 and tokens above the header
// budget with 431, then inject verified claims into the request context.
//
// This package does not sign tokens or decide roles; it only translates
// HTTP into a Verifier call.
package middleware
