// Package internal holds helpers private to sessionfetch: session id and
// refresh-token generation and codec.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - config: service/CLI configuration loading (viper + validator)
//   - flows: token resolution and refresh rotation
//   - rate: Redis-backed refresh and repair throttle
//
// # What this package must NOT do
//
//   - Export types that appear in the public sessionfetch API.
package internal
