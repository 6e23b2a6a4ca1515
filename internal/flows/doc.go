// Package flows contains the pure-function orchestrator behind token
// resolution.
//
// RunResolve accepts a typed dependency struct and returns a result value
// without side effects beyond those dependencies, so every branch of the
// state machine can be driven by plain function fakes in tests.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import sessionfetch (to avoid import cycles).
//   - Perform I/O directly; all I/O goes through the dependency functions.
package flows
