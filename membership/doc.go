// Package membership supplies the workspace roles embedded in full access
// tokens. A user with many workspaces produces a token too large for a
// request header, which is what session repair addresses.
package membership
