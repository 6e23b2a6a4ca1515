package server

import "errors"

var (
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrRefreshReuse        = errors.New("refresh token reuse detected")
	ErrSessionNotFound     = errors.New("session not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrInvalidAnonKey      = errors.New("invalid anon key")
	ErrBackendMismatch     = errors.New("backend url mismatch")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrUnavailable         = errors.New("session backend unavailable")
	ErrInvalidUser         = errors.New("invalid user id")
)
