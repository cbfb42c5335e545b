package errors

import "errors"

// Domain errors
var (
	// Input errors
	ErrInvalidURL       = errors.New("invalid URL. Must start with http:// or https://")
	ErrInvalidDomain    = errors.New("invalid domain")
	ErrMissingParameter = errors.New("missing required parameter")
	ErrUnknownAnalyzer  = errors.New("unknown analyzer")

	// Policy errors
	ErrBlockedHost   = errors.New("blocked hostname")
	ErrBlockedRange  = errors.New("blocked IP range")
	ErrUnresolvable  = errors.New("could not resolve hostname")
	ErrRateLimited   = errors.New("rate limit exceeded. Try again later")
	ErrMissingAPIKey = errors.New("API key not configured")

	// Auth errors
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("admin access required")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrSessionExpired     = errors.New("session expired")
	ErrSelfDemotion       = errors.New("you cannot demote yourself")
	ErrSelfDeletion       = errors.New("you cannot delete your own account from here")

	// Repository errors
	ErrNotFound            = errors.New("record not found")
	ErrAlreadyExists       = errors.New("record already exists")
	ErrRepositoryOperation = errors.New("repository operation failed")

	// Upstream errors
	ErrUpstream = errors.New("upstream service error")
)
