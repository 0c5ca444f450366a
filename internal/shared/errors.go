package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Identity errors
	ErrInvalidIdentityToken = fmt.Errorf("invalid identity token")

	// Streaming account errors
	ErrNotLinked      = fmt.Errorf("no streaming account linked")
	ErrRefreshFailed  = fmt.Errorf("token refresh failed")
	ErrExchangeFailed = fmt.Errorf("token exchange failed")
	ErrStateMismatch  = fmt.Errorf("state nonce mismatch")

	// API and storage errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrNotFound         = fmt.Errorf("document not found")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
