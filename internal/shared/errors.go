package shared

import (
	"errors"
	"fmt"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTokenExpired     = fmt.Errorf("access token expired")
	ErrRefreshFailed    = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrSignInInProgress = fmt.Errorf("sign-in already in progress")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrAPIParse           = fmt.Errorf("unexpected API response")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrNoTopTracks        = fmt.Errorf("no top tracks available")
	ErrPartialPlaylist    = fmt.Errorf("playlist created but not populated")

	// Storage errors
	ErrStorage  = fmt.Errorf("credential storage failed")
	ErrNotFound = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// AuthExchangeError reports a token endpoint that rejected a grant or answered with unusable data.
type AuthExchangeError struct {
	Status int    // HTTP status, 0 when the response body was the problem
	Code   string // OAuth error code (invalid_grant, invalid_client, ...)
	Err    error
}

func (e *AuthExchangeError) Error() string {
	msg := "token exchange failed"
	if e.Status != 0 {
		msg += fmt.Sprintf(": status %d", e.Status)
	}
	if e.Code != "" {
		msg += fmt.Sprintf(" (%s)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthExchangeError) Unwrap() []error { return causes(ErrAuthFailed, e.Err) }

// APIRequestError reports a non-2xx response from a Web API endpoint.
type APIRequestError struct {
	Status   int
	Endpoint string
	Body     string
}

func (e *APIRequestError) Error() string {
	msg := fmt.Sprintf("spotify API error: status %d", e.Status)
	if e.Endpoint != "" {
		msg += " from " + e.Endpoint
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *APIRequestError) Unwrap() error { return ErrAPIRequest }

// APIParseError reports a 2xx response whose body did not have the expected shape.
type APIParseError struct {
	Endpoint string
	Reason   string
	Err      error
}

func (e *APIParseError) Error() string {
	msg := fmt.Sprintf("unexpected response from %s: %s", e.Endpoint, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIParseError) Unwrap() []error { return causes(ErrAPIParse, e.Err) }

// StorageError reports a failed credential store operation.
type StorageError struct {
	Operation string // "get", "set", "delete"
	Key       string
	Err       error
}

func (e *StorageError) Error() string {
	msg := e.Operation + " credential"
	if e.Key != "" {
		msg += " " + e.Key
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StorageError) Unwrap() []error { return causes(ErrStorage, e.Err) }

// PartialPlaylistError reports a playlist that was created but whose tracks could not be added.
//
// The playlist is left in place; nothing rolls it back.
type PartialPlaylistError struct {
	PlaylistID string
	Err        error
}

func (e *PartialPlaylistError) Error() string {
	return fmt.Sprintf("playlist %s created but tracks were not added: %v", e.PlaylistID, e.Err)
}

func (e *PartialPlaylistError) Unwrap() []error { return causes(ErrPartialPlaylist, e.Err) }

// causes pairs a sentinel with an optional underlying error for multi-error unwrapping.
func causes(sentinel, err error) []error {
	if err == nil {
		return []error{sentinel}
	}
	return []error{sentinel, err}
}

// StatusCode extracts the HTTP status carried by an [APIRequestError] or [AuthExchangeError] in err's chain.
func StatusCode(err error) (int, bool) {
	var apiErr *APIRequestError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	var authErr *AuthExchangeError
	if errors.As(err, &authErr) && authErr.Status != 0 {
		return authErr.Status, true
	}
	return 0, false
}
