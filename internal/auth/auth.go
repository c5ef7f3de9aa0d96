// Package auth manages the OAuth2 authorization-code token lifecycle for the Spotify Web API.
//
// A [TokenManager] exchanges authorization codes, persists the resulting [TokenSet] into a
// [repositories.CredentialStore], and hands out access tokens, refreshing them when they expire.
// [AuthorizationResult] is the value the consent surface reports back once the user has
// answered the consent page.
package auth

import (
	"fmt"
	"time"

	"github.com/desertthunder/topmix/internal/shared"
)

// Credential store keys.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyExpiresIn    = "expires_in"
	KeyExpires      = "expires"
)

var credentialKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresIn, KeyExpires}

// TokenSet is the credential material returned by the token endpoint.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // lifetime in seconds
	IssuedAt     time.Time
}

// ExpiresAt returns the absolute instant the access token stops being valid.
func (t TokenSet) ExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Validate reports token sets that must never be persisted.
func (t TokenSet) Validate() error {
	if t.AccessToken == "" {
		return fmt.Errorf("%w: access token is empty", shared.ErrInvalidInput)
	}
	if t.ExpiresIn <= 0 {
		return fmt.Errorf("%w: expires_in must be positive, got %d", shared.ErrInvalidInput, t.ExpiresIn)
	}
	return nil
}

// ResultType distinguishes the outcomes of a consent round trip.
type ResultType string

const (
	ResultSuccess ResultType = "success"
	ResultCancel  ResultType = "cancel"
	ResultError   ResultType = "error"
)

// AuthorizationResult is produced once per sign-in attempt by the consent surface.
//
// Code is set only for [ResultSuccess]; Error only for [ResultError].
type AuthorizationResult struct {
	Type  ResultType
	Code  string
	Error string
}

// Success builds a [ResultSuccess] carrying code.
func Success(code string) AuthorizationResult {
	return AuthorizationResult{Type: ResultSuccess, Code: code}
}

// Cancelled builds a [ResultCancel].
func Cancelled() AuthorizationResult {
	return AuthorizationResult{Type: ResultCancel}
}

// Failed builds a [ResultError] with the provider's error string.
func Failed(reason string) AuthorizationResult {
	return AuthorizationResult{Type: ResultError, Error: reason}
}
