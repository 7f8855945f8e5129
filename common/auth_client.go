package common

import (
	"context"

	"golang.org/x/oauth2"
)

// AuthClient exchanges a refresh token for a new access token.
type AuthClient interface {
	// RefreshToken attempts to refresh using the given refresh token string.
	// Returns a new *oauth2.Token on success, or an error if refresh fails.
	// The returned RefreshToken is empty unless the server rotated it.
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}
