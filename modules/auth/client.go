package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/ixe-agent/articleapi/common"
	"github.com/ixe-agent/articleapi/common/model"
)

// DefaultRefreshPath is the refresh endpoint relative to the API root.
const DefaultRefreshPath = "auths/refresh-token"

// ErrMissingAccessToken means the refresh endpoint answered 2xx without a token.
var ErrMissingAccessToken = errors.New("auth: refresh response has no access token")

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// authClient talks to the refresh endpoint with a plain HttpClient so the
// call never passes through the authenticated pipeline.
type authClient struct {
	refreshURL string
	httpClient common.HttpClient
}

var _ common.AuthClient = (*authClient)(nil)

// NewAuthClient resolves refreshPath against baseURL.
func NewAuthClient(baseURL, refreshPath string, httpClient common.HttpClient) (common.AuthClient, error) {
	if refreshPath == "" {
		refreshPath = DefaultRefreshPath
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	path, err := url.Parse(refreshPath)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh path: %w", err)
	}

	return &authClient{
		refreshURL: base.ResolveReference(path).String(),
		httpClient: httpClient,
	}, nil
}

// RefreshToken posts {"refreshToken": ...} and reads data.accessToken.
func (c *authClient) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read refresh response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &common.HTTPError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			URL:        c.refreshURL,
			Body:       data,
		}
	}

	var env model.Envelope[*refreshResponse]
	if err := model.JSONUnmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if env.Data == nil || env.Data.AccessToken == "" {
		return nil, ErrMissingAccessToken
	}

	return &oauth2.Token{
		AccessToken:  env.Data.AccessToken,
		RefreshToken: env.Data.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       TokenExpiry(env.Data.AccessToken),
	}, nil
}

// TokenExpiry reads the exp claim without verifying the signature. Zero is
// returned when the token is not a decodable JWT.
func TokenExpiry(accessToken string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time.UTC()
}
