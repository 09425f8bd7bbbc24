// Copyright 2025 Conduit
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sdk

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CodeChallengeMethodS256 is the only challenge method this SDK emits.
const CodeChallengeMethodS256 = "S256"

// oauthHTTPClient is used for token endpoint requests.
var oauthHTTPClient = &http.Client{Timeout: 30 * time.Second}

// PKCEChallenge holds the verifier/challenge pair for one authorization
// attempt. The verifier stays client-side until the code exchange and is
// discarded afterwards.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
	Method    string
}

// NewPKCEChallenge generates a fresh verifier and its derived challenge.
func NewPKCEChallenge() (*PKCEChallenge, error) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return nil, err
	}
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: GenerateCodeChallenge(verifier),
		Method:    CodeChallengeMethodS256,
	}, nil
}

// GenerateCodeVerifier returns 32 cryptographically random bytes encoded as
// unpadded base64url. Every call produces a fresh value.
func GenerateCodeVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateCodeChallenge derives the S256 challenge for a verifier:
// unpadded base64url of the verifier's SHA-256 digest. Deterministic given
// the verifier.
func GenerateCodeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// AuthURLParams configures BuildAuthURL.
type AuthURLParams struct {
	AuthURL       string
	ClientID      string
	RedirectURI   string
	Scopes        []string
	State         string
	CodeChallenge string
}

// BuildAuthURL assembles the provider authorization URL with the standard
// PKCE query parameters. Scopes are joined by a single space.
func BuildAuthURL(params AuthURLParams) (string, error) {
	if params.AuthURL == "" {
		return "", fmt.Errorf("auth URL is required")
	}

	parsed, err := url.Parse(params.AuthURL)
	if err != nil {
		return "", fmt.Errorf("invalid auth URL: %w", err)
	}

	q := parsed.Query()
	q.Set("response_type", "code")
	q.Set("client_id", params.ClientID)
	q.Set("redirect_uri", params.RedirectURI)
	if len(params.Scopes) > 0 {
		q.Set("scope", strings.Join(params.Scopes, " "))
	}
	if params.State != "" {
		q.Set("state", params.State)
	}
	q.Set("code_challenge", params.CodeChallenge)
	q.Set("code_challenge_method", CodeChallengeMethodS256)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

// TokenResponse is the JSON body returned by OAuth token endpoints.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// TokenExchangeError is returned when the code exchange fails. It carries
// the provider's raw error body for diagnosis.
type TokenExchangeError struct {
	StatusCode int
	Body       string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

// TokenRefreshError is returned when a refresh fails. The provider body is
// deliberately not exposed; refresh failures surface a generic message.
type TokenRefreshError struct {
	StatusCode int
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed with status %d", e.StatusCode)
}

// ExchangeCodeParams configures ExchangeCode.
type ExchangeCodeParams struct {
	TokenURL     string
	ClientID     string
	ClientSecret string // optional; public PKCE clients omit it
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// ExchangeCode trades an authorization code (plus the retained PKCE
// verifier) for tokens. Non-2xx responses return a *TokenExchangeError.
func ExchangeCode(ctx context.Context, params ExchangeCodeParams) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", params.Code)
	form.Set("redirect_uri", params.RedirectURI)
	form.Set("client_id", params.ClientID)
	form.Set("code_verifier", params.CodeVerifier)
	if params.ClientSecret != "" {
		form.Set("client_secret", params.ClientSecret)
	}

	return postTokenForm(ctx, params.TokenURL, form, func(status int, body string) error {
		return &TokenExchangeError{StatusCode: status, Body: body}
	})
}

// RefreshTokenParams configures RefreshToken.
type RefreshTokenParams struct {
	TokenURL     string
	ClientID     string
	ClientSecret string // optional
	RefreshToken string
}

// RefreshToken obtains a new access token from a refresh token. Non-2xx
// responses return a *TokenRefreshError without the provider body.
func RefreshToken(ctx context.Context, params RefreshTokenParams) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", params.RefreshToken)
	form.Set("client_id", params.ClientID)
	if params.ClientSecret != "" {
		form.Set("client_secret", params.ClientSecret)
	}

	return postTokenForm(ctx, params.TokenURL, form, func(status int, _ string) error {
		return &TokenRefreshError{StatusCode: status}
	})
}

// postTokenForm POSTs an x-www-form-urlencoded body to a token endpoint
// and decodes the JSON token response.
func postTokenForm(ctx context.Context, tokenURL string, form url.Values, errFor func(status int, body string) error) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := oauthHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, errFor(resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	return &token, nil
}

// DecodeIDTokenClaims extracts the claims from an OIDC id_token without
// verifying its signature. Useful for reading subject/email after an
// exchange; never use it as an authentication decision.
func DecodeIDTokenClaims(idToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to decode id_token: %w", err)
	}
	return claims, nil
}
