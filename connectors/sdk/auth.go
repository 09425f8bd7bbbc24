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
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"conduit/integrations/connectors/base"
)

// DefaultAPIKeyHeader is used when credentials carry an API key without an
// explicit header name.
const DefaultAPIKeyHeader = "X-API-Key"

// ApplyCredentials sets the auth header for creds on req. When several
// schemes are present, bearer wins over apiKey, which wins over basic.
// Nil or empty credentials leave the request untouched.
func ApplyCredentials(req *http.Request, creds *base.Credentials) {
	switch {
	case creds == nil:
	case creds.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+creds.Bearer)
	case creds.APIKey != "":
		header := creds.APIKeyHeader
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		req.Header.Set(header, creds.APIKey)
	case creds.Basic != nil:
		req.SetBasicAuth(creds.Basic.Username, creds.Basic.Password)
	}
}

// TokenProvider supplies bearer tokens for clients whose credentials are
// managed externally (e.g. refreshed OAuth tokens).
type TokenProvider interface {
	// Token returns a currently valid access token.
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider wraps a pre-issued token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token implements TokenProvider.
func (s *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if s.token == "" {
		return "", fmt.Errorf("bearer token is not set")
	}
	return s.token, nil
}

// ClientCredentialsConfig holds the OAuth 2.0 client-credentials settings
// for an OAuthTokenProvider.
type ClientCredentialsConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// OAuthTokenProvider fetches and caches an access token via the OAuth 2.0
// client-credentials grant, refreshing 30 seconds before expiry.
type OAuthTokenProvider struct {
	config      ClientCredentialsConfig
	accessToken string
	expiresAt   time.Time
	mu          sync.Mutex
}

// NewOAuthTokenProvider creates a provider for the given configuration.
func NewOAuthTokenProvider(config ClientCredentialsConfig) *OAuthTokenProvider {
	return &OAuthTokenProvider{config: config}
}

// Token returns the cached access token, refreshing it when missing or
// close to expiry.
func (o *OAuthTokenProvider) Token(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.accessToken != "" && !o.expiredLocked() {
		return o.accessToken, nil
	}

	if err := o.refreshLocked(ctx); err != nil {
		return "", fmt.Errorf("failed to refresh OAuth token: %w", err)
	}
	return o.accessToken, nil
}

// SetToken manually sets the access token (useful for testing or external
// token management).
func (o *OAuthTokenProvider) SetToken(token string, expiresAt time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accessToken = token
	o.expiresAt = expiresAt
}

// expiredLocked reports expiry with a 30 second safety margin. Caller must
// hold o.mu.
func (o *OAuthTokenProvider) expiredLocked() bool {
	if o.expiresAt.IsZero() {
		return o.accessToken == ""
	}
	return time.Now().Add(30 * time.Second).After(o.expiresAt)
}

// refreshLocked obtains a new access token using client credentials.
// Caller must hold o.mu.
func (o *OAuthTokenProvider) refreshLocked(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", o.config.ClientID)
	form.Set("client_secret", o.config.ClientSecret)
	if len(o.config.Scopes) > 0 {
		form.Set("scope", strings.Join(o.config.Scopes, " "))
	}

	token, err := postTokenForm(ctx, o.config.TokenURL, form, func(status int, _ string) error {
		return fmt.Errorf("token request returned status %d", status)
	})
	if err != nil {
		return err
	}

	o.accessToken = token.AccessToken
	if token.ExpiresIn > 0 {
		o.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	} else {
		o.expiresAt = time.Time{}
	}

	return nil
}
