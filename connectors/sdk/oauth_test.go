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
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGenerateCodeVerifier(t *testing.T) {
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier() error = %v", err)
	}

	// 32 random bytes encode to 43 unpadded base64url characters.
	if len(verifier) != 43 {
		t.Errorf("verifier length = %d, want 43", len(verifier))
	}
	if _, err := base64.RawURLEncoding.DecodeString(verifier); err != nil {
		t.Errorf("verifier is not valid base64url: %v", err)
	}

	other, err := GenerateCodeVerifier()
	if err != nil {
		t.Fatalf("GenerateCodeVerifier() error = %v", err)
	}
	if verifier == other {
		t.Error("two verifiers are identical, expected fresh randomness")
	}
}

func TestGenerateCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B test vector.
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	want := "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	if got := GenerateCodeChallenge(verifier); got != want {
		t.Errorf("GenerateCodeChallenge() = %q, want %q", got, want)
	}

	// Deterministic for the same verifier.
	if GenerateCodeChallenge(verifier) != GenerateCodeChallenge(verifier) {
		t.Error("challenge is not deterministic")
	}
}

func TestNewPKCEChallenge(t *testing.T) {
	challenge, err := NewPKCEChallenge()
	if err != nil {
		t.Fatalf("NewPKCEChallenge() error = %v", err)
	}

	if challenge.Method != CodeChallengeMethodS256 {
		t.Errorf("Method = %q, want %q", challenge.Method, CodeChallengeMethodS256)
	}
	if got := GenerateCodeChallenge(challenge.Verifier); got != challenge.Challenge {
		t.Errorf("Challenge = %q does not match derived %q", challenge.Challenge, got)
	}
}

func TestBuildAuthURL(t *testing.T) {
	raw, err := BuildAuthURL(AuthURLParams{
		AuthURL:       "https://auth.example.com/authorize",
		ClientID:      "client-1",
		RedirectURI:   "https://app.example.com/callback",
		Scopes:        []string{"read", "write"},
		State:         "xyz",
		CodeChallenge: "abc123",
	})
	if err != nil {
		t.Fatalf("BuildAuthURL() error = %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("result is not a valid URL: %v", err)
	}

	q := parsed.Query()
	want := map[string]string{
		"response_type":         "code",
		"client_id":             "client-1",
		"redirect_uri":          "https://app.example.com/callback",
		"scope":                 "read write",
		"state":                 "xyz",
		"code_challenge":        "abc123",
		"code_challenge_method": "S256",
	}
	for key, value := range want {
		if got := q.Get(key); got != value {
			t.Errorf("query[%q] = %q, want %q", key, got, value)
		}
	}
}

func TestBuildAuthURLOmitsEmptyParams(t *testing.T) {
	raw, err := BuildAuthURL(AuthURLParams{
		AuthURL:       "https://auth.example.com/authorize",
		ClientID:      "client-1",
		RedirectURI:   "https://app.example.com/callback",
		CodeChallenge: "abc123",
	})
	if err != nil {
		t.Fatalf("BuildAuthURL() error = %v", err)
	}

	parsed, _ := url.Parse(raw)
	q := parsed.Query()
	if q.Has("scope") {
		t.Error("scope should be omitted when no scopes are given")
	}
	if q.Has("state") {
		t.Error("state should be omitted when empty")
	}
}

func TestBuildAuthURLRequiresAuthURL(t *testing.T) {
	if _, err := BuildAuthURL(AuthURLParams{ClientID: "x"}); err == nil {
		t.Error("expected error for missing auth URL")
	}
}

func TestExchangeCode(t *testing.T) {
	var gotForm url.Values
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		gotForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600,"refresh_token":"rt-1"}`))
	}))
	defer server.Close()

	token, err := ExchangeCode(context.Background(), ExchangeCodeParams{
		TokenURL:     server.URL,
		ClientID:     "client-1",
		Code:         "code-1",
		RedirectURI:  "https://app.example.com/callback",
		CodeVerifier: "verifier-1",
	})
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if token.AccessToken != "at-1" || token.RefreshToken != "rt-1" || token.ExpiresIn != 3600 {
		t.Errorf("unexpected token response: %+v", token)
	}

	wantForm := map[string]string{
		"grant_type":    "authorization_code",
		"code":          "code-1",
		"redirect_uri":  "https://app.example.com/callback",
		"client_id":     "client-1",
		"code_verifier": "verifier-1",
	}
	for key, value := range wantForm {
		if got := gotForm.Get(key); got != value {
			t.Errorf("form[%q] = %q, want %q", key, got, value)
		}
	}
	if gotForm.Has("client_secret") {
		t.Error("client_secret should be omitted for public clients")
	}
}

func TestExchangeCodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	_, err := ExchangeCode(context.Background(), ExchangeCodeParams{
		TokenURL: server.URL,
		Code:     "expired",
	})

	var exchangeErr *TokenExchangeError
	if !errors.As(err, &exchangeErr) {
		t.Fatalf("error = %v, want *TokenExchangeError", err)
	}
	if exchangeErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", exchangeErr.StatusCode)
	}
	if !strings.Contains(exchangeErr.Body, "invalid_grant") {
		t.Errorf("Body = %q, want provider error body", exchangeErr.Body)
	}
}

func TestRefreshToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("ParseForm: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("refresh_token"); got != "rt-1" {
			t.Errorf("refresh_token = %q", got)
		}
		if got := r.PostForm.Get("client_secret"); got != "secret" {
			t.Errorf("client_secret = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","expires_in":1800}`))
	}))
	defer server.Close()

	token, err := RefreshToken(context.Background(), RefreshTokenParams{
		TokenURL:     server.URL,
		ClientID:     "client-1",
		ClientSecret: "secret",
		RefreshToken: "rt-1",
	})
	if err != nil {
		t.Fatalf("RefreshToken() error = %v", err)
	}
	if token.AccessToken != "at-2" {
		t.Errorf("AccessToken = %q, want at-2", token.AccessToken)
	}
}

func TestRefreshTokenErrorHidesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","secret_detail":"internal"}`))
	}))
	defer server.Close()

	_, err := RefreshToken(context.Background(), RefreshTokenParams{
		TokenURL:     server.URL,
		RefreshToken: "rt-1",
	})

	var refreshErr *TokenRefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("error = %v, want *TokenRefreshError", err)
	}
	if refreshErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", refreshErr.StatusCode)
	}
	if strings.Contains(refreshErr.Error(), "invalid_client") {
		t.Error("refresh error should not expose the provider body")
	}
}

func TestDecodeIDTokenClaims(t *testing.T) {
	// Unsigned token with {"sub":"user-1","email":"u@example.com"} claims.
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-1","email":"u@example.com"}`))
	idToken := header + "." + payload + "."

	claims, err := DecodeIDTokenClaims(idToken)
	if err != nil {
		t.Fatalf("DecodeIDTokenClaims() error = %v", err)
	}
	if claims["sub"] != "user-1" {
		t.Errorf("sub = %v, want user-1", claims["sub"])
	}
	if claims["email"] != "u@example.com" {
		t.Errorf("email = %v, want u@example.com", claims["email"])
	}

	if _, err := DecodeIDTokenClaims("not-a-jwt"); err == nil {
		t.Error("expected error for malformed token")
	}
}
