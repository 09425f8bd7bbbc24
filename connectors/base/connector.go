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

package base

// Connector is the surface every integration must expose to the test
// harness and the surrounding platform. Implementations typically wrap an
// APIClient or GraphQL client configured for one third-party service.
type Connector interface {
	// TestConnection verifies the credentials against the live service.
	TestConnection(creds *Credentials) error

	// Execute runs a named operation with the given parameters.
	Execute(operation string, params map[string]interface{}, creds *Credentials) (interface{}, error)
}

// Credentials holds the auth material for one connector instance.
// Exactly one of Bearer, APIKey, or Basic is expected to be set; when more
// than one is present, consumers resolve them in that priority order.
// Credentials are never logged or persisted by this SDK.
type Credentials struct {
	// Bearer is an OAuth2 access token or other bearer token.
	Bearer string `json:"bearer,omitempty" yaml:"bearer,omitempty"`

	// APIKey is sent in a header (default X-API-Key, override via APIKeyHeader).
	APIKey       string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	APIKeyHeader string `json:"api_key_header,omitempty" yaml:"api_key_header,omitempty"`

	// Basic carries username/password for HTTP Basic auth.
	Basic *BasicCredentials `json:"basic,omitempty" yaml:"basic,omitempty"`
}

// BasicCredentials is the username/password pair for HTTP Basic auth.
type BasicCredentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// Empty reports whether no auth material is present.
func (c *Credentials) Empty() bool {
	if c == nil {
		return true
	}
	return c.Bearer == "" && c.APIKey == "" && c.Basic == nil
}

// ConnectorError represents errors specific to connector operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
