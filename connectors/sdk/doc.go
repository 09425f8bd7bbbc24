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

// Package sdk provides the building blocks for writing integration
// connectors: OAuth 2.0 authorization with PKCE, webhook signature
// validation for common providers, per-connector rate limiting, retry
// with exponential backoff, request metrics, and a test harness with a
// mock server.
//
// The pieces compose rather than depend on each other. A typical
// connector pairs an http or graphql client with a RateLimiter and a
// RetryPolicy, validates inbound webhooks with the Validate* helpers,
// and is exercised in tests through ConnectorTester and MockServer.
//
// Credential material is never logged or persisted by any component in
// this package; it only ever flows into outbound request headers.
package sdk
