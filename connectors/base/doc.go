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

// Package base defines the domain types shared by every connector built on
// the Conduit integration SDK: the Connector interface, the Credentials
// model, and the security primitives (constant-time comparison, SSRF URL
// validation, log sanitization) used throughout the SDK.
//
// A connector is any value implementing Connector:
//
//	type todoConnector struct {
//	    client *http.APIClient
//	}
//
//	func (t *todoConnector) TestConnection(creds *base.Credentials) error {
//	    _, err := t.client.Get(context.Background(), "/me", nil)
//	    return err
//	}
//
//	func (t *todoConnector) Execute(op string, params map[string]interface{}, creds *base.Credentials) (interface{}, error) {
//	    switch op {
//	    case "list_items":
//	        return t.client.Get(context.Background(), "/items", nil)
//	    }
//	    return nil, base.NewConnectorError("todo", op, "unknown operation", nil)
//	}
//
// Credentials carry exactly one auth scheme; consumers resolve bearer,
// then apiKey, then basic, in that order.
package base
