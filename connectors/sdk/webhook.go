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
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"

	"conduit/integrations/connectors/base"
)

// SlackTimestampTolerance is the replay-protection window for Slack
// webhook timestamps.
const SlackTimestampTolerance = 300 * time.Second

// digestHex computes hex(hash(payload || secret)) with the named
// algorithm. This is a concatenated-hash digest, NOT an RFC 2104 keyed
// HMAC; the scheme is preserved verbatim for compatibility with providers
// signed under it. The second return is false for unknown algorithms.
func digestHex(payload, secret, algorithm string) (string, bool) {
	var h hash.Hash
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	case "sha512":
		h = sha512.New()
	default:
		return "", false
	}

	h.Write([]byte(payload))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil)), true
}

// ValidateHMAC checks a generic hex signature against the digest of
// payload and secret. An empty algorithm means sha256; sha1 and sha512 are
// also accepted. Despite the name this is a concatenated-hash digest, not
// a keyed HMAC (see digestHex). Returns false on any mismatch or unknown
// algorithm; never panics.
func ValidateHMAC(payload, signature, secret, algorithm string) bool {
	expected, ok := digestHex(payload, secret, algorithm)
	if !ok {
		return false
	}
	return base.SecureCompare(expected, signature)
}

// ValidateStripe verifies a Stripe-Signature header of the form
// "t=<ts>,v1=<sig>[,v1=<sig2>...]" against the signed payload
// "{ts}.{payload}". Any matching v1 value validates the request.
func ValidateStripe(payload, signatureHeader, secret string) bool {
	var timestamp string
	var candidates []string

	for _, part := range strings.Split(signatureHeader, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			candidates = append(candidates, value)
		}
	}

	if timestamp == "" || len(candidates) == 0 {
		return false
	}

	expected, ok := digestHex(timestamp+"."+payload, secret, "sha256")
	if !ok {
		return false
	}

	for _, candidate := range candidates {
		if base.SecureCompare(expected, candidate) {
			return true
		}
	}
	return false
}

// ValidateGitHub verifies an X-Hub-Signature-256 header of the form
// "sha256=<hex>".
func ValidateGitHub(payload, signatureHeader, secret string) bool {
	expected, ok := digestHex(payload, secret, "sha256")
	if !ok {
		return false
	}
	return base.SecureCompare("sha256="+expected, signatureHeader)
}

// ValidateSlack verifies an X-Slack-Signature header ("v0=<hex>") together
// with X-Slack-Request-Timestamp. Timestamps older than
// SlackTimestampTolerance are rejected outright, regardless of the digest,
// to block replays.
func ValidateSlack(timestamp, signatureHeader, payload, signingSecret string) bool {
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return false
	}

	if time.Since(time.Unix(ts, 0)) > SlackTimestampTolerance {
		return false
	}

	expected, ok := digestHex("v0:"+timestamp+":"+payload, signingSecret, "sha256")
	if !ok {
		return false
	}
	return base.SecureCompare("v0="+expected, signatureHeader)
}
