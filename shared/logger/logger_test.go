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

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	l := New("sdk")
	var buf bytes.Buffer
	l.SetOutput(&buf)
	return l, &buf
}

func TestLoggerWritesJSONLines(t *testing.T) {
	l, buf := capture(t)

	l.Info("stripe", "req-1", "request completed", map[string]interface{}{"status": 200})
	l.Warn("stripe", "req-2", "slow response", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if entry.Level != INFO {
		t.Errorf("Level = %q, want INFO", entry.Level)
	}
	if entry.Component != "sdk" || entry.Connector != "stripe" {
		t.Errorf("entry = %+v, want component sdk and connector stripe", entry)
	}
	if entry.RequestID != "req-1" {
		t.Errorf("RequestID = %q, want req-1", entry.RequestID)
	}
	if entry.Fields["status"] != float64(200) {
		t.Errorf("Fields[status] = %v, want 200", entry.Fields["status"])
	}
	if entry.Timestamp == "" {
		t.Error("Timestamp should be set")
	}
}

func TestLoggerLevels(t *testing.T) {
	l, buf := capture(t)

	l.Debug("c", "", "d", nil)
	l.Info("c", "", "i", nil)
	l.Warn("c", "", "w", nil)
	l.Error("c", "", "e", nil)

	want := []LogLevel{DEBUG, INFO, WARN, ERROR}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(want) {
		t.Fatalf("lines = %d, want %d", len(lines), len(want))
	}
	for i, line := range lines {
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if entry.Level != want[i] {
			t.Errorf("line %d level = %q, want %q", i, entry.Level, want[i])
		}
	}
}

func TestInfoWithDuration(t *testing.T) {
	l, buf := capture(t)

	l.InfoWithDuration("jira", "req-1", "operation finished", 12.5, nil)

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry.Fields["duration_ms"] != 12.5 {
		t.Errorf("duration_ms = %v, want 12.5", entry.Fields["duration_ms"])
	}
}

func TestErrorWithCode(t *testing.T) {
	l, buf := capture(t)

	l.ErrorWithCode("jira", "req-1", "request failed", 503, errFake("unavailable"), nil)

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry.Fields["status_code"] != float64(503) {
		t.Errorf("status_code = %v, want 503", entry.Fields["status_code"])
	}
	if entry.Fields["error"] != "unavailable" {
		t.Errorf("error = %v, want unavailable", entry.Fields["error"])
	}
}

type errFake string

func (e errFake) Error() string { return string(e) }
