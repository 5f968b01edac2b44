// Copyright 2025 MF Tech Staffs
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"testing"
)

func captureOutput(fn func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.SetFlags(0)
	defer log.SetOutput(log.Writer())
	fn()
	return buf.String()
}

func TestNew(t *testing.T) {
	l := New("test-component")
	if l.Component != "test-component" {
		t.Errorf("expected component 'test-component', got %q", l.Component)
	}
	if l.Host == "" {
		t.Error("expected non-empty host")
	}
}

func TestLogProducesJSON(t *testing.T) {
	l := New("router")

	out := captureOutput(func() {
		l.Info("sess-1", "req-1", "provider selected", map[string]interface{}{
			"provider": "claude",
		})
	})

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v (output: %q)", err, out)
	}

	if entry.Level != INFO {
		t.Errorf("expected level INFO, got %s", entry.Level)
	}
	if entry.Component != "router" {
		t.Errorf("expected component 'router', got %q", entry.Component)
	}
	if entry.SessionID != "sess-1" {
		t.Errorf("expected session_id 'sess-1', got %q", entry.SessionID)
	}
	if entry.Fields["provider"] != "claude" {
		t.Errorf("expected provider field 'claude', got %v", entry.Fields["provider"])
	}
}

func TestErrorWithCode(t *testing.T) {
	l := New("server")

	out := captureOutput(func() {
		l.ErrorWithCode("", "req-9", "query failed", 500, errTest, nil)
	})

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if entry.Level != ERROR {
		t.Errorf("expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["status_code"] != float64(500) {
		t.Errorf("expected status_code 500, got %v", entry.Fields["status_code"])
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("expected error 'boom', got %v", entry.Fields["error"])
	}
}

var errTest = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
