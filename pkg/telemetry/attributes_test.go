// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import "testing"

func TestRunAttributes(t *testing.T) {
	attrs := RunAttributes("agent-1", "conv-1", "test-model", 10)
	if len(attrs) != 4 {
		t.Fatalf("expected 4 attributes, got %d", len(attrs))
	}
	if string(attrs[0].Key) != AttrAgentID || attrs[0].Value.AsString() != "agent-1" {
		t.Fatalf("unexpected first attribute: %v", attrs[0])
	}
}

func TestToolCallAttributes(t *testing.T) {
	attrs := ToolCallAttributes("calculator", "call-1", 12, true)
	found := map[string]bool{}
	for _, a := range attrs {
		found[string(a.Key)] = true
	}
	for _, key := range []string{AttrToolName, AttrToolCallID, AttrToolDurationMs, AttrToolSuccess} {
		if !found[key] {
			t.Fatalf("missing attribute %s", key)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]string{
		"debug":   "DEBUG",
		"warn":    "WARN",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range cases {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
