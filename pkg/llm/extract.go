// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Heuristic tool-call detection for providers without native tool-calling.
// Two surface forms are recognized in assistant text:
//
//	Using the tool 'name' with parameters: {"a": 1}
//
// and a fenced block:
//
//	```tool
//	{"name": "calculator", "arguments": {"a": 1}}
//	```
//
// Extraction is best effort. Matches with argument payloads that do not
// parse as JSON objects are skipped rather than surfaced as malformed calls.
var (
	inlineCallRe = regexp.MustCompile(`Using the tool '([^']+)' with parameters: (\{.*?\})`)
	fencedCallRe = regexp.MustCompile("(?s)```tool\\s*\\n(.*?)```")
)

type fencedCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ExtractToolCalls scans assistant text for tool invocation patterns and
// returns them as structured tool calls with fresh ids. Returns nil when the
// text contains no recognizable invocation.
func ExtractToolCalls(content string) []ToolCall {
	var calls []ToolCall

	for _, m := range inlineCallRe.FindAllStringSubmatch(content, -1) {
		name, args := m[1], m[2]
		if name == "" || !isJSONObject(args) {
			continue
		}
		calls = append(calls, newHeuristicCall(name, args))
	}

	for _, m := range fencedCallRe.FindAllStringSubmatch(content, -1) {
		var fc fencedCall
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), &fc); err != nil {
			continue
		}
		if fc.Name == "" {
			continue
		}
		args := string(fc.Arguments)
		if args == "" || args == "null" {
			args = "{}"
		}
		if !isJSONObject(args) {
			continue
		}
		calls = append(calls, newHeuristicCall(fc.Name, args))
	}

	return calls
}

// StripToolCalls removes recognized invocation patterns from assistant text
// so extracted calls do not leak back into the visible content.
func StripToolCalls(content string) string {
	content = inlineCallRe.ReplaceAllString(content, "")
	content = fencedCallRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

func newHeuristicCall(name, args string) ToolCall {
	return ToolCall{
		ID:   uuid.New().String(),
		Type: ToolTypeFunction,
		Function: FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func isJSONObject(s string) bool {
	var obj map[string]any
	return json.Unmarshal([]byte(s), &obj) == nil
}
