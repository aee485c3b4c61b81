// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"sort"
	"sync"

	"github.com/noema-ai/noema/pkg/errors"
	"github.com/noema-ai/noema/pkg/llm"
)

// Registry maps tool names to implementations. Read-mostly after startup;
// hot registration excludes readers only for the duration of the write.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Duplicate names fail with ALREADY_EXISTS.
func (r *Registry) Register(t Tool) error {
	def := t.Definition()
	if def.Name == "" {
		return errors.New(errors.CodeInvalidInput, "tool name must not be empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return errors.New(errors.CodeAlreadyExists, "tool already registered", nil).
			WithContext("tool", def.Name)
	}
	r.tools[def.Name] = t
	return nil
}

// Get returns the tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions renders all tools in the wire shape sent to the model,
// sorted by name for deterministic requests.
func (r *Registry) Definitions() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]llm.Tool, 0, len(names))
	for _, name := range names {
		def := r.tools[name].Definition()
		params := def.Parameters
		if params == nil {
			params = map[string]any{"type": "object"}
		}
		defs = append(defs, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return defs
}
