// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package vector

import "reflect"

// Filter is a metadata predicate evaluated against candidate records.
// Results returned by Query satisfy the filter exactly.
type Filter interface {
	Matches(metadata map[string]any) bool
}

type eqFilter struct {
	field string
	value any
}

type neFilter struct {
	field string
	value any
}

type gtFilter struct {
	field string
	value float64
}

type ltFilter struct {
	field string
	value float64
}

type inFilter struct {
	field  string
	values []any
}

type andFilter struct{ filters []Filter }
type orFilter struct{ filters []Filter }
type notFilter struct{ inner Filter }

// Eq matches records whose field equals value.
func Eq(field string, value any) Filter { return eqFilter{field, value} }

// Ne matches records whose field is present and differs from value.
func Ne(field string, value any) Filter { return neFilter{field, value} }

// Gt matches records whose field is a number greater than value.
func Gt(field string, value float64) Filter { return gtFilter{field, value} }

// Lt matches records whose field is a number less than value.
func Lt(field string, value float64) Filter { return ltFilter{field, value} }

// In matches records whose field equals any of the given values.
func In(field string, values ...any) Filter { return inFilter{field, values} }

// And matches records satisfying every filter.
func And(filters ...Filter) Filter { return andFilter{filters} }

// Or matches records satisfying at least one filter.
func Or(filters ...Filter) Filter { return orFilter{filters} }

// Not inverts a filter.
func Not(inner Filter) Filter { return notFilter{inner} }

func (f eqFilter) Matches(metadata map[string]any) bool {
	v, ok := metadata[f.field]
	return ok && looseEqual(v, f.value)
}

func (f neFilter) Matches(metadata map[string]any) bool {
	v, ok := metadata[f.field]
	return ok && !looseEqual(v, f.value)
}

func (f gtFilter) Matches(metadata map[string]any) bool {
	n, ok := asFloat(metadata[f.field])
	return ok && n > f.value
}

func (f ltFilter) Matches(metadata map[string]any) bool {
	n, ok := asFloat(metadata[f.field])
	return ok && n < f.value
}

func (f inFilter) Matches(metadata map[string]any) bool {
	v, ok := metadata[f.field]
	if !ok {
		return false
	}
	for _, candidate := range f.values {
		if looseEqual(v, candidate) {
			return true
		}
	}
	return false
}

func (f andFilter) Matches(metadata map[string]any) bool {
	for _, inner := range f.filters {
		if !inner.Matches(metadata) {
			return false
		}
	}
	return true
}

func (f orFilter) Matches(metadata map[string]any) bool {
	for _, inner := range f.filters {
		if inner.Matches(metadata) {
			return true
		}
	}
	return false
}

func (f notFilter) Matches(metadata map[string]any) bool {
	return f.inner == nil || !f.inner.Matches(metadata)
}

// looseEqual compares values with numeric coercion so that int metadata
// matches float query values and vice versa (JSON round trips turn ints
// into float64). Non-comparable values such as slices fall back to deep
// equality; a bare == on those would panic.
func looseEqual(a, b any) bool {
	na, okA := asFloat(a)
	nb, okB := asFloat(b)
	if okA || okB {
		return okA && okB && na == nb
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != nil && tb != nil && ta.Comparable() && tb.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
