// Copyright 2026 © The Noema Authors
// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/noema-ai/noema/pkg/errors"
)

// ValidateArguments checks arguments against a tool's parameter schema.
// Validation runs before the tool body; a violation means the body is never
// called. A nil schema accepts anything.
func ValidateArguments(schema map[string]any, arguments map[string]any) error {
	if schema == nil {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(arguments),
	)
	if err != nil {
		return errors.New(errors.CodeInvalidArguments, "schema validation failed", err)
	}
	if result.Valid() {
		return nil
	}

	var violations []string
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return errors.New(errors.CodeInvalidArguments, "arguments do not match tool schema", nil).
		WithContext("violations", strings.Join(violations, "; "))
}
