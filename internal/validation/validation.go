// Package validation determines pass/fail for run output against configured
// rules: a substring check and/or a JSON Schema check. Rule-engine failures
// (unparseable output, malformed schema) are themselves failing outcomes,
// never errors — the completion already succeeded by the time we get here.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Result is a tri-state validation outcome. Passed is nil when no rules were
// configured.
type Result struct {
	Passed *bool
	Notes  string
}

// Validate checks output against the configured rules. Empty rule strings
// mean the rule is not configured. When both rules are set, both must pass.
func Validate(output, expectedContains, jsonSchema string) Result {
	var (
		hasRules bool
		passed   = true
		notes    []string
	)

	if expectedContains != "" {
		hasRules = true
		if strings.Contains(output, expectedContains) {
			notes = append(notes, fmt.Sprintf("output contains %q", expectedContains))
		} else {
			passed = false
			notes = append(notes, fmt.Sprintf("output does not contain %q", expectedContains))
		}
	}

	if jsonSchema != "" {
		hasRules = true
		ok, note := validateSchema(output, jsonSchema)
		if !ok {
			passed = false
		}
		notes = append(notes, note)
	}

	if !hasRules {
		return Result{}
	}
	return Result{Passed: &passed, Notes: strings.Join(notes, "; ")}
}

func validateSchema(output, schema string) (bool, string) {
	// The output must be JSON at all before schema matching makes sense.
	var doc any
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		return false, fmt.Sprintf("output is not valid JSON: %v", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(output),
	)
	if err != nil {
		// Malformed schema lands here; a failing outcome, not a thrown error.
		return false, fmt.Sprintf("schema validation failed: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return false, "schema violations: " + strings.Join(msgs, ", ")
	}
	return true, "output matches schema"
}
