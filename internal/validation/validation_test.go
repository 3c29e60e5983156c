package validation

import (
	"strings"
	"testing"
)

func TestValidate_NoRulesIsNull(t *testing.T) {
	r := Validate("any output at all", "", "")
	if r.Passed != nil {
		t.Errorf("Passed = %v, want nil when no rules configured", *r.Passed)
	}
	if r.Notes != "" {
		t.Errorf("Notes = %q, want empty", r.Notes)
	}
}

func TestValidate_ContainsPass(t *testing.T) {
	r := Validate("...The answer is 42...", "42", "")
	if r.Passed == nil || !*r.Passed {
		t.Fatalf("Passed = %v, want true", r.Passed)
	}
}

func TestValidate_ContainsFail(t *testing.T) {
	r := Validate("no such number here", "42", "")
	if r.Passed == nil || *r.Passed {
		t.Fatalf("Passed = %v, want false", r.Passed)
	}
	if !strings.Contains(r.Notes, "does not contain") {
		t.Errorf("Notes = %q, want a does-not-contain explanation", r.Notes)
	}
}

func TestValidate_SchemaPass(t *testing.T) {
	r := Validate(`{"name":"x","count":3}`, "", `{"type":"object","required":["name"]}`)
	if r.Passed == nil || !*r.Passed {
		t.Fatalf("Passed = %v, want true", r.Passed)
	}
}

func TestValidate_SchemaViolation(t *testing.T) {
	r := Validate(`{"count":3}`, "", `{"type":"object","required":["name"]}`)
	if r.Passed == nil || *r.Passed {
		t.Fatalf("Passed = %v, want false", r.Passed)
	}
	if !strings.Contains(r.Notes, "schema violations") {
		t.Errorf("Notes = %q, want schema violation detail", r.Notes)
	}
}

func TestValidate_NonJSONOutputFailsSchema(t *testing.T) {
	r := Validate("plain text", "", `{"type":"number"}`)
	if r.Passed == nil || *r.Passed {
		t.Fatalf("Passed = %v, want false for non-JSON output", r.Passed)
	}
	if !strings.Contains(r.Notes, "not valid JSON") {
		t.Errorf("Notes = %q, want not-valid-JSON explanation", r.Notes)
	}
}

func TestValidate_MalformedSchemaIsFailureNotPanic(t *testing.T) {
	r := Validate(`{"a":1}`, "", `{"type": [broken`)
	if r.Passed == nil || *r.Passed {
		t.Fatalf("Passed = %v, want false for malformed schema", r.Passed)
	}
}

func TestValidate_BothRulesMustPass(t *testing.T) {
	// Contains passes, schema fails.
	r := Validate(`not json but has 42`, "42", `{"type":"object"}`)
	if r.Passed == nil || *r.Passed {
		t.Fatalf("Passed = %v, want false when one of two rules fails", r.Passed)
	}

	// Both pass.
	r = Validate(`{"answer":42}`, "42", `{"type":"object"}`)
	if r.Passed == nil || !*r.Passed {
		t.Fatalf("Passed = %v, want true when both rules pass", r.Passed)
	}
}
