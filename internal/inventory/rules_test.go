package inventory

import (
	"strings"
	"testing"
)

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		version string
		valid   bool
	}{
		{"latest", true},
		{"1.2.3", true},
		{"10.20.30", true},
		{"1.*.*", true},
		{"12.*.*", true},
		{"v1", false},
		{"1", false},
		{"1.2", false},
		{"1.2.*", false},
		{"*.*.*", false},
		{"1.*.3", false},
		{"latest ", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if tt.valid && err != nil {
				t.Errorf("ValidateVersion(%q) = %v, want nil", tt.version, err)
			}
			if !tt.valid && err == nil {
				t.Errorf("ValidateVersion(%q) = nil, want error", tt.version)
			}
		})
	}
}

func TestParseRuleSet(t *testing.T) {
	t.Run("valid with version", func(t *testing.T) {
		rules, err := ParseRuleSet("h", `[{"type": "logging", "version": "1.2.3"}]`)
		if err != nil {
			t.Fatalf("ParseRuleSet error: %v", err)
		}
		if len(rules) != 1 || rules[0].Type != AgentLogging || rules[0].Version != "1.2.3" {
			t.Errorf("rules = %+v", rules)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := ParseRuleSet("h", "invalid-json"); err == nil {
			t.Error("want error for invalid JSON")
		}
	})

	t.Run("empty list", func(t *testing.T) {
		if _, err := ParseRuleSet("h", "[]"); err == nil {
			t.Error("want error for empty rule list")
		}
	})

	t.Run("missing type field", func(t *testing.T) {
		_, err := ParseRuleSet("h", `[{"version": "1.2.3"}]`)
		if err == nil {
			t.Fatal("want error for missing type field")
		}
		if !strings.Contains(err.Error(), "type") {
			t.Errorf("error %q does not mention the type field", err)
		}
	})
}

func TestRuleSetValidate(t *testing.T) {
	tests := []struct {
		name     string
		rules    AgentRuleSet
		wantErrs int
		contains string
	}{
		{
			name:  "logging and metrics",
			rules: AgentRuleSet{{Type: AgentLogging}, {Type: AgentMetrics}},
		},
		{
			name:  "ops agent alone",
			rules: AgentRuleSet{{Type: AgentOps}},
		},
		{
			name:     "unknown type",
			rules:    AgentRuleSet{{Type: "invalid-type"}},
			wantErrs: 1,
			contains: `invalid agent type "invalid-type"`,
		},
		{
			name:     "duplicate type",
			rules:    AgentRuleSet{{Type: AgentLogging}, {Type: AgentLogging}},
			wantErrs: 1,
			contains: "at most one agent",
		},
		{
			name:     "ops agent with other first",
			rules:    AgentRuleSet{{Type: AgentLogging}, {Type: AgentOps}},
			wantErrs: 1,
			contains: "no other agent type is allowed",
		},
		{
			name:     "ops agent with other last",
			rules:    AgentRuleSet{{Type: AgentOps}, {Type: AgentMetrics}},
			wantErrs: 1,
			contains: "no other agent type is allowed",
		},
		{
			name:     "bad version",
			rules:    AgentRuleSet{{Type: AgentLogging, Version: "v1"}},
			wantErrs: 1,
			contains: "not allowed",
		},
		{
			name:     "multiple problems accumulate",
			rules:    AgentRuleSet{{Type: "bogus"}, {Type: AgentLogging, Version: "x"}},
			wantErrs: 2,
		},
		{
			name:     "repeated unknown type reports both problems",
			rules:    AgentRuleSet{{Type: "bogus"}, {Type: "bogus"}},
			wantErrs: 2,
			contains: "at most one agent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.rules.Validate()
			if len(errs) != tt.wantErrs {
				t.Fatalf("Validate() returned %d errors (%v), want %d", len(errs), errs, tt.wantErrs)
			}
			if tt.contains == "" {
				return
			}
			found := false
			for _, err := range errs {
				if strings.Contains(err.Error(), tt.contains) {
					found = true
				}
			}
			if !found {
				t.Errorf("no error contains %q: %v", tt.contains, errs)
			}
		})
	}
}
