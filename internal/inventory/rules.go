package inventory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// AgentType identifies an installable remote agent.
type AgentType string

const (
	AgentLogging AgentType = "logging"
	AgentMetrics AgentType = "metrics"
	// AgentOps is the all-in-one agent. It bundles a logging and a metrics
	// module, so no other agent type may be requested alongside it.
	AgentOps AgentType = "ops-agent"
)

// KnownAgentTypes returns all valid agent types in a stable order.
func KnownAgentTypes() []AgentType {
	return []AgentType{AgentLogging, AgentMetrics, AgentOps}
}

// Known reports whether t is a recognised agent type.
func (t AgentType) Known() bool {
	switch t {
	case AgentLogging, AgentMetrics, AgentOps:
		return true
	}
	return false
}

// AgentRule asks for one agent type at an optional pinned version.
type AgentRule struct {
	Type    AgentType `json:"type"`
	Version string    `json:"version,omitempty"`
}

// AgentRuleSet is the ordered list of agent rules for one host.
type AgentRuleSet []AgentRule

// Types returns the agent types in rule order.
func (rs AgentRuleSet) Types() []AgentType {
	types := make([]AgentType, len(rs))
	for i, r := range rs {
		types[i] = r.Type
	}
	return types
}

// SortedTypeNames returns the agent type names sorted alphabetically,
// for the log file header line.
func (rs AgentRuleSet) SortedTypeNames() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = string(r.Type)
	}
	sort.Strings(names)
	return names
}

const versionLatest = "latest"

var (
	pinnedVersionRe      = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	pinnedMajorVersionRe = regexp.MustCompile(`^\d+\.\*\.\*$`)
)

// ValidateVersion checks a version pin against the accepted grammar:
// "latest", MAJOR.MINOR.PATCH, or MAJOR.*.*.
func ValidateVersion(version string) error {
	if version == versionLatest {
		return nil
	}
	if pinnedVersionRe.MatchString(version) || pinnedMajorVersionRe.MatchString(version) {
		return nil
	}
	return fmt.Errorf("agent version %q is not allowed; expected %q, "+
		"MAJOR.MINOR.PATCH, or MAJOR.*.*", version, versionLatest)
}

// rawRule distinguishes an absent "type" key from an empty one during decoding.
type rawRule struct {
	Type    *string `json:"type"`
	Version *string `json:"version"`
}

// ParseRuleSet decodes the JSON rule blob for one host. It fails if the blob
// is not valid JSON, decodes to an empty list, or any rule lacks the
// required "type" field. Semantic rule validation happens separately.
func ParseRuleSet(host, blob string) (AgentRuleSet, error) {
	var raw []rawRule
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("host %s: invalid agent rules %s: %w", host, blob, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("host %s: requires at least one agent rule", host)
	}
	rules := make(AgentRuleSet, 0, len(raw))
	for _, r := range raw {
		if r.Type == nil {
			return nil, fmt.Errorf("host %s: agent rule is missing required \"type\" field", host)
		}
		rule := AgentRule{Type: AgentType(*r.Type)}
		if r.Version != nil {
			rule.Version = *r.Version
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Validate checks rule-set semantics: every type known, no type repeated,
// the all-in-one agent alone, and every version pin well-formed. All
// problems are returned, not just the first.
func (rs AgentRuleSet) Validate() []error {
	var errs []error

	counts := make(map[AgentType]int)
	for _, r := range rs {
		counts[r.Type]++
	}
	for _, r := range rs {
		if counts[r.Type] == 0 {
			continue // already reported
		}
		if !r.Type.Known() {
			errs = append(errs, fmt.Errorf("invalid agent type %q; valid types are: %s",
				r.Type, knownTypeList()))
		}
		if counts[r.Type] > 1 {
			errs = append(errs, fmt.Errorf("at most one agent with type [%s] is allowed", r.Type))
		}
		counts[r.Type] = 0
	}
	if n := len(rs); n > 1 {
		for _, r := range rs {
			if r.Type == AgentOps {
				errs = append(errs, fmt.Errorf(
					"an agent with type [%s] is detected; no other agent type is allowed, "+
						"since it already has both a logging module and a metrics module", AgentOps))
				break
			}
		}
	}
	for _, r := range rs {
		if r.Version != "" {
			if err := ValidateVersion(r.Version); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func knownTypeList() string {
	s := ""
	for i, t := range KnownAgentTypes() {
		if i > 0 {
			s += ", "
		}
		s += string(t)
	}
	return s
}
