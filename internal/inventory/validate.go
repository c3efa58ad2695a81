package inventory

import (
	"errors"
	"fmt"
	"sort"
)

// ErrValidation marks the aggregate of all validation failures for a run.
// The orchestrator aborts the whole run when it sees this; no partial
// provisioning of the valid subset happens.
var ErrValidation = errors.New("entry validation failed")

// HostEntry is one fully validated (host, rule set) pair.
type HostEntry struct {
	Host  HostIdentity
	Rules AgentRuleSet
}

// ValidateEntries validates every raw entry and returns the validated pairs,
// or an aggregate error listing every problem found. Validation is
// exhaustive: one bad entry does not stop the others from being checked.
func ValidateEntries(entries []Entry) ([]HostEntry, error) {
	var errs []error
	var validated []HostEntry

	for _, e := range entries {
		var entryErrs []error

		host, err := ParseHostIdentity(e.Host)
		if err != nil {
			entryErrs = append(entryErrs, err)
		}

		rules, err := ParseRuleSet(e.Host, e.Rules)
		if err != nil {
			entryErrs = append(entryErrs, err)
		} else if ruleErrs := rules.Validate(); len(ruleErrs) > 0 {
			entryErrs = append(entryErrs, fmt.Errorf("host %s: %w", e.Host, errors.Join(ruleErrs...)))
		}

		if len(entryErrs) == 0 {
			validated = append(validated, HostEntry{Host: host, Rules: rules})
		}
		errs = append(errs, entryErrs...)
	}

	if dupErrs := validateDuplicates(entries); len(dupErrs) > 0 {
		errs = append(errs, dupErrs...)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w:\n%w", ErrValidation, errors.Join(errs...))
	}
	return validated, nil
}

// validateDuplicates reports every host identifier that appears in more than
// one entry, once per duplicated host, in sorted order. Comparison is on the
// exact raw string, matching the canonical form for valid identifiers.
func validateDuplicates(entries []Entry) []error {
	counts := make(map[string]int, len(entries))
	for _, e := range entries {
		counts[e.Host]++
	}
	var dups []string
	for host, n := range counts {
		if n > 1 {
			dups = append(dups, host)
		}
	}
	sort.Strings(dups)

	errs := make([]error, 0, len(dups))
	for _, host := range dups {
		errs = append(errs, fmt.Errorf(
			"host %s has more than one record in the file; keep at most one entry per host", host))
	}
	return errs
}
