// Package agents holds the catalog of installable agents and builds the
// composite remote command that installs and starts them.
package agents

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fieldway/fleet-provisioner/internal/inventory"
)

// Detail describes how one agent type is installed and started on a host.
type Detail struct {
	// Package is the installed package/process name, also the subject of
	// the success marker line searched for in captured output.
	Package string `yaml:"package"`
	// RepoScript is the vendor script that sets up the package repository
	// and installs the agent.
	RepoScript string `yaml:"repo_script"`
	// StartCommand starts the agent after install. ":" (the shell no-op)
	// means the installer starts it on its own.
	StartCommand string `yaml:"start_command"`
	// ExtraFlags are appended to the install invocation.
	ExtraFlags string `yaml:"extra_flags"`
}

// Catalog maps each agent type to its install details.
type Catalog map[inventory.AgentType]Detail

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		inventory.AgentLogging: {
			Package:      "google-fluentd",
			RepoScript:   "add-logging-agent-repo.sh",
			StartCommand: "sudo service google-fluentd start",
		},
		inventory.AgentMetrics: {
			Package:      "stackdriver-agent",
			RepoScript:   "add-monitoring-agent-repo.sh",
			StartCommand: "sudo service stackdriver-agent start",
		},
		inventory.AgentOps: {
			Package:      "google-cloud-ops-agent",
			RepoScript:   "add-google-cloud-ops-agent-repo.sh",
			StartCommand: ":",
			ExtraFlags:   "--uninstall-standalone-logging-agent --uninstall-standalone-monitoring-agent",
		},
	}
}

// Load reads a YAML override file and merges it over the default catalog.
// The file may re-point scripts, packages, or flags for known agent types
// only; an unknown key is an error.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent catalog: %w", err)
	}
	var overrides map[string]Detail
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse agent catalog %s: %w", path, err)
	}

	catalog := Default()
	for name, override := range overrides {
		t := inventory.AgentType(name)
		if !t.Known() {
			return nil, fmt.Errorf("agent catalog %s: unknown agent type %q", path, name)
		}
		detail := catalog[t]
		if override.Package != "" {
			detail.Package = override.Package
		}
		if override.RepoScript != "" {
			detail.RepoScript = override.RepoScript
		}
		if override.StartCommand != "" {
			detail.StartCommand = override.StartCommand
		}
		if override.ExtraFlags != "" {
			detail.ExtraFlags = override.ExtraFlags
		}
		catalog[t] = detail
	}
	return catalog, nil
}

// SuccessMarker returns the line the install command echoes once the agent's
// process is confirmed running. Classification searches captured output for
// this marker surrounded by newlines.
func (c Catalog) SuccessMarker(t inventory.AgentType) string {
	return fmt.Sprintf("%s runs successfully.", c[t].Package)
}

// installCommand renders the install/start/self-check command for one rule.
// The self-check polls up to 3 times, one second apart, for the agent's
// process to appear, echoing the success marker when it does.
func (c Catalog) installCommand(rule inventory.AgentRule) string {
	d := c[rule.Type]
	versionFlag := ""
	if rule.Version != "" {
		versionFlag = fmt.Sprintf("--version=%s", rule.Version)
	}
	return fmt.Sprintf(
		"curl -sSO https://dl.google.com/cloudagents/%s; "+
			"sudo bash %s --also-install %s %s; "+
			"%s; "+
			"for i in {1..3}; do if (ps aux | grep 'opt[/].*%s.*bin/'); "+
			"then echo '%s runs successfully.'; break; fi; sleep 1s; done",
		d.RepoScript, d.RepoScript, versionFlag, d.ExtraFlags,
		d.StartCommand, d.Package, d.Package)
}

// BuildCommand concatenates the full remote command for a rule set: a start
// marker, one install command per rule in order, and a finish marker.
func (c Catalog) BuildCommand(rules inventory.AgentRuleSet) string {
	commands := make([]string, 0, len(rules)+2)
	commands = append(commands, `echo "$(date -Ins) Starting running commands."`)
	for _, rule := range rules {
		commands = append(commands, c.installCommand(rule))
	}
	commands = append(commands, `echo "$(date -Ins) Finished running commands."`)
	return strings.Join(commands, ";")
}
