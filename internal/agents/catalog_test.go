package agents

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fieldway/fleet-provisioner/internal/inventory"
)

func TestBuildCommand(t *testing.T) {
	catalog := Default()
	rules := inventory.AgentRuleSet{
		{Type: inventory.AgentLogging, Version: "1.2.3"},
		{Type: inventory.AgentMetrics},
	}
	cmd := catalog.BuildCommand(rules)

	for _, want := range []string{
		`echo "$(date -Ins) Starting running commands."`,
		"curl -sSO https://dl.google.com/cloudagents/add-logging-agent-repo.sh",
		"--version=1.2.3",
		"sudo service google-fluentd start",
		"add-monitoring-agent-repo.sh",
		"echo 'stackdriver-agent runs successfully.'",
		`echo "$(date -Ins) Finished running commands."`,
	} {
		if !strings.Contains(cmd, want) {
			t.Errorf("command missing %q:\n%s", want, cmd)
		}
	}

	// No version pin, no version flag.
	if strings.Contains(cmd, "--version=latest") {
		t.Error("unpinned metrics rule should not carry a version flag")
	}

	// Logging install must come before metrics install, matching rule order.
	if strings.Index(cmd, "add-logging-agent-repo.sh") > strings.Index(cmd, "add-monitoring-agent-repo.sh") {
		t.Error("install commands out of rule order")
	}
}

func TestBuildCommandOpsAgentFlags(t *testing.T) {
	cmd := Default().BuildCommand(inventory.AgentRuleSet{{Type: inventory.AgentOps}})
	if !strings.Contains(cmd, "--uninstall-standalone-logging-agent") {
		t.Errorf("ops-agent extra flags missing:\n%s", cmd)
	}
	// The ops agent starts its own services; the start slot is the no-op.
	if !strings.Contains(cmd, "; :; ") {
		t.Errorf("ops-agent start command should be the shell no-op:\n%s", cmd)
	}
}

func TestSuccessMarker(t *testing.T) {
	catalog := Default()
	tests := map[inventory.AgentType]string{
		inventory.AgentLogging: "google-fluentd runs successfully.",
		inventory.AgentMetrics: "stackdriver-agent runs successfully.",
		inventory.AgentOps:     "google-cloud-ops-agent runs successfully.",
	}
	for typ, want := range tests {
		if got := catalog.SuccessMarker(typ); got != want {
			t.Errorf("SuccessMarker(%s) = %q, want %q", typ, got, want)
		}
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "logging:\n  package: my-fluentd\n  repo_script: my-logging-repo.sh\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := catalog[inventory.AgentLogging].Package; got != "my-fluentd" {
		t.Errorf("Package = %q, want my-fluentd", got)
	}
	if got := catalog[inventory.AgentLogging].RepoScript; got != "my-logging-repo.sh" {
		t.Errorf("RepoScript = %q", got)
	}
	// Unset fields keep their defaults.
	if got := catalog[inventory.AgentLogging].StartCommand; got != "sudo service google-fluentd start" {
		t.Errorf("StartCommand = %q, want default", got)
	}
	if got := catalog[inventory.AgentMetrics].Package; got != "stackdriver-agent" {
		t.Errorf("metrics Package = %q, want untouched default", got)
	}
}

func TestLoadRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte("tracing:\n  package: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("want error for unknown agent type")
	}
}
