package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	cron "github.com/robfig/cron/v3"
)

// Transport selector values for Config.Provider.
const (
	ProviderGcloud    = "gcloud"
	ProviderSSH       = "ssh"
	ProviderSimulated = "simulated"
)

// Config holds all fleet-provisioner configuration. Run parameters come
// from CLI flags; ambient settings (paths, logging, notification channels)
// come from PROVISIONER_* environment variables.
type Config struct {
	// Run parameters (CLI flags)
	File       string // input file listing hosts and agent rules
	MaxWorkers int    // bounded worker pool width
	Force      bool   // re-provision hosts already recorded Success
	MaxRetries int    // transport attempts per host
	Provider   string // transport implementation selector
	DryRun     bool   // forces the simulated transport
	SSHUser    string // ssh transport auth
	SSHKey     string // ssh transport private key path
	Schedule   string // optional cron expression for periodic runs

	// Paths
	WorkDir     string // root for run log directories
	StatePath   string // resumable skip-state JSON file
	HistoryPath string // bolt run-history DB; empty disables history
	CatalogPath string // optional YAML agent catalog override

	// Transport extras
	SSHPort     int
	SSHPassword string

	// Logging
	LogJSON bool

	// Notifications
	WebhookURL     string
	WebhookHeaders string // comma-separated "Key: Value" pairs
	MQTTBroker     string
	MQTTTopic      string

	// Metrics
	MetricsTextfile string // node_exporter textfile path; empty disables
}

// Load reads ambient configuration from environment variables with
// defaults. Flag-backed fields keep their zero values until the CLI binds
// them.
func Load() *Config {
	workDir := envStr("PROVISIONER_WORK_DIR", "fleet_provisioning")
	return &Config{
		MaxWorkers: 10,
		MaxRetries: 3,
		Provider:   ProviderGcloud,

		WorkDir:     workDir,
		StatePath:   envStr("PROVISIONER_STATE_PATH", filepath.Join(workDir, "provisioning_state.json")),
		HistoryPath: envStr("PROVISIONER_HISTORY_PATH", filepath.Join(workDir, "history.db")),
		CatalogPath: envStr("PROVISIONER_CATALOG", ""),

		SSHPort:     envInt("PROVISIONER_SSH_PORT", 22),
		SSHPassword: envStr("PROVISIONER_SSH_PASSWORD", ""),

		LogJSON: envBool("PROVISIONER_LOG_JSON", false),

		WebhookURL:     envStr("PROVISIONER_WEBHOOK_URL", ""),
		WebhookHeaders: envStr("PROVISIONER_WEBHOOK_HEADERS", ""),
		MQTTBroker:     envStr("PROVISIONER_MQTT_BROKER", ""),
		MQTTTopic:      envStr("PROVISIONER_MQTT_TOPIC", "fleet-provisioner/events"),

		MetricsTextfile: envStr("PROVISIONER_METRICS_TEXTFILE", ""),
	}
}

// Validate checks configuration for invalid values.
func (c *Config) Validate() error {
	var errs []error
	if c.File == "" {
		errs = append(errs, errors.New("--file is required"))
	}
	if c.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("--max-workers must be > 0, got %d", c.MaxWorkers))
	}
	if c.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("--max-retries must be > 0, got %d", c.MaxRetries))
	}
	switch c.Provider {
	case ProviderGcloud, ProviderSSH, ProviderSimulated:
		// valid
	default:
		errs = append(errs, fmt.Errorf("--provider must be %s, %s, or %s, got %q",
			ProviderGcloud, ProviderSSH, ProviderSimulated, c.Provider))
	}
	if c.SSHPort <= 0 || c.SSHPort > 65535 {
		errs = append(errs, fmt.Errorf("PROVISIONER_SSH_PORT must be 1-65535, got %d", c.SSHPort))
	}
	if c.Schedule != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("--schedule is not a valid cron expression: %w", err))
		}
	}
	return errors.Join(errs...)
}

// EffectiveProvider resolves the transport selector: --dry-run always wins.
func (c *Config) EffectiveProvider() string {
	if c.DryRun {
		return ProviderSimulated
	}
	return c.Provider
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
