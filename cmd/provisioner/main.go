package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"
	"github.com/spf13/pflag"

	"github.com/fieldway/fleet-provisioner/internal/agents"
	"github.com/fieldway/fleet-provisioner/internal/config"
	"github.com/fieldway/fleet-provisioner/internal/executor"
	"github.com/fieldway/fleet-provisioner/internal/history"
	"github.com/fieldway/fleet-provisioner/internal/logging"
	"github.com/fieldway/fleet-provisioner/internal/notify"
	"github.com/fieldway/fleet-provisioner/internal/orchestrator"
	"github.com/fieldway/fleet-provisioner/internal/state"
)

var version = "dev"

func main() {
	cfg := config.Load()

	pflag.StringVar(&cfg.File, "file", "", "path of the input CSV file listing hosts to provision agents on (required)")
	pflag.IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "maximum number of concurrent workers")
	pflag.BoolVar(&cfg.Force, "force", false, "force re-provisioning of all hosts")
	pflag.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "maximum number of retries for a failed remote command")
	pflag.StringVar(&cfg.Provider, "provider", cfg.Provider, "transport provider: gcloud, ssh, or simulated")
	pflag.BoolVar(&cfg.DryRun, "dry-run", false, "perform a dry run using the simulated transport (no network calls)")
	pflag.StringVar(&cfg.SSHUser, "ssh-user", "", "SSH username for the ssh provider")
	pflag.StringVar(&cfg.SSHKey, "ssh-key", "", "path to the private key file for the ssh provider")
	pflag.StringVar(&cfg.Schedule, "schedule", "", "cron expression for periodic re-provisioning (one-shot when empty)")
	showVersion := pflag.Bool("version", false, "print version and exit")
	showHistory := pflag.Int("history", 0, "print the N most recent runs from the history database and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println("fleet-provisioner " + version)
		return
	}

	if *showHistory > 0 {
		if err := listHistory(os.Stdout, cfg.HistoryPath, *showHistory); err != nil {
			fmt.Fprintf(os.Stderr, "history: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create work directory: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON)
	runLog, err := os.OpenFile(filepath.Join(cfg.WorkDir, "provisioner.log"),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn("cannot open run log, logging to stdout only", "error", err)
	} else {
		defer runLog.Close()
		log = logging.NewRunLogger(cfg.LogJSON, runLog)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	catalog := agents.Default()
	if cfg.CatalogPath != "" {
		catalog, err = agents.Load(cfg.CatalogPath)
		if err != nil {
			log.Error("failed to load agent catalog", "path", cfg.CatalogPath, "error", err)
			os.Exit(1)
		}
		log.Info("loaded agent catalog overrides", "path", cfg.CatalogPath)
	}

	var hist *history.Store
	if cfg.HistoryPath != "" {
		hist, err = history.Open(cfg.HistoryPath)
		if err != nil {
			log.Warn("history disabled, cannot open database", "path", cfg.HistoryPath, "error", err)
		} else {
			defer hist.Close()
		}
	}

	// Build notification chain.
	notifiers := []notify.Notifier{notify.NewLogNotifier(log)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhook(cfg.WebhookURL, parseHeaders(cfg.WebhookHeaders)))
		log.Info("webhook notifications enabled", "url", cfg.WebhookURL)
	}
	if cfg.MQTTBroker != "" {
		notifiers = append(notifiers, notify.NewMQTT(cfg.MQTTBroker, cfg.MQTTTopic, "", "", "", 0))
		log.Info("mqtt notifications enabled", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
	}

	orc := orchestrator.New(orchestrator.Params{
		Config:   cfg,
		Executor: buildExecutor(cfg, log),
		State:    state.New(cfg.StatePath, cfg.Force),
		History:  hist,
		Notifier: notify.NewMulti(log, notifiers...),
		Catalog:  catalog,
		Log:      log,
	})

	if cfg.Schedule == "" {
		if _, err := orc.Run(ctx); err != nil {
			os.Exit(1)
		}
		return
	}

	log.Info("running on schedule", "cron", cfg.Schedule)
	// A tick that fires while the previous run is still in flight is dropped:
	// runs must not overlap on the shared state store.
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})))
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if _, err := orc.Run(ctx); err != nil {
			log.Error("scheduled run failed", "error", err)
		}
	}); err != nil {
		fmt.Fprintf(os.Stderr, "invalid schedule: %v\n", err)
		os.Exit(2)
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
}

// listHistory prints the most recent runs from the audit database,
// newest first.
func listHistory(w io.Writer, path string, limit int) error {
	hist, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", path, err)
	}
	defer hist.Close()

	runs, err := hist.RecentRuns(limit)
	if err != nil {
		return err
	}
	printRuns(w, runs)
	return nil
}

func printRuns(w io.Writer, runs []history.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no recorded runs")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  hosts=%d succeeded=%d failed=%d skipped=%d duration=%s\n",
			r.StartedAt.UTC().Format(time.RFC3339), r.Total,
			r.Succeeded, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
	}
}

// cronLogger adapts our logger to the cron scheduler's interface, so skipped
// overlapping ticks show up in the run log.
type cronLogger struct {
	log *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Info(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error(msg, append(keysAndValues, "error", err)...)
}

// buildExecutor picks the transport implementation; --dry-run always wins.
func buildExecutor(cfg *config.Config, log *logging.Logger) executor.Executor {
	switch cfg.EffectiveProvider() {
	case config.ProviderSimulated:
		return executor.NewSimulated()
	case config.ProviderSSH:
		return executor.NewSSH(cfg.SSHUser, cfg.SSHKey, cfg.SSHPassword, cfg.SSHPort, log)
	default:
		return executor.NewGcloud(log)
	}
}

// parseHeaders parses "Key: Value, Key2: Value2" into a header map.
func parseHeaders(s string) map[string]string {
	if s == "" {
		return nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(kv) == 2 {
			headers[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return headers
}
