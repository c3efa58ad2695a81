// Package orchestrator owns the run's control loop: validation, the
// bounded worker pool, live progress, state persistence, and the final
// report.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fieldway/fleet-provisioner/internal/agents"
	"github.com/fieldway/fleet-provisioner/internal/clock"
	"github.com/fieldway/fleet-provisioner/internal/config"
	"github.com/fieldway/fleet-provisioner/internal/executor"
	"github.com/fieldway/fleet-provisioner/internal/history"
	"github.com/fieldway/fleet-provisioner/internal/inventory"
	"github.com/fieldway/fleet-provisioner/internal/logging"
	"github.com/fieldway/fleet-provisioner/internal/metrics"
	"github.com/fieldway/fleet-provisioner/internal/notify"
	"github.com/fieldway/fleet-provisioner/internal/state"
	"github.com/fieldway/fleet-provisioner/internal/task"
)

// Orchestrator runs one provisioning pass over the input file.
type Orchestrator struct {
	cfg      *config.Config
	exec     executor.Executor
	state    *state.Store
	history  *history.Store // nil disables history recording
	notifier *notify.Multi  // nil disables notifications
	catalog  agents.Catalog
	clock    clock.Clock
	log      *logging.Logger
	out      io.Writer

	// runMu serializes Run: the state store has one writer per run, so a
	// scheduled tick that fires while the previous run is still in flight
	// must wait its turn.
	runMu sync.Mutex

	// collectTimeout overrides the task output-collection timeout in tests.
	collectTimeout time.Duration
}

// Params holds the orchestrator's dependencies.
type Params struct {
	Config   *config.Config
	Executor executor.Executor
	State    *state.Store
	History  *history.Store
	Notifier *notify.Multi
	Catalog  agents.Catalog
	Clock    clock.Clock
	Log      *logging.Logger
	Out      io.Writer
}

// New creates an Orchestrator.
func New(p Params) *Orchestrator {
	if p.Catalog == nil {
		p.Catalog = agents.Default()
	}
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Out == nil {
		p.Out = os.Stdout
	}
	return &Orchestrator{
		cfg:      p.Config,
		exec:     p.Executor,
		state:    p.State,
		history:  p.History,
		notifier: p.Notifier,
		catalog:  p.Catalog,
		clock:    p.Clock,
		log:      p.Log,
		out:      p.Out,
	}
}

// Summary is the aggregate outcome of one run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	LogDir    string
	Duration  time.Duration
}

// Run executes one full provisioning pass. Concurrent calls are serialized;
// at most one pass touches the state store at a time. A validation failure
// aborts before any transport activity and before the state store is touched.
// Individual host failures never abort the run.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	o.runMu.Lock()
	defer o.runMu.Unlock()

	start := o.clock.Now()
	logDir := filepath.Join(o.cfg.WorkDir, start.UTC().Format("20060102-150405.000000"))

	o.log.Info("reading entries", "file", o.cfg.File)
	f, err := os.Open(o.cfg.File)
	if err != nil {
		return Summary{}, fmt.Errorf("open input file: %w", err)
	}
	entries, err := inventory.ParseEntries(f)
	f.Close()
	if err != nil {
		return Summary{}, err
	}

	validated, err := inventory.ValidateEntries(entries)
	if err != nil {
		o.log.Error("some entries are invalid or malformed", "error", err)
		fmt.Fprintf(o.out, "ERROR:\n%v\n", err)
		return Summary{}, err
	}
	o.log.Info("validated all entries", "hosts", len(validated))

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create log directory: %w", err)
	}
	fmt.Fprintf(o.out, "See log files in folder: %s\n", logDir)

	o.state.Load()

	tasks := make([]*task.Task, 0, len(validated))
	for _, entry := range validated {
		tasks = append(tasks, task.New(entry.Host, entry.Rules, task.Params{
			LogDir:         logDir,
			MaxRetries:     o.cfg.MaxRetries,
			CollectTimeout: o.collectTimeout,
			Skip:           o.state.ShouldSkip(entry.Host.String()),
			Executor:       o.exec,
			Catalog:        o.catalog,
			Clock:          o.clock,
			Log:            o.log,
		}))
	}
	metrics.HostsTotal.Set(float64(len(tasks)))
	o.notify(ctx, notify.Event{
		Type: notify.EventRunStarted, Total: len(tasks), Timestamp: o.clock.Now(),
	})

	t := o.runPool(ctx, tasks)

	// State is mutated only here, after all workers are done.
	now := o.clock.Now()
	for _, tk := range tasks {
		if tk.Status() == task.StatusSkipped {
			continue
		}
		o.state.Record(tk.Host.String(), string(tk.Status()), now)
	}
	if err := o.state.Flush(); err != nil {
		return Summary{}, fmt.Errorf("flush state: %w", err)
	}

	total, _, succeeded, failed, skipped := t.snapshot()
	duration := o.clock.Since(start)
	summary := Summary{
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		LogDir:    logDir,
		Duration:  duration,
	}

	o.recordHistory(start, summary, tasks)
	o.printReport(tasks, summary)

	metrics.RunDuration.Observe(duration.Seconds())
	if o.cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(o.cfg.MetricsTextfile); err != nil {
			o.log.Error("failed to write metrics textfile", "path", o.cfg.MetricsTextfile, "error", err)
		}
	}

	o.notify(ctx, notify.Event{
		Type:      notify.EventRunComplete,
		Total:     total,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		Timestamp: o.clock.Now(),
	})
	o.log.Info("run complete", "hosts", total, "duration", duration.String())
	return summary, nil
}

// runPool dispatches tasks to the bounded worker pool and consumes
// completions in completion order, redrawing the progress line after each.
func (o *Orchestrator) runPool(ctx context.Context, tasks []*task.Task) *tally {
	jobs := make(chan *task.Task)
	results := make(chan *task.Task)

	workers := o.cfg.MaxWorkers
	if workers > len(tasks) {
		workers = len(tasks)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for tk := range jobs {
				metrics.TasksInFlight.Inc()
				started := o.clock.Now()
				tk.Run(ctx)
				tk.WaitForCompletion()
				metrics.TaskDuration.Observe(o.clock.Since(started).Seconds())
				metrics.TasksInFlight.Dec()
				results <- tk
			}
		}()
	}
	go func() {
		for _, tk := range tasks {
			jobs <- tk
		}
		close(jobs)
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	t := &tally{total: len(tasks)}
	fmt.Fprint(o.out, "\r"+renderBar(0, t.total, "Complete")+"\r")
	for tk := range results {
		t.record(tk.Status())
		metrics.ResultsTotal.WithLabelValues(string(tk.Status())).Inc()
		switch tk.Status() {
		case task.StatusSuccess:
			o.notify(ctx, notify.Event{
				Type:      notify.EventHostProvisioned,
				Host:      tk.Host.String(),
				Status:    string(tk.Status()),
				Agents:    agentResultNames(tk),
				Timestamp: o.clock.Now(),
			})
		case task.StatusFailure:
			o.notify(ctx, notify.Event{
				Type:      notify.EventHostFailed,
				Host:      tk.Host.String(),
				Status:    string(tk.Status()),
				Agents:    agentResultNames(tk),
				Error:     errString(tk.Err()),
				Timestamp: o.clock.Now(),
			})
		}
		o.drawProgress(t)
	}
	return t
}

func (o *Orchestrator) drawProgress(t *tally) {
	total, completed, succeeded, failed, skipped := t.snapshot()
	suffix := fmt.Sprintf("%s completed; %s succeeded; %s failed; %s skipped;",
		withRate(completed, total),
		withRate(succeeded, completed),
		withRate(failed, completed),
		withRate(skipped, completed))
	end := "\r"
	if completed == total {
		end = "\n"
	}
	fmt.Fprint(o.out, "\r"+renderBar(completed, total, suffix)+end)
}

// printReport prints the itemized per-host outcome and the bold aggregate
// summary, in submission order.
func (o *Orchestrator) printReport(tasks []*task.Task, s Summary) {
	for _, tk := range tasks {
		switch {
		case tk.Status() == task.StatusSkipped:
			fmt.Fprintf(o.out, "Host: %s was skipped.\n", tk.Host)
		case tk.AgentResults != nil:
			for _, typ := range tk.Rules.Types() {
				outcome := "successfully runs"
				if !tk.AgentResults[typ] {
					outcome = failStyle.Render("fails to run")
				}
				fmt.Fprintf(o.out, "Host: %s %s %s. See log file in: %s\n",
					tk.Host, outcome, typ, tk.LogFile)
			}
		default:
			// Transport never exited zero; there is no per-agent breakdown.
			fmt.Fprintf(o.out, "Host: %s %s: %v\n",
				tk.Host, failStyle.Render("failed to provision"), tk.Err())
		}
	}
	fmt.Fprintln(o.out)
	fmt.Fprintln(o.out, boldStyle.Render(fmt.Sprintf("SUCCEEDED: %s", withRate(s.Succeeded, s.Total))))
	fmt.Fprintln(o.out, boldStyle.Render(fmt.Sprintf("FAILED: %s", withRate(s.Failed, s.Total))))
	fmt.Fprintln(o.out, boldStyle.Render(fmt.Sprintf("SKIPPED: %s", withRate(s.Skipped, s.Total))))
	fmt.Fprintln(o.out, boldStyle.Render(fmt.Sprintf("COMPLETED: %s", withRate(s.Succeeded+s.Failed+s.Skipped, s.Total))))
	fmt.Fprintln(o.out)
}

func (o *Orchestrator) recordHistory(start time.Time, s Summary, tasks []*task.Task) {
	if o.history == nil {
		return
	}
	err := o.history.RecordRun(history.RunRecord{
		StartedAt: start,
		Duration:  s.Duration,
		Total:     s.Total,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Skipped:   s.Skipped,
	})
	if err != nil {
		o.log.Error("failed to record run history", "error", err)
	}
	now := o.clock.Now()
	for _, tk := range tasks {
		err := o.history.RecordHostResult(history.HostResult{
			Timestamp: now,
			Host:      tk.Host.String(),
			Status:    string(tk.Status()),
			Agents:    agentResultNames(tk),
			LogFile:   tk.LogFile,
			Error:     errString(tk.Err()),
		})
		if err != nil {
			o.log.Error("failed to record host history", "host", tk.Host.String(), "error", err)
		}
	}
}

func (o *Orchestrator) notify(ctx context.Context, ev notify.Event) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, ev)
}

func agentResultNames(tk *task.Task) map[string]bool {
	if tk.AgentResults == nil {
		return nil
	}
	out := make(map[string]bool, len(tk.AgentResults))
	for typ, ok := range tk.AgentResults {
		out[string(typ)] = ok
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
