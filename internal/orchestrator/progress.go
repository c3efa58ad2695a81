package orchestrator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/fieldway/fleet-provisioner/internal/task"
)

var (
	boldStyle = lipgloss.NewStyle().Bold(true)
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// tally is the live aggregate of task completions. It is the only state
// shared between completion handling and reporting, so every access goes
// through the mutex.
type tally struct {
	mu        sync.Mutex
	total     int
	completed int
	succeeded int
	failed    int
	skipped   int
}

func (t *tally) record(s task.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed++
	switch s {
	case task.StatusSuccess:
		t.succeeded++
	case task.StatusFailure:
		t.failed++
	case task.StatusSkipped:
		t.skipped++
	}
}

func (t *tally) snapshot() (total, completed, succeeded, failed, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total, t.completed, t.succeeded, t.failed, t.skipped
}

// withRate formats "[n/d] (p%)" with a zero-denominator guard.
func withRate(numerator, denominator int) string {
	if denominator == 0 {
		return fmt.Sprintf("[%d/0]", numerator)
	}
	return fmt.Sprintf("[%d/%d] (%.1f%%)",
		numerator, denominator, float64(numerator)/float64(denominator)*100)
}

// renderBar renders the single-line progress indicator. The caller decides
// the line ending: carriage return to overwrite, newline when complete.
func renderBar(iteration, total int, suffix string) string {
	const length = 50
	var percent float64
	filled := 0
	if total > 0 {
		percent = float64(iteration) / float64(total) * 100
		filled = length * iteration / total
	}
	bar := strings.Repeat("=", filled) + strings.Repeat("-", length-filled)
	return boldStyle.Render(fmt.Sprintf("Progress: |%s| %.1f%% %s", bar, percent, suffix))
}
