package history

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := s.RecordRun(RunRecord{
			StartedAt: base.Add(time.Duration(i) * time.Hour),
			Duration:  5 * time.Minute,
			Total:     10,
			Succeeded: 9 - i,
			Failed:    1 + i,
		})
		if err != nil {
			t.Fatalf("RecordRun error: %v", err)
		}
	}

	runs, err := s.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	// Newest first.
	if !runs[0].StartedAt.After(runs[1].StartedAt) {
		t.Errorf("runs not newest-first: %v then %v", runs[0].StartedAt, runs[1].StartedAt)
	}
	if runs[0].Failed != 3 {
		t.Errorf("newest run Failed = %d, want 3", runs[0].Failed)
	}
}

func TestHostResultsIsolatedByHost(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	hostA := "projects/p/zones/z/instances/a"
	hostAB := "projects/p/zones/z/instances/ab" // prefix-overlapping name
	for i, host := range []string{hostA, hostAB, hostA} {
		err := s.RecordHostResult(HostResult{
			Timestamp: now.Add(time.Duration(i) * time.Minute),
			Host:      host,
			Status:    "SUCCESS",
			Agents:    map[string]bool{"logging": true},
		})
		if err != nil {
			t.Fatalf("RecordHostResult error: %v", err)
		}
	}

	results, err := s.ResultsFor(hostA)
	if err != nil {
		t.Fatalf("ResultsFor error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results for %s, want 2", len(results), hostA)
	}
	for _, r := range results {
		if r.Host != hostA {
			t.Errorf("result for wrong host: %s", r.Host)
		}
	}
	if !results[1].Timestamp.After(results[0].Timestamp) {
		t.Error("per-host results not oldest-first")
	}
}
