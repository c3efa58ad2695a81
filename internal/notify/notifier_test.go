package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- test helpers ---

type spyLogger struct {
	infoCalls  []logCall
	errorCalls []logCall
}

type logCall struct {
	msg  string
	args []any
}

func (s *spyLogger) Info(msg string, args ...any) {
	s.infoCalls = append(s.infoCalls, logCall{msg, args})
}
func (s *spyLogger) Error(msg string, args ...any) {
	s.errorCalls = append(s.errorCalls, logCall{msg, args})
}

type stubNotifier struct {
	name string
	err  error
	sent []Event
}

func (s *stubNotifier) Name() string { return s.name }
func (s *stubNotifier) Send(_ context.Context, event Event) error {
	s.sent = append(s.sent, event)
	return s.err
}

func hostEvent(t EventType) Event {
	return Event{
		Type:      t,
		Host:      "projects/p/zones/z/instances/host-a",
		Status:    "SUCCESS",
		Agents:    map[string]bool{"logging": true},
		Timestamp: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	}
}

// --- Multi tests ---

func TestMultiDispatchesAll(t *testing.T) {
	a := &stubNotifier{name: "a"}
	b := &stubNotifier{name: "b"}
	log := &spyLogger{}
	m := NewMulti(log, a, b)

	event := hostEvent(EventHostProvisioned)
	m.Notify(context.Background(), event)

	if len(a.sent) != 1 {
		t.Fatalf("notifier a: got %d events, want 1", len(a.sent))
	}
	if len(b.sent) != 1 {
		t.Fatalf("notifier b: got %d events, want 1", len(b.sent))
	}
	if a.sent[0].Host != event.Host {
		t.Errorf("notifier a: host = %q, want %q", a.sent[0].Host, event.Host)
	}
}

func TestMultiLogsErrorsButContinues(t *testing.T) {
	failing := &stubNotifier{name: "broken", err: errors.New("connection refused")}
	ok := &stubNotifier{name: "ok"}
	log := &spyLogger{}
	m := NewMulti(log, failing, ok)

	if !m.Notify(context.Background(), hostEvent(EventHostFailed)) {
		t.Error("Notify() = false, want true when one notifier succeeds")
	}

	// The working notifier should still receive the event.
	if len(ok.sent) != 1 {
		t.Fatalf("ok notifier: got %d events, want 1", len(ok.sent))
	}
	// The error should be logged.
	if len(log.errorCalls) != 1 {
		t.Fatalf("got %d error logs, want 1", len(log.errorCalls))
	}
	if !strings.Contains(log.errorCalls[0].msg, "notification failed") {
		t.Errorf("error log msg = %q, want 'notification failed'", log.errorCalls[0].msg)
	}
}

func TestMultiWithoutNotifiers(t *testing.T) {
	m := NewMulti(&spyLogger{})
	if !m.Notify(context.Background(), hostEvent(EventRunStarted)) {
		t.Error("Notify() = false with no notifiers configured, want true")
	}
}

// --- Webhook tests ---

func TestWebhookSendsPayloadAndHeaders(t *testing.T) {
	var received webhookPayload
	var gotAuth string
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	headers := map[string]string{"Authorization": "Bearer secret123"}
	wh := NewWebhook(srv.URL, headers)
	event := hostEvent(EventHostProvisioned)
	err := wh.Send(context.Background(), event)

	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAuth != "Bearer secret123" {
		t.Errorf("Authorization = %q, want 'Bearer secret123'", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if received.Event != "host_provisioned" {
		t.Errorf("event = %q, want host_provisioned", received.Event)
	}
	if received.Host != event.Host {
		t.Errorf("host = %q, want %q", received.Host, event.Host)
	}
	if !received.Agents["logging"] {
		t.Errorf("agents = %v, want logging true", received.Agents)
	}
}

func TestWebhookRunCompletePayload(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, nil)
	err := wh.Send(context.Background(), Event{
		Type:      EventRunComplete,
		Total:     10,
		Succeeded: 7,
		Failed:    2,
		Skipped:   1,
		Timestamp: time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC),
	})

	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if received.Event != "run_complete" || received.Hosts != 10 || received.Succeeded != 7 {
		t.Errorf("payload = %+v", received)
	}
	if received.Host != "" {
		t.Errorf("run-scoped payload carries host %q", received.Host)
	}
}

func TestWebhookReturnsErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, nil)
	err := wh.Send(context.Background(), hostEvent(EventRunStarted))

	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

// --- LogNotifier tests ---

func TestLogNotifierCallsLogger(t *testing.T) {
	log := &spyLogger{}
	ln := NewLogNotifier(log)

	event := hostEvent(EventHostProvisioned)
	err := ln.Send(context.Background(), event)

	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(log.infoCalls) != 1 {
		t.Fatalf("got %d info calls, want 1", len(log.infoCalls))
	}
	if log.infoCalls[0].msg != "notification event" {
		t.Errorf("msg = %q, want 'notification event'", log.infoCalls[0].msg)
	}

	// Verify structured args contain the event type.
	args := log.infoCalls[0].args
	found := false
	for i := 0; i < len(args)-1; i += 2 {
		if args[i] == "type" && args[i+1] == "host_provisioned" {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("expected type=host_provisioned in log args: %v", args)
	}
}
