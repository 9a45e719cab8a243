package alert

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegisguard/aegis/internal/store"
)

type recordingNotifier struct {
	mu       sync.Mutex
	received []*store.Incident
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Notify(_ context.Context, incident *store.Incident, _ store.NotificationConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, incident)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.received)
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestDispatcher_DeliversHighSeverity(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{rec}, 8, testLogger())

	d.Enqueue(&store.Incident{ID: "i1", Severity: "critical", Classification: store.ClassUnsafeToolUse}, store.NotificationConfig{})
	d.Enqueue(&store.Incident{ID: "i2", Severity: "high", Classification: store.ClassUnsafeOutput}, store.NotificationConfig{})
	d.Close()

	if rec.count() != 2 {
		t.Errorf("expected 2 deliveries, got %d", rec.count())
	}
}

func TestDispatcher_SkipsLowSeverity(t *testing.T) {
	rec := &recordingNotifier{}
	d := NewDispatcher([]Notifier{rec}, 8, testLogger())

	d.Enqueue(&store.Incident{ID: "i1", Severity: "low", Classification: store.ClassAttackAttempt}, store.NotificationConfig{})
	d.Enqueue(&store.Incident{ID: "i2", Severity: "medium", Classification: store.ClassAttackAttempt}, store.NotificationConfig{})
	d.Close()

	if rec.count() != 0 {
		t.Errorf("expected no deliveries for low/medium severity, got %d", rec.count())
	}
}

func TestWebhookNotifier_PostsPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(2 * time.Second)
	incident := &store.Incident{ID: "i1", Severity: "critical", Classification: store.ClassVulnerabilityFound, TranscriptRef: "attack transcript"}

	err := n.Notify(context.Background(), incident, store.NotificationConfig{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got["incident_id"] != "i1" {
		t.Errorf("payload incident_id = %q", got["incident_id"])
	}
	if got["severity"] != "critical" {
		t.Errorf("payload severity = %q", got["severity"])
	}
}

func TestWebhookNotifier_NoURLIsNoop(t *testing.T) {
	n := NewWebhookNotifier(time.Second)
	err := n.Notify(context.Background(), &store.Incident{ID: "i1", Severity: "high"}, store.NotificationConfig{})
	if err != nil {
		t.Errorf("expected nil for unconfigured webhook, got %v", err)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(time.Second)
	err := n.Notify(context.Background(), &store.Incident{ID: "i1", Severity: "high"}, store.NotificationConfig{WebhookURL: srv.URL})
	if err == nil {
		t.Error("expected error on 502 response")
	}
}
