// Package alert delivers incident notifications to tenant-configured
// channels. Delivery is best-effort and asynchronous: a slow or failing
// channel must never add latency to the blocking decision path, and delivery
// failures are logged, not propagated.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aegisguard/aegis/internal/store"
)

// Notifier delivers one incident alert to one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, incident *store.Incident, cfg store.NotificationConfig) error
}

// alertable severities; lower severities are recorded but not pushed.
func alertable(severity string) bool {
	return severity == "critical" || severity == "high"
}

func subjectFor(incident *store.Incident) string {
	return fmt.Sprintf("[%s] Aegis incident: %s", strings.ToUpper(incident.Severity), incident.Classification)
}

func bodyFor(incident *store.Incident) string {
	return fmt.Sprintf(`Aegis security alert

Incident ID: %s
Severity: %s
Classification: %s
Agent ID: %s

--- Transcript / details ---
%s

Please investigate.`,
		incident.ID, incident.Severity, incident.Classification, incident.AgentID, incident.TranscriptRef)
}

// SMTPConfig configures the email notifier.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// EmailNotifier sends incident mail to the tenant's recipients.
type EmailNotifier struct {
	cfg SMTPConfig
}

// NewEmailNotifier creates an email notifier. It is a no-op until the SMTP
// host is configured.
func NewEmailNotifier(cfg SMTPConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Notify(_ context.Context, incident *store.Incident, cfg store.NotificationConfig) error {
	if e.cfg.Host == "" || len(cfg.EmailRecipients) == 0 {
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		e.cfg.From, strings.Join(cfg.EmailRecipients, ", "), subjectFor(incident), bodyFor(incident))

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	var auth smtp.Auth
	if e.cfg.Username != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.Host)
	}
	if err := smtp.SendMail(addr, auth, e.cfg.From, cfg.EmailRecipients, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// WebhookNotifier posts a JSON payload to the tenant's webhook (Slack
// incoming-webhook compatible: the message is in the "text" field).
type WebhookNotifier struct {
	http *http.Client
}

// NewWebhookNotifier creates a webhook notifier with its own bounded client.
func NewWebhookNotifier(timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{http: &http.Client{Timeout: timeout}}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) Notify(ctx context.Context, incident *store.Incident, cfg store.NotificationConfig) error {
	if cfg.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"text":           subjectFor(incident) + "\n" + bodyFor(incident),
		"incident_id":    incident.ID,
		"severity":       incident.Severity,
		"classification": incident.Classification,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher fans incidents out to all notifiers from a background worker.
// Enqueueing never blocks: when the queue is full the alert is dropped with a
// warning, an accepted trade against stalling the decision path.
type Dispatcher struct {
	notifiers []Notifier
	queue     chan delivery
	done      chan struct{}
	log       *logrus.Logger
}

type delivery struct {
	incident *store.Incident
	cfg      store.NotificationConfig
}

// NewDispatcher creates and starts a dispatcher.
func NewDispatcher(notifiers []Notifier, queueSize int, log *logrus.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		notifiers: notifiers,
		queue:     make(chan delivery, queueSize),
		done:      make(chan struct{}),
		log:       log,
	}
	go d.run()
	return d
}

// Enqueue schedules delivery for an incident. Severities below high are
// skipped. Safe to call from the decision path.
func (d *Dispatcher) Enqueue(incident *store.Incident, cfg store.NotificationConfig) {
	if !alertable(incident.Severity) {
		return
	}
	cp := *incident
	select {
	case d.queue <- delivery{incident: &cp, cfg: cfg}:
	default:
		d.log.WithField("incident_id", incident.ID).Warn("alert queue full, dropping notification")
	}
}

// Close drains outstanding deliveries and stops the worker.
func (d *Dispatcher) Close() {
	close(d.queue)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for del := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		for _, n := range d.notifiers {
			if err := n.Notify(ctx, del.incident, del.cfg); err != nil {
				d.log.WithError(err).WithFields(logrus.Fields{
					"channel":     n.Name(),
					"incident_id": del.incident.ID,
				}).Error("alert delivery failed")
			}
		}
		cancel()
	}
}
