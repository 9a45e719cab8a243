// Package audit writes an append-only JSONL trail of every pipeline decision
// and tool-call evaluation. Content is redacted before it is written.
package audit

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/aegisguard/aegis/internal/redact"
)

// Event is one audit record.
type Event struct {
	Timestamp  string   `json:"timestamp"`
	TenantID   string   `json:"tenant_id"`
	AgentID    string   `json:"agent_id"`
	Kind       string   `json:"kind"` // "message" or "tool_call"
	Direction  string   `json:"direction,omitempty"`
	Content    string   `json:"content"`
	Decision   string   `json:"decision"`
	RiskLevel  string   `json:"risk_level,omitempty"`
	Reasons    []string `json:"reasons,omitempty"`
	IncidentID string   `json:"incident_id,omitempty"`
	State      string   `json:"state"` // terminal pipeline state
}

// Trail is a mutex-guarded JSONL file writer.
type Trail struct {
	file *os.File
	mu   sync.Mutex
}

// Open opens (or creates) the audit file for appending.
func Open(path string) (*Trail, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	return &Trail{file: file}, nil
}

// Log appends one event. The content and reasons pass through redaction so
// inline credentials never reach the audit file.
func (t *Trail) Log(event Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	event.Content = redact.Redact(event.Content)
	for i, r := range event.Reasons {
		event.Reasons[i] = redact.Redact(r)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = t.file.Write(data)
	return err
}

// Close closes the underlying file.
func (t *Trail) Close() error {
	if t.file != nil {
		return t.file.Close()
	}
	return nil
}
