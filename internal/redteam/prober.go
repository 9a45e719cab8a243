package redteam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	probeTimeout      = 10 * time.Second
	probeMaxBodyBytes = 64 * 1024

	// promptPlaceholder is substituted with the JSON-escaped attack prompt
	// inside the body template.
	promptPlaceholder = "{{prompt}}"

	defaultBodyTemplate = `{"prompt": "{{prompt}}"}`
)

// Prober delivers attack prompts to a live HTTP endpoint.
type Prober struct {
	client *http.Client
	log    *logrus.Logger
}

func NewProber(log *logrus.Logger) *Prober {
	return &Prober{
		client: &http.Client{Timeout: probeTimeout},
		log:    log,
	}
}

// Probe posts the attack prompt to the target and returns the response body.
// The prompt is JSON-escaped before substitution so templates stay valid
// regardless of what the generator produced.
func (p *Prober) Probe(ctx context.Context, attackPrompt string, target Target) (string, error) {
	method := target.Method
	if method == "" {
		method = http.MethodPost
	}
	template := target.BodyTemplate
	if template == "" {
		template = defaultBodyTemplate
	}

	escaped, err := json.Marshal(attackPrompt)
	if err != nil {
		return "", fmt.Errorf("escape prompt: %w", err)
	}
	// Strip the quotes json.Marshal adds around the string.
	body := strings.ReplaceAll(template, promptPlaceholder, string(escaped[1:len(escaped)-1]))

	req, err := http.NewRequestWithContext(ctx, method, target.URL, strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build probe request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("probe target: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, probeMaxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("read probe response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("probe target: status %d", resp.StatusCode)
	}

	p.log.WithFields(logrus.Fields{
		"url":    target.URL,
		"status": resp.StatusCode,
	}).Debug("probed target")

	return extractResponseText(raw), nil
}

// extractResponseText pulls a plausible text field out of a JSON response
// body, falling back to the raw body for non-JSON targets.
func extractResponseText(raw []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return string(raw)
	}
	for _, key := range []string{"response", "output", "text", "message", "content"} {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return string(raw)
}
