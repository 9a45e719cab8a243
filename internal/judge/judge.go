// Package judge provides the remote LLM judge client used by the evaluators
// and the red-team engine.
//
// The judge is an unreliable collaborator: it can be slow, rate-limited, or
// return malformed output. Callers treat every error from this package as
// "judge unavailable" and degrade to their deterministic stage. The client is
// injected at construction time so tests can substitute a scripted judge.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when the judge endpoint cannot produce a usable
// response (transport failure, timeout, non-200 status, or empty completion).
var ErrUnavailable = errors.New("judge unavailable")

// Request is a single completion request to the judge.
type Request struct {
	// Prompt is the full instruction sent as a single user message.
	Prompt string

	// Model overrides the client's default model when non-empty. The
	// red-team generator uses a different model than the evaluators.
	Model string

	// JSONOnly requests a structured JSON response from the endpoint.
	JSONOnly bool

	// MaxTokens caps the completion length. Zero means the client default.
	MaxTokens int

	// Temperature controls sampling. Evaluators use a low value for
	// deterministic scoring; the attack generator uses a higher one.
	Temperature float64
}

// Client is the minimal judge surface the evaluators depend on.
type Client interface {
	// Complete sends the request and returns the raw completion text.
	// The context deadline is the hard per-call timeout.
	Complete(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, req Request) (string, error)

func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// HTTPClient talks to an OpenAI-compatible chat-completions endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	log     *logrus.Logger
}

// Config holds the judge endpoint settings.
type Config struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// TimeoutSeconds is the per-call cap applied when the caller's context
	// carries no earlier deadline.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// DefaultTimeout bounds every judge call when the config leaves it unset.
const DefaultTimeout = 5 * time.Second

// NewHTTPClient creates a judge client for an OpenAI-compatible endpoint.
func NewHTTPClient(cfg Config, log *logrus.Logger) *HTTPClient {
	timeout := DefaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete implements Client against the chat-completions API.
func (c *HTTPClient) Complete(ctx context.Context, req Request) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", fmt.Errorf("%w: endpoint not configured", ErrUnavailable)
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	body := chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.JSONOnly {
		body.ResponseFormat = &respFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal judge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// DecodeJSON parses a judge completion into v. Completions sometimes arrive
// wrapped in markdown code fences even when JSON mode was requested, so the
// fences are stripped before decoding. A decode failure means the judge
// response is unusable and is reported as ErrUnavailable.
func DecodeJSON(raw string, v any) error {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	return nil
}
