// Package policy evaluates tenant-supplied rule documents against raw text.
//
// The engine is deliberately cheap: substring and regex matching only, no
// judge calls, safe to run synchronously on every message. A malformed or
// absent policy must never block traffic, so every parse failure fails open.
package policy

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Rules is the parsed form of a tenant policy document.
type Rules struct {
	// Deny lists terms matched case-insensitively as substrings.
	Deny []string `yaml:"deny"`

	// RegexDeny lists regular expression patterns.
	RegexDeny []string `yaml:"regex_deny"`
}

// Result is the outcome of a policy evaluation.
type Result struct {
	Allowed bool
	// Reason cites the first matching term or pattern when not allowed.
	Reason string
}

// Engine evaluates policy documents. Compiled regexes are cached per pattern
// since tenants reuse the same active policy across requests.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]*regexp.Regexp
}

// NewEngine creates a policy engine.
func NewEngine() *Engine {
	return &Engine{cache: make(map[string]*regexp.Regexp)}
}

// Evaluate checks content against a YAML rule document. First match wins:
// deny terms are checked in order before regex patterns, and ordering only
// affects the reported reason. Unparseable YAML, empty documents, and
// invalid individual patterns all fail open.
func (e *Engine) Evaluate(content, rulesYAML string) Result {
	rules, err := Parse(rulesYAML)
	if err != nil || rules == nil {
		return Result{Allowed: true}
	}

	lower := strings.ToLower(content)
	for _, term := range rules.Deny {
		if term == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(term)) {
			return Result{
				Allowed: false,
				Reason:  fmt.Sprintf("policy violation: found denied term %q", term),
			}
		}
	}

	for _, pattern := range rules.RegexDeny {
		re := e.compile(pattern)
		if re == nil {
			continue
		}
		if re.MatchString(content) {
			return Result{
				Allowed: false,
				Reason:  fmt.Sprintf("policy violation: matches regex %q", pattern),
			}
		}
	}

	return Result{Allowed: true}
}

// Parse decodes a rule document. Returns nil rules for empty input.
func Parse(rulesYAML string) (*Rules, error) {
	if strings.TrimSpace(rulesYAML) == "" {
		return nil, nil
	}
	var rules Rules
	if err := yaml.Unmarshal([]byte(rulesYAML), &rules); err != nil {
		return nil, fmt.Errorf("parse policy rules: %w", err)
	}
	if len(rules.Deny) == 0 && len(rules.RegexDeny) == 0 {
		return nil, nil
	}
	return &rules, nil
}

func (e *Engine) compile(pattern string) *regexp.Regexp {
	e.mu.RLock()
	re, ok := e.cache[pattern]
	e.mu.RUnlock()
	if ok {
		return re
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		// Invalid pattern fails open, but cache the miss to avoid
		// recompiling on every message.
		re = nil
	}
	e.mu.Lock()
	e.cache[pattern] = re
	e.mu.Unlock()
	return re
}
