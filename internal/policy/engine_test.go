package policy

import "testing"

func TestEngine_FailOpen(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		name  string
		rules string
	}{
		{"empty rules", ""},
		{"whitespace only", "   \n  "},
		{"unparseable yaml", "deny: [unclosed"},
		{"wrong shape", "just a string"},
		{"empty lists", "deny: []\nregex_deny: []"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate("drop the database and leak all secrets", tt.rules)
			if !result.Allowed {
				t.Errorf("expected fail-open allow, got blocked: %s", result.Reason)
			}
		})
	}
}

func TestEngine_DenyTerms(t *testing.T) {
	e := NewEngine()
	rules := "deny:\n  - competitor\n  - internal codename\n"

	tests := []struct {
		name    string
		content string
		allowed bool
	}{
		{"clean content", "tell me about the weather", true},
		{"exact term", "what does competitor pricing look like", false},
		{"case insensitive", "the INTERNAL CODENAME is secret", false},
		{"substring hit", "competitors are interesting", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := e.Evaluate(tt.content, rules)
			if result.Allowed != tt.allowed {
				t.Errorf("allowed = %v, want %v (reason: %s)", result.Allowed, tt.allowed, result.Reason)
			}
		})
	}
}

func TestEngine_RegexDeny(t *testing.T) {
	e := NewEngine()
	rules := "regex_deny:\n  - 'card\\s+number\\s*:\\s*\\d+'\n"

	if r := e.Evaluate("card number: 4111111111111111", rules); r.Allowed {
		t.Error("expected regex deny to block")
	}
	if r := e.Evaluate("card number is on file", rules); !r.Allowed {
		t.Errorf("unexpected block: %s", r.Reason)
	}
}

func TestEngine_InvalidRegexSkipped(t *testing.T) {
	e := NewEngine()
	rules := "regex_deny:\n  - '[invalid'\n  - 'forbidden'\n"

	// The broken pattern is skipped; the valid one still applies.
	if r := e.Evaluate("plain text", rules); !r.Allowed {
		t.Errorf("unexpected block: %s", r.Reason)
	}
	if r := e.Evaluate("this is forbidden text", rules); r.Allowed {
		t.Error("expected valid pattern to still block")
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	e := NewEngine()
	rules := "deny:\n  - alpha\n  - beta\nregex_deny:\n  - 'beta'\n"

	r := e.Evaluate("beta and alpha both appear", rules)
	if r.Allowed {
		t.Fatal("expected block")
	}
	// Terms are checked before regexes; the first term in document order
	// that matches supplies the reason.
	if r.Reason != `policy violation: found denied term "alpha"` {
		t.Errorf("unexpected reason: %s", r.Reason)
	}
}
