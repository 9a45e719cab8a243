package evaluator

import (
	"context"
	"reflect"
	"testing"

	"github.com/aegisguard/aegis/internal/judge"
)

func TestDetectPII(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"email", "reach me at alice@example.com", []string{"email"}},
		{"phone", "call 555-867-5309 today", []string{"phone"}},
		{"ssn", "ssn is 123-45-6789", []string{"ssn"}},
		{"multiple", "alice@example.com or 555-867-5309", []string{"email", "phone"}},
		{"clean", "nothing personal here", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectPII(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DetectPII(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestEvaluateOutputPIIBlocks(t *testing.T) {
	ose := NewOutputSafety(nil, discardLogger())

	v := ose.EvaluateOutput(context.Background(), "who is the customer",
		"The customer is reachable at alice@example.com and will respond soon")

	if v.Decision != DecisionBlock {
		t.Fatalf("decision = %q, want block", v.Decision)
	}
	if !reflect.DeepEqual(v.PIITypes, []string{"email"}) {
		t.Errorf("PII types = %v, want [email]", v.PIITypes)
	}
	if v.Scores[CategoryPII] != 1.0 {
		t.Errorf("pii score = %v, want 1.0", v.Scores[CategoryPII])
	}
}

func TestEvaluateOutputHarmfulKeywordBlocks(t *testing.T) {
	ose := NewOutputSafety(nil, discardLogger())

	v := ose.EvaluateOutput(context.Background(), "",
		"Here are detailed instructions on how to make a bomb at home today")

	if v.Decision != DecisionBlock {
		t.Fatalf("decision = %q, want block", v.Decision)
	}
	if v.Scores[CategoryHarmfulKeyword] != 1.0 {
		t.Errorf("keyword score = %v, want 1.0", v.Scores[CategoryHarmfulKeyword])
	}
}

func TestEvaluateOutputJudgeHarmfulBlocks(t *testing.T) {
	j := judge.ClientFunc(func(_ context.Context, _ judge.Request) (string, error) {
		return `{"hallucination_score": 0.1, "harmful": true, "categories": ["violence"], "reasoning": "implicit threat"}`, nil
	})
	ose := NewOutputSafety(j, discardLogger())

	v := ose.EvaluateOutput(context.Background(), "", "a response with no keyword hits at all")

	if v.Decision != DecisionBlock {
		t.Fatalf("decision = %q, want block on judge harmful", v.Decision)
	}
	if v.Method != MethodJudge {
		t.Errorf("method = %q, want judge", v.Method)
	}
}

func TestEvaluateOutputHallucinationFlags(t *testing.T) {
	j := judge.ClientFunc(func(_ context.Context, _ judge.Request) (string, error) {
		return `{"hallucination_score": 0.85, "harmful": false, "categories": [], "reasoning": "invented citation"}`, nil
	})
	ose := NewOutputSafety(j, discardLogger())

	v := ose.EvaluateOutput(context.Background(), "", "According to a 1987 study, cats outnumber people")

	if v.Decision != DecisionFlag {
		t.Fatalf("decision = %q, want flag", v.Decision)
	}
}

func TestEvaluateOutputFallbackShortResponse(t *testing.T) {
	ose := NewOutputSafety(nil, discardLogger())

	v := ose.EvaluateOutput(context.Background(), "", "ok")

	if v.Decision != DecisionFlag {
		t.Fatalf("decision = %q, want flag from short-output heuristic", v.Decision)
	}
	if v.Scores[CategoryHallucination] != 0.9 {
		t.Errorf("hallucination score = %v, want 0.9", v.Scores[CategoryHallucination])
	}
	if v.Method != MethodHeuristic {
		t.Errorf("method = %q, want heuristic", v.Method)
	}
}

func TestEvaluateOutputCleanAllows(t *testing.T) {
	ose := NewOutputSafety(nil, discardLogger())

	v := ose.EvaluateOutput(context.Background(), "",
		"The capital of France is Paris, a city on the Seine")

	if v.Decision != DecisionAllow {
		t.Fatalf("decision = %q, want allow, reasons %v", v.Decision, v.Reasons)
	}
}
