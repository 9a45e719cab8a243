// Package evaluator implements the three content classifiers: the prompt
// risk evaluator for inbound text, the output safety evaluator for outbound
// text, and the action intent monitor for tool calls.
//
// Every evaluator is two-staged: a deterministic pattern stage that always
// runs and costs no I/O, and an optional remote-judge stage bounded by a hard
// timeout. Judge failures are logged and swallowed; the deterministic result
// is always returned. No evaluator mutates stored state — verdicts are
// ephemeral and the pipeline decides what to persist.
package evaluator

// Decision is the closed set of outcomes an evaluator can reach.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionFlag  Decision = "flag"
	DecisionBlock Decision = "block"
)

// RiskLevel buckets the aggregate risk score for reporting and incident
// severity. Level and decision thresholds are configured independently;
// the pairs below are pinned together by a test so they cannot drift apart
// unnoticed.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Method records which stage produced the final scores.
type Method string

const (
	MethodHeuristic Method = "heuristic"
	MethodJudge     Method = "judge"
)

// Risk-level bucket thresholds (exclusive lower bounds).
const (
	riskCriticalAbove = 0.8
	riskHighAbove     = 0.5
	riskMediumAbove   = 0.2
)

// flagAbove is the decision threshold shared by PRE and AIM: any aggregate
// score above it yields a flag.
const flagAbove = 0.3

// Verdict is the result of one evaluation call. It is produced per call and
// never persisted as its own entity.
type Verdict struct {
	// Scores holds the per-category risk scores in [0,1].
	Scores map[string]float64 `json:"scores"`

	// RiskScore is the maximum category score.
	RiskScore float64 `json:"risk_score"`

	// RiskLevel buckets RiskScore.
	RiskLevel RiskLevel `json:"risk_level"`

	// Decision is the evaluator's own recommendation. Callers may branch
	// on RiskLevel instead; see the pipeline.
	Decision Decision `json:"decision"`

	// Method is judge when the remote stage contributed, else heuristic.
	Method Method `json:"method"`

	// Reasons collects human-readable explanations for non-zero scores.
	Reasons []string `json:"reasons,omitempty"`

	// PIITypes lists detected PII categories by type, never by value.
	PIITypes []string `json:"pii_types,omitempty"`

	// Remediation is a sanitized rewrite of the input with every matched
	// span redacted. Empty when nothing matched.
	Remediation string `json:"remediation,omitempty"`
}

// maxScore returns the highest category score.
func maxScore(scores map[string]float64) float64 {
	var max float64
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	return max
}

// levelFor buckets a risk score into a RiskLevel.
func levelFor(score float64) RiskLevel {
	switch {
	case score > riskCriticalAbove:
		return RiskCritical
	case score > riskHighAbove:
		return RiskHigh
	case score > riskMediumAbove:
		return RiskMedium
	default:
		return RiskLow
	}
}
