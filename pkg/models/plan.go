package models

import "encoding/json"

// PlanPhase pairs a workflow phase with the mode that handles it.
type PlanPhase struct {
	Name string `json:"phase" db:"phase"` // Workflow phase (e.g., "implementation")
	Mode string `json:"mode" db:"mode"`   // Handling mode label (e.g., "code")
}

// DefaultDelegationPlan returns the static phase-to-mode mapping in execution
// order. Orchestration is the coordinating mode and is not executed as a
// phase of its own.
func DefaultDelegationPlan() []PlanPhase {
	return []PlanPhase{
		{Name: "specification", Mode: "spec-pseudocode"},
		{Name: "architecture", Mode: "architect"},
		{Name: "implementation", Mode: "code"},
		{Name: "testing", Mode: "tdd"},
		{Name: "debugging", Mode: "debug"},
		{Name: "security_review", Mode: "security-review"},
		{Name: "documentation", Mode: "docs-writer"},
		{Name: "integration", Mode: "integration"},
	}
}

// OrchestrationMode labels the coordinating mode on final results.
const OrchestrationMode = "sparc"

// ComplexityScore estimates task difficulty on a 1-10 scale from problem
// statement length, number of flipping tests and patch size.
func ComplexityScore(t *Task) int {
	score := 1

	if n := len(t.ProblemStatement); n > 1000 {
		score += 2
	} else if n > 500 {
		score++
	}

	var tests []string
	if t.FailToPass != "" {
		_ = json.Unmarshal([]byte(t.FailToPass), &tests)
	}
	if n := len(tests); n > 10 {
		score += 3
	} else if n > 5 {
		score += 2
	} else if n > 0 {
		score++
	}

	if n := len(t.Patch); n > 2000 {
		score += 2
	} else if n > 1000 {
		score++
	}

	if score > 10 {
		score = 10
	}
	return score
}

// EstimatedMinutes converts a complexity score into a rough time budget.
func EstimatedMinutes(complexity int) int {
	return 15 + 5*complexity
}
