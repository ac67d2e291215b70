package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StepLogTimeLayout is the timestamp layout used inside step log entries.
const StepLogTimeLayout = "2006-01-02 15:04:05"

type CompletionStatus string

const (
	NotStartedStatus CompletionStatus = "not_started"
	InProgressStatus CompletionStatus = "in_progress"
	CompletedStatus  CompletionStatus = "completed"
	FailedStatus     CompletionStatus = "failed"
	PartialStatus    CompletionStatus = "partial"
)

// ValidStatuses lists every accepted completion status in display order.
func ValidStatuses() []CompletionStatus {
	return []CompletionStatus{NotStartedStatus, InProgressStatus, CompletedStatus, FailedStatus, PartialStatus}
}

// Valid reports whether s is one of the five accepted completion statuses.
func (s CompletionStatus) Valid() bool {
	switch s {
	case NotStartedStatus, InProgressStatus, CompletedStatus, FailedStatus, PartialStatus:
		return true
	}
	return false
}

// Terminal reports whether s closes out a task attempt. Only completed and
// failed record a completion timestamp; partial leaves the task resumable.
func (s CompletionStatus) Terminal() bool {
	return s == CompletedStatus || s == FailedStatus
}

// Task represents one benchmark instance row.
type Task struct {
	ID                     int64            `json:"id" db:"id"`                                             // Auto-increment row ID
	InstanceID             string           `json:"instance_id" db:"instance_id"`                           // Unique dataset key (e.g., "django__django-11099")
	Repo                   string           `json:"repo" db:"repo"`                                         // Source repository (e.g., "django/django")
	BaseCommit             string           `json:"base_commit" db:"base_commit"`                           // Commit the problem applies to
	ProblemStatement       string           `json:"problem_statement" db:"problem_statement"`               // Issue text shown to solvers
	HintsText              string           `json:"hints_text" db:"hints_text"`                             // Optional hints from the dataset
	CreatedAt              string           `json:"created_at" db:"created_at"`                             // Dataset-provided creation time (verbatim)
	Version                string           `json:"version" db:"version"`                                   // Dataset version tag
	Patch                  string           `json:"patch" db:"patch"`                                       // Gold solution patch
	TestPatch              string           `json:"test_patch" db:"test_patch"`                             // Gold test patch
	FailToPass             string           `json:"fail_to_pass" db:"fail_to_pass"`                         // JSON-encoded list of tests that must flip
	PassToPass             string           `json:"pass_to_pass" db:"pass_to_pass"`                         // JSON-encoded list of tests that must keep passing
	EnvironmentSetupCommit string           `json:"environment_setup_commit" db:"environment_setup_commit"` // Commit for environment setup
	CompletionStatus       CompletionStatus `json:"completion_status" db:"completion_status"`               // Lifecycle state
	CompletionDetails      string           `json:"completion_details" db:"completion_details"`             // Free-text outcome notes
	StepsTaken             int              `json:"steps_taken" db:"steps_taken"`                           // Count of logged steps since last start
	StepLog                string           `json:"step_log" db:"step_log"`                                 // Newline-joined step entries
	StartedAt              *time.Time       `json:"started_at,omitempty" db:"started_at"`                   // Nullable start time
	CompletedAt            *time.Time       `json:"completed_at,omitempty" db:"completed_at"`               // Nullable completion time
	CreatedTimestamp       *time.Time       `json:"created_timestamp,omitempty" db:"created_timestamp"`     // Row insertion time
}

// AvailableTask is the projection handed to a solver: problem metadata only,
// never the solution patches.
type AvailableTask struct {
	InstanceID       string `json:"instance_id" db:"instance_id"`
	Repo             string `json:"repo" db:"repo"`
	ProblemStatement string `json:"problem_statement" db:"problem_statement"`
	HintsText        string `json:"hints_text" db:"hints_text"`
	FailToPass       string `json:"fail_to_pass" db:"fail_to_pass"`
	PassToPass       string `json:"pass_to_pass" db:"pass_to_pass"`
	BaseCommit       string `json:"base_commit" db:"base_commit"`
	Version          string `json:"version" db:"version"`
}

// Solution carries the gold patches for a completed task.
type Solution struct {
	InstanceID       string           `json:"instance_id" db:"instance_id"`
	Patch            string           `json:"patch" db:"patch"`
	TestPatch        string           `json:"test_patch" db:"test_patch"`
	CompletionStatus CompletionStatus `json:"completion_status" db:"completion_status"`
}

// Available projects the task down to its solver-visible fields.
func (t *Task) Available() AvailableTask {
	return AvailableTask{
		InstanceID:       t.InstanceID,
		Repo:             t.Repo,
		ProblemStatement: t.ProblemStatement,
		HintsText:        t.HintsText,
		FailToPass:       t.FailToPass,
		PassToPass:       t.PassToPass,
		BaseCommit:       t.BaseCommit,
		Version:          t.Version,
	}
}

// FailToPassTests decodes the fail_to_pass list. A malformed or empty value
// yields nil.
func (t *Task) FailToPassTests() []string {
	return decodeTestList(t.FailToPass)
}

// PassToPassTests decodes the pass_to_pass list.
func (t *Task) PassToPassTests() []string {
	return decodeTestList(t.PassToPass)
}

func decodeTestList(raw string) []string {
	if raw == "" {
		return nil
	}
	var tests []string
	if err := json.Unmarshal([]byte(raw), &tests); err != nil {
		return nil
	}
	return tests
}

// StepEntry formats one step log line: "[2025-01-02 15:04:05] Step 3: ...".
func StepEntry(step int, ts time.Time, description string) string {
	return fmt.Sprintf("[%s] Step %d: %s", ts.UTC().Format(StepLogTimeLayout), step, description)
}

// AppendStep joins entry onto an existing newline-separated step log.
func AppendStep(log, entry string) string {
	if log == "" {
		return entry
	}
	return log + "\n" + entry
}

// SplitStepLog breaks a stored step log into its entries. An empty log yields
// an empty, non-nil slice so callers can serialize it as [].
func SplitStepLog(log string) []string {
	if log == "" {
		return []string{}
	}
	return strings.Split(log, "\n")
}
