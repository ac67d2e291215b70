package models

import "time"

// StatusCount is one row of the completion summary.
type StatusCount struct {
	Status     CompletionStatus `json:"status" db:"completion_status"`
	Count      int              `json:"count" db:"count"`
	Percentage float64          `json:"percentage" db:"percentage"` // Share of all tasks, two decimals
}

// RepoStatistics aggregates completion progress for one repository.
type RepoStatistics struct {
	Repo               string  `json:"repo" db:"repo"`
	TotalTasks         int     `json:"total_tasks" db:"total_tasks"`
	Completed          int     `json:"completed" db:"completed"`
	InProgress         int     `json:"in_progress" db:"in_progress"`
	Failed             int     `json:"failed" db:"failed"`
	Partial            int     `json:"partial" db:"partial"`
	NotStarted         int     `json:"not_started" db:"not_started"`
	AvgSteps           float64 `json:"avg_steps" db:"avg_steps"`                       // Over tasks with at least one step
	AvgDurationMinutes float64 `json:"avg_duration_minutes" db:"avg_duration_minutes"` // Over tasks with both timestamps
	CompletionRate     float64 `json:"completion_rate" db:"completion_rate"`           // completed / total, percent
}

// StepAnalytics summarizes step counts over completed tasks that logged at
// least one step.
type StepAnalytics struct {
	TasksWithSteps     int     `json:"tasks_with_steps" db:"tasks_with_steps"`
	AvgSteps           float64 `json:"avg_steps" db:"avg_steps"`
	MinSteps           int     `json:"min_steps" db:"min_steps"`
	MaxSteps           int     `json:"max_steps" db:"max_steps"`
	AvgDurationMinutes float64 `json:"avg_duration_minutes" db:"avg_duration_minutes"`
	SimpleTasks        int     `json:"simple_tasks" db:"simple_tasks"`   // 1-5 steps
	MediumTasks        int     `json:"medium_tasks" db:"medium_tasks"`   // 6-15 steps
	ComplexTasks       int     `json:"complex_tasks" db:"complex_tasks"` // 16+ steps
}

// TaskDetails is the tracking view of a single task. Solution fields are
// never part of it; they stay behind the completion gate of GetSolution.
type TaskDetails struct {
	InstanceID        string           `json:"instance_id" db:"instance_id"`
	Repo              string           `json:"repo" db:"repo"`
	ProblemStatement  string           `json:"problem_statement" db:"problem_statement"`
	CompletionStatus  CompletionStatus `json:"completion_status" db:"completion_status"`
	CompletionDetails string           `json:"completion_details" db:"completion_details"`
	StepsTaken        int              `json:"steps_taken" db:"steps_taken"`
	StepLog           string           `json:"-" db:"step_log"`
	StartedAt         *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	StepEntries       []string         `json:"step_entries"`               // StepLog split on newlines
	DurationMinutes   *float64         `json:"duration_minutes,omitempty"` // Set when both timestamps exist
}

// SummaryRow mirrors a persisted completion_summary record.
type SummaryRow struct {
	Status           CompletionStatus `json:"status" db:"status"`
	Count            int              `json:"count" db:"count"`
	Percentage       float64          `json:"percentage" db:"percentage"`
	UpdatedTimestamp time.Time        `json:"updated_timestamp" db:"updated_timestamp"`
}

// RepoCount pairs a repository with its task count.
type RepoCount struct {
	Repo  string `json:"repo" db:"repo"`
	Count int    `json:"count" db:"count"`
}
