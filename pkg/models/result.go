package models

import "time"

// ModeResult is the fabricated output one mode writes for one task. No real
// work happens; the structure mirrors what a live delegation would produce.
type ModeResult struct {
	ExecutionID string                 `json:"execution_id"` // UUID for this delegation
	Mode        string                 `json:"mode"`
	Phase       string                 `json:"phase"`
	TaskID      string                 `json:"task_id"` // Instance ID
	Status      string                 `json:"status"`  // Always "success" for simulated runs
	StartTime   time.Time              `json:"start_time"`
	EndTime     time.Time              `json:"end_time"`
	Output      map[string]interface{} `json:"output"`
	Metadata    ResultMetadata         `json:"metadata"`
}

// ResultMetadata carries task context duplicated into every mode result.
type ResultMetadata struct {
	ComplexityScore  int    `json:"complexity_score"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Repository       string `json:"repository"`
}

// TaskSummary is the per-task outcome embedded in the final result file.
type TaskSummary struct {
	TaskID               string           `json:"task_id"`
	Status               CompletionStatus `json:"status"`
	PhasesExecuted       []string         `json:"phases_executed"`
	TotalPhases          int              `json:"total_phases"`
	StartTime            time.Time        `json:"start_time"`
	EndTime              time.Time        `json:"end_time"`
	ComplexityScore      int              `json:"complexity_score"`
	Repository           string           `json:"repository"`
	ExecutionTimeSeconds int              `json:"execution_time_seconds"`
	Error                string           `json:"error,omitempty"`
}

// FinalResult is written as swe_result_final.json in each task workspace.
type FinalResult struct {
	TaskSummary TaskSummary           `json:"task_summary"`
	ModeResults map[string]ModeResult `json:"workflow_results"` // Keyed by phase name
	Task        AvailableTask         `json:"task_metadata"`
}

// RunSummary is the whole-run report written once per benchmark run.
type RunSummary struct {
	RunID            string           `json:"run_id"`
	BenchmarkType    string           `json:"benchmark_type"` // e.g., "swe-bench-lite"
	AgentSystem      string           `json:"agent_system"`
	TotalTasks       int              `json:"total_tasks"`
	CompletedTasks   int              `json:"completed_tasks"`
	FailedTasks      int              `json:"failed_tasks"`
	PartialTasks     int              `json:"partial_tasks"`
	SuccessRate      float64          `json:"success_rate"`
	RepoDistribution map[string]int   `json:"repository_distribution"`
	ModePerformance  map[string]int   `json:"mode_performance"` // Executions per mode
	StartTime        time.Time        `json:"start_time"`
	EndTime          time.Time        `json:"end_time"`
	GeneratedAt      time.Time        `json:"generated_at"`
	Statuses         []StatusCount    `json:"status_breakdown,omitempty"`
	Repositories     []RepoStatistics `json:"repository_progress,omitempty"`
}
