// Package report renders the aggregation queries as aligned text tables for
// the CLI and the run summary.
package report

import (
	"fmt"
	"strings"

	"github.com/agenticsorg/sparc-bench/pkg/models"
)

const barWidth = 20

// RenderSummary formats the per-status completion breakdown.
func RenderSummary(summary []models.StatusCount) string {
	var b strings.Builder
	b.WriteString("Completion Summary\n")
	b.WriteString("==================\n")
	if len(summary) == 0 {
		b.WriteString("No tasks loaded.\n")
		return b.String()
	}
	total := 0
	for _, row := range summary {
		total += row.Count
	}
	for _, row := range summary {
		b.WriteString(fmt.Sprintf("%-12s %5d  %6.2f%%  %s\n",
			row.Status, row.Count, row.Percentage, bar(row.Percentage)))
	}
	b.WriteString(fmt.Sprintf("%-12s %5d\n", "total", total))
	return b.String()
}

// RenderRepoStatistics formats per-repository completion progress.
func RenderRepoStatistics(stats []models.RepoStatistics) string {
	var b strings.Builder
	b.WriteString("Repository Statistics\n")
	b.WriteString("=====================\n")
	if len(stats) == 0 {
		b.WriteString("No tasks loaded.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("%-32s %6s %10s %7s %8s %10s %10s\n",
		"repo", "total", "completed", "failed", "partial", "avg steps", "rate"))
	for _, row := range stats {
		b.WriteString(fmt.Sprintf("%-32s %6d %10d %7d %8d %10.1f %9.2f%%\n",
			row.Repo, row.TotalTasks, row.Completed, row.Failed, row.Partial,
			row.AvgSteps, row.CompletionRate))
	}
	return b.String()
}

// RenderStepAnalytics formats the step-count distribution over completed
// tasks.
func RenderStepAnalytics(a models.StepAnalytics) string {
	var b strings.Builder
	b.WriteString("Step Analytics\n")
	b.WriteString("==============\n")
	if a.TasksWithSteps == 0 {
		b.WriteString("No completed tasks with steps.\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Tasks with steps:  %d\n", a.TasksWithSteps))
	b.WriteString(fmt.Sprintf("Steps (avg/min/max): %.2f / %d / %d\n", a.AvgSteps, a.MinSteps, a.MaxSteps))
	b.WriteString(fmt.Sprintf("Avg duration:      %s\n", FormatDuration(a.AvgDurationMinutes)))
	b.WriteString(fmt.Sprintf("Simple (1-5):      %d\n", a.SimpleTasks))
	b.WriteString(fmt.Sprintf("Medium (6-15):     %d\n", a.MediumTasks))
	b.WriteString(fmt.Sprintf("Complex (16+):     %d\n", a.ComplexTasks))
	return b.String()
}

// RenderTaskDetails formats the full tracking view of one task.
func RenderTaskDetails(d models.TaskDetails) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Task %s\n", d.InstanceID))
	b.WriteString(strings.Repeat("=", len(d.InstanceID)+5) + "\n")
	b.WriteString(fmt.Sprintf("Repo:    %s\n", d.Repo))
	b.WriteString(fmt.Sprintf("Status:  %s\n", d.CompletionStatus))
	if d.CompletionDetails != "" {
		b.WriteString(fmt.Sprintf("Details: %s\n", d.CompletionDetails))
	}
	if d.DurationMinutes != nil {
		b.WriteString(fmt.Sprintf("Duration: %s\n", FormatDuration(*d.DurationMinutes)))
	}
	b.WriteString(fmt.Sprintf("Steps (%d):\n", d.StepsTaken))
	for _, entry := range d.StepEntries {
		b.WriteString("  " + entry + "\n")
	}
	return b.String()
}

// RenderRunSummary formats the whole-run report printed after a benchmark
// run.
func RenderRunSummary(s models.RunSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Benchmark Run %s\n", s.RunID))
	b.WriteString(fmt.Sprintf("Type: %s  Agent: %s\n", s.BenchmarkType, s.AgentSystem))
	b.WriteString(fmt.Sprintf("Tasks: %d  Completed: %d  Failed: %d  Partial: %d  Success: %.2f%%\n",
		s.TotalTasks, s.CompletedTasks, s.FailedTasks, s.PartialTasks, s.SuccessRate))
	if len(s.Statuses) > 0 {
		b.WriteString("\n" + RenderSummary(s.Statuses))
	}
	if len(s.Repositories) > 0 {
		b.WriteString("\n" + RenderRepoStatistics(s.Repositories))
	}
	return b.String()
}

// FormatDuration renders minutes as "Xm" or "XhYm".
func FormatDuration(minutes float64) string {
	if minutes < 60 {
		return fmt.Sprintf("%.1fm", minutes)
	}
	hours := int(minutes) / 60
	rest := minutes - float64(hours*60)
	return fmt.Sprintf("%dh%.0fm", hours, rest)
}

// bar renders a percentage as a fixed-width unicode bar.
func bar(percentage float64) string {
	filled := int(percentage/100*barWidth + 0.5)
	if filled > barWidth {
		filled = barWidth
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
