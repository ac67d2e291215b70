package report_test

import (
	"strings"
	"testing"

	"github.com/agenticsorg/sparc-bench/internal/report"
	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestRenderSummary(t *testing.T) {
	t.Run("ShowsCountsPercentagesAndBars", func(t *testing.T) {
		out := report.RenderSummary([]models.StatusCount{
			{Status: models.CompletedStatus, Count: 3, Percentage: 75.0},
			{Status: models.NotStartedStatus, Count: 1, Percentage: 25.0},
		})
		assert.Contains(t, out, "completed")
		assert.Contains(t, out, "75.00%")
		assert.Contains(t, out, "not_started")
		assert.Contains(t, out, "█")
		assert.Contains(t, out, "total")
		assert.Contains(t, out, "4")
	})

	t.Run("EmptySummary", func(t *testing.T) {
		out := report.RenderSummary(nil)
		assert.Contains(t, out, "No tasks loaded")
	})
}

func TestRenderRepoStatistics(t *testing.T) {
	out := report.RenderRepoStatistics([]models.RepoStatistics{
		{Repo: "django/django", TotalTasks: 10, Completed: 4, AvgSteps: 7.5, CompletionRate: 40.0},
	})
	assert.Contains(t, out, "django/django")
	assert.Contains(t, out, "40.00%")
	assert.Contains(t, out, "7.5")
}

func TestRenderStepAnalytics(t *testing.T) {
	out := report.RenderStepAnalytics(models.StepAnalytics{
		TasksWithSteps: 3, AvgSteps: 10.33, MinSteps: 3, MaxSteps: 20,
		SimpleTasks: 1, MediumTasks: 1, ComplexTasks: 1,
	})
	assert.Contains(t, out, "10.33")
	assert.Contains(t, out, "Simple (1-5):      1")
	assert.Contains(t, out, "Complex (16+):     1")
}

func TestRenderTaskDetails(t *testing.T) {
	minutes := 12.5
	out := report.RenderTaskDetails(models.TaskDetails{
		InstanceID:        "django__django-11099",
		Repo:              "django/django",
		CompletionStatus:  models.CompletedStatus,
		CompletionDetails: "all phases executed",
		StepsTaken:        2,
		StepEntries:       []string{"[2026-01-02 10:00:00] Step 1: a", "[2026-01-02 10:05:00] Step 2: b"},
		DurationMinutes:   &minutes,
	})
	assert.Contains(t, out, "django__django-11099")
	assert.Contains(t, out, "Step 1: a")
	assert.Contains(t, out, "12.5m")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45.0m", report.FormatDuration(45))
	assert.Equal(t, "2h30m", report.FormatDuration(150))
	assert.True(t, strings.HasSuffix(report.FormatDuration(59.9), "m"))
}
