package storage_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	internal_storage "github.com/agenticsorg/sparc-bench/internal/storage"
	"github.com/agenticsorg/sparc-bench/internal/testutil"
	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func TestSQLiteStore(t *testing.T) {
	// Helper to create a fresh store per subtest
	newStore := func(t *testing.T) *internal_storage.SQLiteStore {
		testDB := testutil.SetupTestDB(t)
		t.Cleanup(func() { testDB.Teardown(t) })
		return testDB.Store
	}

	t.Run("SaveAndGetTask", func(t *testing.T) {
		store := newStore(t)
		task := testutil.SampleTask(1)
		err := store.SaveTask(task)
		assert.NoError(t, err)

		saved, err := store.GetTask(task.InstanceID)
		assert.NoError(t, err)
		assert.Equal(t, task.InstanceID, saved.InstanceID)
		assert.Equal(t, task.Repo, saved.Repo)
		assert.Equal(t, task.Patch, saved.Patch)
		assert.Equal(t, models.NotStartedStatus, saved.CompletionStatus)
		assert.Equal(t, 0, saved.StepsTaken)
		assert.NotNil(t, saved.CreatedTimestamp)
	})

	t.Run("SaveTaskUpsertsOnInstanceID", func(t *testing.T) {
		store := newStore(t)
		task := testutil.SampleTask(1)
		assert.NoError(t, store.SaveTask(task))

		task.ProblemStatement = "Updated problem statement long enough to stay valid for loading."
		assert.NoError(t, store.SaveTask(task))

		count, err := store.CountTasks()
		assert.NoError(t, err)
		assert.Equal(t, 1, count)

		saved, err := store.GetTask(task.InstanceID)
		assert.NoError(t, err)
		assert.Equal(t, task.ProblemStatement, saved.ProblemStatement)
	})

	t.Run("GetNonExistingTask", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetTask("missing__missing-0001")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetAvailableTaskHidesSolution", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedTasks(t, store, 3)

		available, err := store.GetAvailableTask("", nil)
		assert.NoError(t, err)
		assert.NotEmpty(t, available.InstanceID)
		assert.NotEmpty(t, available.ProblemStatement)
		// The projection type carries no patch fields at all; make sure the
		// row it points to does.
		full, err := store.GetTask(available.InstanceID)
		assert.NoError(t, err)
		assert.NotEmpty(t, full.Patch)
	})

	t.Run("GetAvailableTaskFiltersByRepo", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedTasks(t, store, 2)
		other := testutil.SampleTask(99)
		other.InstanceID = "astropy__astropy-0099"
		other.Repo = "astropy/astropy"
		assert.NoError(t, store.SaveTask(other))

		available, err := store.GetAvailableTask("astropy/astropy", nil)
		assert.NoError(t, err)
		assert.Equal(t, "astropy__astropy-0099", available.InstanceID)

		_, err = store.GetAvailableTask("missing/repo", nil)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetAvailableTaskHonorsExclusions", func(t *testing.T) {
		store := newStore(t)
		testutil.SeedTasks(t, store, 3)

		_, err := store.GetAvailableTask("", []string{"django/django"})
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetAvailableTaskSkipsStarted", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 2)
		assert.NoError(t, store.StartTask(ids[0]))

		available, err := store.GetAvailableTask("", nil)
		assert.NoError(t, err)
		assert.Equal(t, ids[1], available.InstanceID)
	})

	t.Run("GetTasksByRepo", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 5)

		tasks, err := store.GetTasksByRepo("django/django", 3)
		assert.NoError(t, err)
		assert.Len(t, tasks, 3)
		assert.Equal(t, ids[0], tasks[0].InstanceID)
		assert.Equal(t, ids[1], tasks[1].InstanceID)
	})

	t.Run("StartTaskResetsCounters", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)

		assert.NoError(t, store.StartTask(ids[0]))
		_, err := store.LogStep(ids[0], "first attempt step")
		assert.NoError(t, err)

		// Re-entrant start resets the attempt
		assert.NoError(t, store.StartTask(ids[0]))
		task, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, models.InProgressStatus, task.CompletionStatus)
		assert.Equal(t, 0, task.StepsTaken)
		assert.Equal(t, "", task.StepLog)
		assert.NotNil(t, task.StartedAt)
	})

	t.Run("StartNonExistingTask", func(t *testing.T) {
		store := newStore(t)
		err := store.StartTask("missing__missing-0001")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("LogStepIncrementsAndAppends", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)
		assert.NoError(t, store.StartTask(ids[0]))

		for i := 1; i <= 4; i++ {
			step, err := store.LogStep(ids[0], fmt.Sprintf("step number %d", i))
			assert.NoError(t, err)
			assert.Equal(t, i, step)
		}

		task, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, 4, task.StepsTaken)
		entries := models.SplitStepLog(task.StepLog)
		assert.Len(t, entries, 4)
		for i, entry := range entries {
			assert.Contains(t, entry, fmt.Sprintf("Step %d: step number %d", i+1, i+1))
		}
	})

	t.Run("LogStepOnNonExistingTask", func(t *testing.T) {
		store := newStore(t)
		_, err := store.LogStep("missing__missing-0001", "anything")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("UpdateTaskStatusSetsCompletedAt", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 2)
		assert.NoError(t, store.StartTask(ids[0]))
		assert.NoError(t, store.StartTask(ids[1]))

		assert.NoError(t, store.UpdateTaskStatus(ids[0], models.CompletedStatus, "all tests pass"))
		task, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, models.CompletedStatus, task.CompletionStatus)
		assert.Equal(t, "all tests pass", task.CompletionDetails)
		assert.NotNil(t, task.CompletedAt)

		// partial is not terminal: no completion timestamp
		assert.NoError(t, store.UpdateTaskStatus(ids[1], models.PartialStatus, "ran out of budget"))
		task, err = store.GetTask(ids[1])
		assert.NoError(t, err)
		assert.Equal(t, models.PartialStatus, task.CompletionStatus)
		assert.Nil(t, task.CompletedAt)
	})

	t.Run("UpdateTaskStatusRejectsInvalidStatus", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)
		assert.NoError(t, store.StartTask(ids[0]))

		before, err := store.GetTask(ids[0])
		assert.NoError(t, err)

		err = store.UpdateTaskStatus(ids[0], models.CompletionStatus("done"), "nope")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid status")

		after, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, before.CompletionStatus, after.CompletionStatus)
		assert.Equal(t, before.CompletionDetails, after.CompletionDetails)
	})

	t.Run("UpdateStatusOnNonExistingTask", func(t *testing.T) {
		store := newStore(t)
		err := store.UpdateTaskStatus("missing__missing-0001", models.CompletedStatus, "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetSolutionOnlyAfterCompletion", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)

		_, err := store.GetSolution(ids[0])
		assert.ErrorIs(t, err, storage.ErrNotCompleted)

		assert.NoError(t, store.StartTask(ids[0]))
		_, err = store.GetSolution(ids[0])
		assert.ErrorIs(t, err, storage.ErrNotCompleted)

		assert.NoError(t, store.UpdateTaskStatus(ids[0], models.CompletedStatus, ""))
		sol, err := store.GetSolution(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, ids[0], sol.InstanceID)
		assert.NotEmpty(t, sol.Patch)
		assert.NotEmpty(t, sol.TestPatch)
	})

	t.Run("GetSolutionForNonExistingTask", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetSolution("missing__missing-0001")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("GetTaskDetails", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)
		assert.NoError(t, store.StartTask(ids[0]))
		_, err := store.LogStep(ids[0], "analyzed the problem")
		assert.NoError(t, err)
		_, err = store.LogStep(ids[0], "wrote the fix")
		assert.NoError(t, err)
		assert.NoError(t, store.UpdateTaskStatus(ids[0], models.CompletedStatus, ""))

		details, err := store.GetTaskDetails(ids[0])
		assert.NoError(t, err)
		assert.Len(t, details.StepEntries, 2)
		assert.NotNil(t, details.DurationMinutes)
		assert.GreaterOrEqual(t, *details.DurationMinutes, 0.0)
	})

	t.Run("TaskDetailsExposeNoSolution", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)
		assert.NoError(t, store.StartTask(ids[0]))

		details, err := store.GetTaskDetails(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, models.InProgressStatus, details.CompletionStatus)

		encoded, err := json.Marshal(details)
		assert.NoError(t, err)
		assert.NotContains(t, string(encoded), `"patch"`)
		assert.NotContains(t, string(encoded), `"test_patch"`)
	})

	t.Run("CompletionSummaryPercentagesSumTo100", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 7)
		assert.NoError(t, store.StartTask(ids[0]))
		assert.NoError(t, store.StartTask(ids[1]))
		assert.NoError(t, store.UpdateTaskStatus(ids[1], models.CompletedStatus, ""))
		assert.NoError(t, store.StartTask(ids[2]))
		assert.NoError(t, store.UpdateTaskStatus(ids[2], models.FailedStatus, "tests still failing"))

		summary, err := store.GetCompletionSummary()
		assert.NoError(t, err)
		assert.Len(t, summary, 4)

		total := 0
		pct := 0.0
		for _, row := range summary {
			total += row.Count
			pct += row.Percentage
		}
		assert.Equal(t, 7, total)
		assert.InDelta(t, 100.0, pct, 0.1)
	})

	t.Run("RepoStatistics", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 4)
		other := testutil.SampleTask(50)
		other.InstanceID = "matplotlib__matplotlib-0050"
		other.Repo = "matplotlib/matplotlib"
		assert.NoError(t, store.SaveTask(other))

		assert.NoError(t, store.StartTask(ids[0]))
		_, err := store.LogStep(ids[0], "step")
		assert.NoError(t, err)
		assert.NoError(t, store.UpdateTaskStatus(ids[0], models.CompletedStatus, ""))

		stats, err := store.GetRepoStatistics()
		assert.NoError(t, err)
		assert.Len(t, stats, 2)
		// Ordered by total tasks descending
		assert.Equal(t, "django/django", stats[0].Repo)
		assert.Equal(t, 4, stats[0].TotalTasks)
		assert.Equal(t, 1, stats[0].Completed)
		assert.Equal(t, 3, stats[0].NotStarted)
		assert.Equal(t, 25.0, stats[0].CompletionRate)
		assert.Equal(t, "matplotlib/matplotlib", stats[1].Repo)
		assert.Equal(t, 0.0, stats[1].CompletionRate)
	})

	t.Run("StepAnalyticsBuckets", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 3)
		stepCounts := []int{3, 8, 20} // simple, medium, complex
		for i, id := range ids {
			assert.NoError(t, store.StartTask(id))
			for j := 0; j < stepCounts[i]; j++ {
				_, err := store.LogStep(id, fmt.Sprintf("step %d", j+1))
				assert.NoError(t, err)
			}
			assert.NoError(t, store.UpdateTaskStatus(id, models.CompletedStatus, ""))
		}

		analytics, err := store.GetStepAnalytics()
		assert.NoError(t, err)
		assert.Equal(t, 3, analytics.TasksWithSteps)
		assert.Equal(t, 3, analytics.MinSteps)
		assert.Equal(t, 20, analytics.MaxSteps)
		assert.Equal(t, 1, analytics.SimpleTasks)
		assert.Equal(t, 1, analytics.MediumTasks)
		assert.Equal(t, 1, analytics.ComplexTasks)
	})

	t.Run("RefreshCompletionSummaryPersistsRows", func(t *testing.T) {
		testDB := testutil.SetupTestDB(t)
		t.Cleanup(func() { testDB.Teardown(t) })
		store := testDB.Store
		ids := testutil.SeedTasks(t, store, 2)
		assert.NoError(t, store.StartTask(ids[0]))
		assert.NoError(t, store.RefreshCompletionSummary())

		db, err := internal_storage.OpenDB(testDB.Path)
		assert.NoError(t, err)
		defer db.Close()

		rows := []models.SummaryRow{}
		err = db.Select(&rows, "SELECT status, count, percentage, updated_timestamp FROM completion_summary ORDER BY status")
		assert.NoError(t, err)
		assert.Len(t, rows, 2)
		pct := 0.0
		for _, row := range rows {
			pct += row.Percentage
			assert.False(t, row.UpdatedTimestamp.IsZero())
		}
		assert.InDelta(t, 100.0, pct, 0.1)
	})

	t.Run("TransactionRollbackDiscardsChanges", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)

		txStore, err := store.Begin()
		assert.NoError(t, err)
		assert.NoError(t, txStore.StartTask(ids[0]))
		assert.NoError(t, txStore.Rollback())

		task, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, models.NotStartedStatus, task.CompletionStatus)
	})

	t.Run("TransactionCommitPersistsChanges", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)

		txStore, err := store.Begin()
		assert.NoError(t, err)
		assert.NoError(t, txStore.StartTask(ids[0]))
		_, err = txStore.LogStep(ids[0], "inside the transaction")
		assert.NoError(t, err)
		assert.NoError(t, txStore.Commit())

		task, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.Equal(t, models.InProgressStatus, task.CompletionStatus)
		assert.Equal(t, 1, task.StepsTaken)
	})

	t.Run("StartedAtRoundTripsAsUTC", func(t *testing.T) {
		store := newStore(t)
		ids := testutil.SeedTasks(t, store, 1)
		before := time.Now().UTC().Add(-time.Second)
		assert.NoError(t, store.StartTask(ids[0]))

		task, err := store.GetTask(ids[0])
		assert.NoError(t, err)
		assert.NotNil(t, task.StartedAt)
		assert.True(t, task.StartedAt.After(before))
	})
}
