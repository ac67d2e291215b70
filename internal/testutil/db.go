// internal/testutil/db.go
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	internal_storage "github.com/agenticsorg/sparc-bench/internal/storage"
	"github.com/agenticsorg/sparc-bench/pkg/models"
)

// TestDB holds a temp-file SQLite store for tests. The file lives under
// t.TempDir() and is removed with it.
type TestDB struct {
	Store *internal_storage.SQLiteStore
	Path  string
}

// SetupTestDB creates a fresh SQLite database in a temp directory.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swe_bench_test.db")
	store, err := internal_storage.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return &TestDB{Store: store, Path: path}
}

// Teardown closes the store.
func (td *TestDB) Teardown(t *testing.T) {
	t.Helper()
	if err := td.Store.Close(); err != nil {
		t.Errorf("Failed to close test store: %v", err)
	}
}

// SampleTask builds a not_started benchmark task with deterministic fields.
func SampleTask(n int) models.Task {
	return models.Task{
		InstanceID:       fmt.Sprintf("django__django-%04d", n),
		Repo:             "django/django",
		BaseCommit:       fmt.Sprintf("abc%04d", n),
		ProblemStatement: fmt.Sprintf("Problem %d: something in the ORM misbehaves when filtering on annotated fields.", n),
		HintsText:        "Check the query compiler.",
		Version:          "3.0",
		Patch:            fmt.Sprintf("diff --git a/django/db/models.py b/django/db/models.py\n-old%d\n+new%d\n", n, n),
		TestPatch:        fmt.Sprintf("diff --git a/tests/test_models.py b/tests/test_models.py\n+test%d\n", n),
		FailToPass:       `["tests.test_models.TestCase.test_filter"]`,
		PassToPass:       `["tests.test_models.TestCase.test_basic"]`,
		CompletionStatus: models.NotStartedStatus,
	}
}

// SeedTasks inserts n sample tasks and returns their instance IDs.
func SeedTasks(t *testing.T, store *internal_storage.SQLiteStore, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		task := SampleTask(i)
		if err := store.SaveTask(task); err != nil {
			t.Fatalf("Failed to seed task %d: %v", i, err)
		}
		ids = append(ids, task.InstanceID)
	}
	return ids
}
