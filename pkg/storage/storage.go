package storage

import (
	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when no task matches the requested instance ID.
var ErrNotFound = errors.New("task not found")

// ErrNotCompleted is returned when a solution is requested for a task that
// has not reached 'completed' status.
var ErrNotCompleted = errors.New("task not completed")

// ErrInvalidStatus is returned when a status update names a value outside
// the five-value enum. The row is never touched.
var ErrInvalidStatus = errors.New("invalid status")

// Store defines the storage operations for the benchmark tracker.
type Store interface {
	// Transaction control
	Begin() (Store, error)
	Commit() error
	Rollback() error
	Close() error

	// Task operations
	SaveTask(t models.Task) error
	GetTask(instanceID string) (models.Task, error)
	GetAvailableTask(repo string, excludeRepos []string) (models.AvailableTask, error)
	GetTasksByRepo(repo string, limit int) ([]models.AvailableTask, error)
	ListTasks(status models.CompletionStatus, repoLike string, limit int) ([]models.Task, error)
	CountTasks() (int, error)
	StartTask(instanceID string) error
	LogStep(instanceID, description string) (int, error)
	UpdateTaskStatus(instanceID string, status models.CompletionStatus, details string) error
	GetSolution(instanceID string) (models.Solution, error)
	GetTaskDetails(instanceID string) (models.TaskDetails, error)

	// Reporting operations
	GetCompletionSummary() ([]models.StatusCount, error)
	GetRepoStatistics() ([]models.RepoStatistics, error)
	GetStepAnalytics() (models.StepAnalytics, error)
	RefreshCompletionSummary() error
}
