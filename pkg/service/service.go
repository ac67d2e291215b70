package service

import (
	"fmt"

	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/storage"
	"github.com/pkg/errors"
)

// Logger defines the logging interface for TaskService
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// TaskService exposes the benchmark tracking operations. Every mutating
// operation runs inside a transaction; reads go straight to the store.
type TaskService struct {
	store  storage.Store
	logger Logger
}

func NewTaskService(store storage.Store, logger Logger) *TaskService {
	return &TaskService{
		store:  store,
		logger: logger,
	}
}

// GetAvailableTask returns a random unstarted task. The result never carries
// solution fields.
func (ts *TaskService) GetAvailableTask(repo string, excludeRepos []string) (models.AvailableTask, error) {
	return ts.store.GetAvailableTask(repo, excludeRepos)
}

// GetTasksByRepo lists unstarted tasks for one repository.
func (ts *TaskService) GetTasksByRepo(repo string, limit int) ([]models.AvailableTask, error) {
	if repo == "" {
		return nil, errors.New("repository cannot be empty")
	}
	return ts.store.GetTasksByRepo(repo, limit)
}

func (ts *TaskService) GetTask(instanceID string) (models.Task, error) {
	return ts.store.GetTask(instanceID)
}

func (ts *TaskService) ListTasks(status models.CompletionStatus, repoLike string, limit int) ([]models.Task, error) {
	if status != "" && !status.Valid() {
		return nil, errors.Wrapf(storage.ErrInvalidStatus, "'%s'; must be one of: %v", status, models.ValidStatuses())
	}
	return ts.store.ListTasks(status, repoLike, limit)
}

func (ts *TaskService) CountTasks() (int, error) {
	return ts.store.CountTasks()
}

// StartTask moves a task to in_progress and resets its step counters.
func (ts *TaskService) StartTask(instanceID string) (err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		ts.logger.Errorf("Failed to begin transaction for StartTask: %v", err)
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			ts.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.StartTask(instanceID); err != nil {
		return err
	}
	ts.logger.Infof("Started task '%s'", instanceID)
	return nil
}

// LogStep appends a step entry and returns the new step number. The read
// and the write share one transaction, so concurrent callers cannot skip
// or duplicate step numbers.
func (ts *TaskService) LogStep(instanceID, description string) (step int, err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		ts.logger.Errorf("Failed to begin transaction for LogStep: %v", err)
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			ts.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	step, err = txStore.LogStep(instanceID, description)
	if err != nil {
		return 0, err
	}
	return step, nil
}

// UpdateTaskStatus validates the status before any write. An invalid status
// leaves the row untouched.
func (ts *TaskService) UpdateTaskStatus(instanceID string, status models.CompletionStatus, details string) (err error) {
	if !status.Valid() {
		return errors.Wrapf(storage.ErrInvalidStatus, "'%s'; must be one of: %v", status, models.ValidStatuses())
	}

	txStore, err := ts.store.Begin()
	if err != nil {
		ts.logger.Errorf("Failed to begin transaction for UpdateTaskStatus: %v", err)
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			ts.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	if err = txStore.UpdateTaskStatus(instanceID, status, details); err != nil {
		return err
	}
	ts.logger.Infof("Updated task '%s' to status '%s'", instanceID, status)
	return nil
}

// GetSolution returns the gold patches for a completed task.
func (ts *TaskService) GetSolution(instanceID string) (models.Solution, error) {
	return ts.store.GetSolution(instanceID)
}

func (ts *TaskService) GetTaskDetails(instanceID string) (models.TaskDetails, error) {
	return ts.store.GetTaskDetails(instanceID)
}

func (ts *TaskService) GetCompletionSummary() ([]models.StatusCount, error) {
	return ts.store.GetCompletionSummary()
}

func (ts *TaskService) GetRepoStatistics() ([]models.RepoStatistics, error) {
	return ts.store.GetRepoStatistics()
}

func (ts *TaskService) GetStepAnalytics() (models.StepAnalytics, error) {
	return ts.store.GetStepAnalytics()
}

// ImportTasks upserts a batch of tasks and refreshes the persisted summary.
// Returns the number of rows written.
func (ts *TaskService) ImportTasks(tasks []models.Task) (loaded int, err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		ts.logger.Errorf("Failed to begin transaction for ImportTasks: %v", err)
		return 0, fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			ts.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()

	for _, t := range tasks {
		if err = txStore.SaveTask(t); err != nil {
			return loaded, fmt.Errorf("failed to save task %s: %v", t.InstanceID, err)
		}
		loaded++
	}
	if err = txStore.RefreshCompletionSummary(); err != nil {
		return loaded, err
	}
	ts.logger.Infof("Imported %d tasks", loaded)
	return loaded, nil
}

// RefreshSummary rewrites the completion_summary table.
func (ts *TaskService) RefreshSummary() (err error) {
	txStore, err := ts.store.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := txStore.Rollback(); rollbackErr != nil {
				ts.logger.Errorf("Failed to rollback: %v", rollbackErr)
			}
			return
		}
		if commitErr := txStore.Commit(); commitErr != nil {
			ts.logger.Errorf("Failed to commit: %v", commitErr)
			err = commitErr
		}
	}()
	return txStore.RefreshCompletionSummary()
}
