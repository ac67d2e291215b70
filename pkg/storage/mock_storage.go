package storage

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/pkg/errors"
)

// mockStore implements storage.Store with in-memory storage
type mockStore struct {
	tasks     []models.Task
	nextID    int64 // For row IDs
	committed bool  // Transaction state
}

func NewMockStore() Store {
	return &mockStore{}
}

func (m *mockStore) Begin() (Store, error) {
	m.committed = false
	return m, nil
}

func (m *mockStore) Commit() error {
	if m.committed {
		return errors.New("already committed")
	}
	m.committed = true
	return nil
}

func (m *mockStore) Rollback() error {
	if m.committed {
		return errors.New("cannot rollback committed transaction")
	}
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) SaveTask(t models.Task) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	if t.CompletionStatus == "" {
		t.CompletionStatus = models.NotStartedStatus
	}
	now := time.Now().UTC()
	t.CreatedTimestamp = &now
	// Upsert keyed on instance_id
	for i, existing := range m.tasks {
		if existing.InstanceID == t.InstanceID {
			t.ID = existing.ID
			m.tasks[i] = t
			return nil
		}
	}
	m.nextID++
	t.ID = m.nextID
	m.tasks = append(m.tasks, t)
	return nil
}

func (m *mockStore) GetTask(instanceID string) (models.Task, error) {
	for _, t := range m.tasks {
		if t.InstanceID == instanceID {
			return t, nil
		}
	}
	return models.Task{}, ErrNotFound
}

func (m *mockStore) GetAvailableTask(repo string, excludeRepos []string) (models.AvailableTask, error) {
	excluded := make(map[string]bool, len(excludeRepos))
	for _, r := range excludeRepos {
		excluded[r] = true
	}
	var candidates []models.Task
	for _, t := range m.tasks {
		if t.CompletionStatus != models.NotStartedStatus {
			continue
		}
		if repo != "" && t.Repo != repo {
			continue
		}
		if excluded[t.Repo] {
			continue
		}
		candidates = append(candidates, t)
	}
	if len(candidates) == 0 {
		return models.AvailableTask{}, ErrNotFound
	}
	return toAvailable(candidates[rand.Intn(len(candidates))]), nil
}

func (m *mockStore) GetTasksByRepo(repo string, limit int) ([]models.AvailableTask, error) {
	var tasks []models.AvailableTask
	for _, t := range m.tasks {
		if t.CompletionStatus != models.NotStartedStatus || t.Repo != repo {
			continue
		}
		tasks = append(tasks, toAvailable(t))
		if limit > 0 && len(tasks) == limit {
			break
		}
	}
	return tasks, nil
}

func (m *mockStore) ListTasks(status models.CompletionStatus, repoLike string, limit int) ([]models.Task, error) {
	var tasks []models.Task
	for _, t := range m.tasks {
		if status != "" && t.CompletionStatus != status {
			continue
		}
		if repoLike != "" && !strings.Contains(t.Repo, repoLike) {
			continue
		}
		tasks = append(tasks, t)
		if limit > 0 && len(tasks) == limit {
			break
		}
	}
	return tasks, nil
}

func (m *mockStore) CountTasks() (int, error) {
	return len(m.tasks), nil
}

func (m *mockStore) StartTask(instanceID string) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	for i, t := range m.tasks {
		if t.InstanceID == instanceID {
			now := time.Now().UTC()
			m.tasks[i].CompletionStatus = models.InProgressStatus
			m.tasks[i].StartedAt = &now
			m.tasks[i].StepsTaken = 0
			m.tasks[i].StepLog = ""
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) LogStep(instanceID, description string) (int, error) {
	if m.committed {
		return 0, errors.New("transaction already committed")
	}
	for i, t := range m.tasks {
		if t.InstanceID == instanceID {
			step := t.StepsTaken + 1
			entry := models.StepEntry(step, time.Now().UTC(), description)
			m.tasks[i].StepsTaken = step
			m.tasks[i].StepLog = models.AppendStep(t.StepLog, entry)
			return step, nil
		}
	}
	return 0, ErrNotFound
}

func (m *mockStore) UpdateTaskStatus(instanceID string, status models.CompletionStatus, details string) error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	if !status.Valid() {
		return errors.Wrapf(ErrInvalidStatus, "'%s'; must be one of: %v", status, models.ValidStatuses())
	}
	for i, t := range m.tasks {
		if t.InstanceID == instanceID {
			m.tasks[i].CompletionStatus = status
			m.tasks[i].CompletionDetails = details
			if status.Terminal() {
				now := time.Now().UTC()
				m.tasks[i].CompletedAt = &now
			}
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockStore) GetSolution(instanceID string) (models.Solution, error) {
	for _, t := range m.tasks {
		if t.InstanceID == instanceID {
			if t.CompletionStatus != models.CompletedStatus {
				return models.Solution{}, errors.Wrapf(ErrNotCompleted, "task %s has status '%s'", instanceID, t.CompletionStatus)
			}
			return models.Solution{
				InstanceID:       t.InstanceID,
				Patch:            t.Patch,
				TestPatch:        t.TestPatch,
				CompletionStatus: t.CompletionStatus,
			}, nil
		}
	}
	return models.Solution{}, ErrNotFound
}

func (m *mockStore) GetTaskDetails(instanceID string) (models.TaskDetails, error) {
	for _, t := range m.tasks {
		if t.InstanceID == instanceID {
			details := models.TaskDetails{
				InstanceID:        t.InstanceID,
				Repo:              t.Repo,
				ProblemStatement:  t.ProblemStatement,
				CompletionStatus:  t.CompletionStatus,
				CompletionDetails: t.CompletionDetails,
				StepsTaken:        t.StepsTaken,
				StepLog:           t.StepLog,
				StartedAt:         t.StartedAt,
				CompletedAt:       t.CompletedAt,
				StepEntries:       models.SplitStepLog(t.StepLog),
			}
			if t.StartedAt != nil && t.CompletedAt != nil {
				minutes := round2(t.CompletedAt.Sub(*t.StartedAt).Minutes())
				details.DurationMinutes = &minutes
			}
			return details, nil
		}
	}
	return models.TaskDetails{}, ErrNotFound
}

func (m *mockStore) GetCompletionSummary() ([]models.StatusCount, error) {
	counts := make(map[models.CompletionStatus]int)
	for _, t := range m.tasks {
		counts[t.CompletionStatus]++
	}
	total := len(m.tasks)
	var summary []models.StatusCount
	for status, count := range counts {
		pct := 0.0
		if total > 0 {
			pct = round2(float64(count) / float64(total) * 100)
		}
		summary = append(summary, models.StatusCount{Status: status, Count: count, Percentage: pct})
	}
	sort.Slice(summary, func(i, j int) bool { return summary[i].Status < summary[j].Status })
	return summary, nil
}

func (m *mockStore) GetRepoStatistics() ([]models.RepoStatistics, error) {
	byRepo := make(map[string][]models.Task)
	for _, t := range m.tasks {
		byRepo[t.Repo] = append(byRepo[t.Repo], t)
	}
	var stats []models.RepoStatistics
	for repo, tasks := range byRepo {
		s := models.RepoStatistics{Repo: repo, TotalTasks: len(tasks)}
		var stepSum, stepped int
		var minuteSum float64
		var timed int
		for _, t := range tasks {
			switch t.CompletionStatus {
			case models.CompletedStatus:
				s.Completed++
			case models.InProgressStatus:
				s.InProgress++
			case models.FailedStatus:
				s.Failed++
			case models.PartialStatus:
				s.Partial++
			case models.NotStartedStatus:
				s.NotStarted++
			}
			if t.StepsTaken > 0 {
				stepSum += t.StepsTaken
				stepped++
			}
			if t.StartedAt != nil && t.CompletedAt != nil {
				minuteSum += t.CompletedAt.Sub(*t.StartedAt).Minutes()
				timed++
			}
		}
		if stepped > 0 {
			s.AvgSteps = round1(float64(stepSum) / float64(stepped))
		}
		if timed > 0 {
			s.AvgDurationMinutes = round1(minuteSum / float64(timed))
		}
		s.CompletionRate = round2(float64(s.Completed) / float64(s.TotalTasks) * 100)
		stats = append(stats, s)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].TotalTasks != stats[j].TotalTasks {
			return stats[i].TotalTasks > stats[j].TotalTasks
		}
		return stats[i].Repo < stats[j].Repo
	})
	return stats, nil
}

func (m *mockStore) GetStepAnalytics() (models.StepAnalytics, error) {
	var a models.StepAnalytics
	var stepSum int
	var minuteSum float64
	var timed int
	for _, t := range m.tasks {
		if t.CompletionStatus != models.CompletedStatus || t.StepsTaken == 0 {
			continue
		}
		a.TasksWithSteps++
		stepSum += t.StepsTaken
		if a.MinSteps == 0 || t.StepsTaken < a.MinSteps {
			a.MinSteps = t.StepsTaken
		}
		if t.StepsTaken > a.MaxSteps {
			a.MaxSteps = t.StepsTaken
		}
		switch {
		case t.StepsTaken <= 5:
			a.SimpleTasks++
		case t.StepsTaken <= 15:
			a.MediumTasks++
		default:
			a.ComplexTasks++
		}
		if t.StartedAt != nil && t.CompletedAt != nil {
			minuteSum += t.CompletedAt.Sub(*t.StartedAt).Minutes()
			timed++
		}
	}
	if a.TasksWithSteps > 0 {
		a.AvgSteps = round2(float64(stepSum) / float64(a.TasksWithSteps))
	}
	if timed > 0 {
		a.AvgDurationMinutes = round2(minuteSum / float64(timed))
	}
	return a, nil
}

func (m *mockStore) RefreshCompletionSummary() error {
	if m.committed {
		return errors.New("transaction already committed")
	}
	return nil
}

func toAvailable(t models.Task) models.AvailableTask {
	return models.AvailableTask{
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

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
