// Package runner simulates SPARC delegation over benchmark tasks. No real
// solving happens; each mode only fabricates a JSON result file, which is
// enough to exercise the tracking pipeline end to end.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/service"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Runner claims unstarted tasks and walks each through the delegation plan.
type Runner struct {
	svc    *service.TaskService
	cfg    Config
	logger service.Logger

	mu        sync.Mutex
	processed int
	completed int
	failed    int
	partial   int
	repoDist  map[string]int
	modePerf  map[string]int
}

func NewRunner(svc *service.TaskService, cfg Config, logger service.Logger) *Runner {
	return &Runner{
		svc:      svc,
		cfg:      cfg,
		logger:   logger,
		repoDist: make(map[string]int),
		modePerf: make(map[string]int),
	}
}

// Run executes one benchmark run and writes its summary into the workspace.
func (r *Runner) Run(ctx context.Context) (models.RunSummary, error) {
	runID := uuid.New().String()
	start := time.Now().UTC()

	tasks, err := r.claimTasks()
	if err != nil {
		return models.RunSummary{}, err
	}
	r.logger.Infof("Run %s: %d tasks, %d workers", runID, len(tasks), r.cfg.Workers)

	pool := newWorkerPool(ctx, r.cfg.Workers, func(ctx context.Context, task models.AvailableTask) {
		r.processTask(ctx, runID, task)
	}, r.logger)
	pool.Start()
	for _, task := range tasks {
		pool.Submit(task)
	}
	pool.Stop()

	if err := r.svc.RefreshSummary(); err != nil {
		r.logger.Errorf("Failed to refresh completion summary: %v", err)
	}

	summary := r.buildSummary(runID, start, time.Now().UTC())
	path := filepath.Join(r.cfg.Workspace, fmt.Sprintf("benchmark_summary_%s.json", runID))
	if err := writeJSON(path, summary); err != nil {
		return summary, err
	}
	r.logger.Infof("Run %s finished: %d completed, %d failed, %d partial",
		runID, summary.CompletedTasks, summary.FailedTasks, summary.PartialTasks)
	return summary, nil
}

// claimTasks selects the unstarted tasks this run will process, applying the
// repository and complexity filters.
func (r *Runner) claimTasks() ([]models.AvailableTask, error) {
	tasks, err := r.svc.ListTasks(models.NotStartedStatus, r.cfg.Repository, 0)
	if err != nil {
		return nil, errors.Wrap(err, "list unstarted tasks")
	}
	excluded := make(map[string]bool, len(r.cfg.ExcludeRepos))
	for _, repo := range r.cfg.ExcludeRepos {
		excluded[repo] = true
	}

	claimed := []models.AvailableTask{}
	for i := range tasks {
		t := &tasks[i]
		if excluded[t.Repo] {
			continue
		}
		score := models.ComplexityScore(t)
		if score < r.cfg.MinComplexity || (r.cfg.MaxComplexity > 0 && score > r.cfg.MaxComplexity) {
			continue
		}
		claimed = append(claimed, t.Available())
		if r.cfg.MaxTasks > 0 && len(claimed) == r.cfg.MaxTasks {
			break
		}
	}
	return claimed, nil
}

func (r *Runner) processTask(ctx context.Context, runID string, task models.AvailableTask) {
	start := time.Now().UTC()
	score := r.complexityOf(task.InstanceID)
	phases := models.DefaultDelegationPlan()

	if err := r.svc.StartTask(task.InstanceID); err != nil {
		r.logger.Errorf("Failed to start task %s: %v", task.InstanceID, err)
		r.record(models.FailedStatus, task.Repo, nil)
		return
	}

	taskDir := filepath.Join(r.cfg.Workspace, "results", task.InstanceID)
	taskContext := struct {
		RunID            string               `json:"run_id"`
		Task             models.AvailableTask `json:"task"`
		ComplexityScore  int                  `json:"complexity_score"`
		EstimatedMinutes int                  `json:"estimated_minutes"`
	}{runID, task, score, models.EstimatedMinutes(score)}
	if err := writeJSON(filepath.Join(taskDir, "task_context.json"), taskContext); err != nil {
		r.failTask(task, err)
		return
	}

	executed := []string{}
	modes := []string{}
	results := make(map[string]models.ModeResult, len(phases))
	for i, phase := range phases {
		if ctx.Err() != nil {
			details := fmt.Sprintf("run cancelled after %d of %d phases", i, len(phases))
			if err := r.svc.UpdateTaskStatus(task.InstanceID, models.PartialStatus, details); err != nil {
				r.logger.Errorf("Failed to mark task %s partial: %v", task.InstanceID, err)
			}
			r.record(models.PartialStatus, task.Repo, modes)
			return
		}

		if _, err := r.svc.LogStep(task.InstanceID,
			fmt.Sprintf("Delegating %s phase to %s mode", phase.Name, phase.Mode)); err != nil {
			r.failTask(task, err)
			return
		}

		result := fabricateResult(task, phase, score)
		if err := writeJSON(filepath.Join(taskDir, phase.Mode+"_result.json"), result); err != nil {
			r.failTask(task, err)
			return
		}
		results[phase.Name] = result
		executed = append(executed, phase.Name)
		modes = append(modes, phase.Mode)
	}

	end := time.Now().UTC()
	final := models.FinalResult{
		TaskSummary: models.TaskSummary{
			TaskID:               task.InstanceID,
			Status:               models.CompletedStatus,
			PhasesExecuted:       executed,
			TotalPhases:          len(phases),
			StartTime:            start,
			EndTime:              end,
			ComplexityScore:      score,
			Repository:           task.Repo,
			ExecutionTimeSeconds: int(end.Sub(start).Seconds()),
		},
		ModeResults: results,
		Task:        task,
	}
	if err := writeJSON(filepath.Join(taskDir, "swe_result_final.json"), final); err != nil {
		r.failTask(task, err)
		return
	}

	details := fmt.Sprintf("Simulated SPARC run executed %d/%d phases", len(executed), len(phases))
	if err := r.svc.UpdateTaskStatus(task.InstanceID, models.CompletedStatus, details); err != nil {
		r.logger.Errorf("Failed to complete task %s: %v", task.InstanceID, err)
		r.record(models.FailedStatus, task.Repo, modes)
		return
	}
	r.record(models.CompletedStatus, task.Repo, modes)
}

// complexityOf scores the full task row. The runner is operator-side code,
// so reading the gold patch here leaks nothing to a solver.
func (r *Runner) complexityOf(instanceID string) int {
	task, err := r.svc.GetTask(instanceID)
	if err != nil {
		return 1
	}
	return models.ComplexityScore(&task)
}

func (r *Runner) failTask(task models.AvailableTask, cause error) {
	r.logger.Errorf("Task %s failed: %v", task.InstanceID, cause)
	if err := r.svc.UpdateTaskStatus(task.InstanceID, models.FailedStatus, cause.Error()); err != nil {
		r.logger.Errorf("Failed to mark task %s failed: %v", task.InstanceID, err)
	}
	r.record(models.FailedStatus, task.Repo, nil)
}

func (r *Runner) record(status models.CompletionStatus, repo string, modes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed++
	switch status {
	case models.CompletedStatus:
		r.completed++
	case models.FailedStatus:
		r.failed++
	case models.PartialStatus:
		r.partial++
	}
	r.repoDist[repo]++
	for _, mode := range modes {
		r.modePerf[mode]++
	}
	if r.cfg.BatchSize > 0 && r.processed%r.cfg.BatchSize == 0 {
		r.logger.Infof("Progress: %d tasks processed (%d completed, %d failed, %d partial)",
			r.processed, r.completed, r.failed, r.partial)
	}
}

func (r *Runner) buildSummary(runID string, start, end time.Time) models.RunSummary {
	r.mu.Lock()
	summary := models.RunSummary{
		RunID:            runID,
		BenchmarkType:    r.cfg.BenchmarkType,
		AgentSystem:      r.cfg.AgentSystem,
		TotalTasks:       r.processed,
		CompletedTasks:   r.completed,
		FailedTasks:      r.failed,
		PartialTasks:     r.partial,
		RepoDistribution: copyCounts(r.repoDist),
		ModePerformance:  copyCounts(r.modePerf),
		StartTime:        start,
		EndTime:          end,
		GeneratedAt:      time.Now().UTC(),
	}
	r.mu.Unlock()

	if summary.TotalTasks > 0 {
		summary.SuccessRate = math.Round(float64(summary.CompletedTasks)/float64(summary.TotalTasks)*10000) / 100
	}
	if statuses, err := r.svc.GetCompletionSummary(); err == nil {
		summary.Statuses = statuses
	}
	if repos, err := r.svc.GetRepoStatistics(); err == nil {
		summary.Repositories = repos
	}
	return summary
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// fabricateResult builds the synthetic output a live mode delegation would
// produce.
func fabricateResult(task models.AvailableTask, phase models.PlanPhase, score int) models.ModeResult {
	now := time.Now().UTC()
	return models.ModeResult{
		ExecutionID: uuid.New().String(),
		Mode:        phase.Mode,
		Phase:       phase.Name,
		TaskID:      task.InstanceID,
		Status:      "success",
		StartTime:   now,
		EndTime:     now,
		Output: map[string]interface{}{
			"summary":      fmt.Sprintf("Simulated %s phase for %s", phase.Name, task.InstanceID),
			"orchestrator": models.OrchestrationMode,
		},
		Metadata: models.ResultMetadata{
			ComplexityScore:  score,
			EstimatedMinutes: models.EstimatedMinutes(score),
			Repository:       task.Repo,
		},
	}
}

func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", path)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
