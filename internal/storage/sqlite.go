package storage

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/storage"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type DBInterface interface {
	Get(dest interface{}, query string, args ...interface{}) error
	Select(dest interface{}, query string, args ...interface{}) error
	QueryRowx(query string, args ...interface{}) *sqlx.Row
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// SQLiteStore implements storage.Store over a single SQLite file.
type SQLiteStore struct {
	db DBInterface
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS swe_bench_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instance_id TEXT UNIQUE NOT NULL,
		repo TEXT NOT NULL,
		base_commit TEXT NOT NULL DEFAULT '',
		problem_statement TEXT NOT NULL DEFAULT '',
		hints_text TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL DEFAULT '',
		version TEXT NOT NULL DEFAULT '',
		patch TEXT NOT NULL DEFAULT '',
		test_patch TEXT NOT NULL DEFAULT '',
		fail_to_pass TEXT NOT NULL DEFAULT '',
		pass_to_pass TEXT NOT NULL DEFAULT '',
		environment_setup_commit TEXT NOT NULL DEFAULT '',
		completion_status TEXT NOT NULL DEFAULT 'not_started',
		completion_details TEXT NOT NULL DEFAULT '',
		steps_taken INTEGER NOT NULL DEFAULT 0,
		step_log TEXT NOT NULL DEFAULT '',
		started_at DATETIME,
		completed_at DATETIME,
		created_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS completion_summary (
		status TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		updated_timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_instance_id ON swe_bench_tasks(instance_id)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_repo ON swe_bench_tasks(repo)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_completion_status ON swe_bench_tasks(completion_status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_version ON swe_bench_tasks(version)`,
	`CREATE VIEW IF NOT EXISTS completion_stats AS
		SELECT completion_status,
			COUNT(*) AS count,
			ROUND(COUNT(*) * 100.0 / (SELECT COUNT(*) FROM swe_bench_tasks), 2) AS percentage
		FROM swe_bench_tasks
		GROUP BY completion_status`,
	`CREATE VIEW IF NOT EXISTS repository_progress AS
		SELECT repo,
			COUNT(*) AS total_tasks,
			SUM(CASE WHEN completion_status = 'completed' THEN 1 ELSE 0 END) AS completed,
			ROUND(SUM(CASE WHEN completion_status = 'completed' THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS completion_rate
		FROM swe_bench_tasks
		GROUP BY repo`,
}

// OpenDB opens the SQLite file with the pragmas the store expects. The pool
// is capped at one connection; SQLite allows a single writer anyway.
func OpenDB(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "ping database")
	}
	return db, nil
}

// NewSQLiteStore opens the database at path and ensures the base schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, errors.Wrap(err, "ensure schema")
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Begin() (storage.Store, error) {
	if db, ok := s.db.(*sqlx.DB); ok {
		tx, err := db.Beginx()
		if err != nil {
			return nil, err
		}
		return &SQLiteStore{db: tx}, nil
	}
	return nil, fmt.Errorf("cannot begin transaction on unknown type")
}

func (s *SQLiteStore) Commit() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Commit()
	}
	return fmt.Errorf("cannot commit: not a transaction")
}

func (s *SQLiteStore) Rollback() error {
	if tx, ok := s.db.(*sqlx.Tx); ok {
		return tx.Rollback()
	}
	return fmt.Errorf("cannot rollback: not a transaction")
}

func (s *SQLiteStore) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil // No-op for *sqlx.Tx
}

// SaveTask upserts a task keyed on instance_id.
func (s *SQLiteStore) SaveTask(t models.Task) error {
	if t.CompletionStatus == "" {
		t.CompletionStatus = models.NotStartedStatus
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO swe_bench_tasks (
			instance_id, repo, base_commit, problem_statement, hints_text,
			created_at, version, patch, test_patch, fail_to_pass, pass_to_pass,
			environment_setup_commit, completion_status, completion_details,
			steps_taken, step_log, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.InstanceID, t.Repo, t.BaseCommit, t.ProblemStatement, t.HintsText,
		t.CreatedAt, t.Version, t.Patch, t.TestPatch, t.FailToPass, t.PassToPass,
		t.EnvironmentSetupCommit, t.CompletionStatus, t.CompletionDetails,
		t.StepsTaken, t.StepLog, t.StartedAt, t.CompletedAt)
	if err != nil {
		return errors.Wrapf(err, "save task %s", t.InstanceID)
	}
	return nil
}

// GetTask retrieves the full row for one instance.
func (s *SQLiteStore) GetTask(instanceID string) (models.Task, error) {
	var t models.Task
	err := s.db.Get(&t, "SELECT * FROM swe_bench_tasks WHERE instance_id = ?", instanceID)
	if err == sql.ErrNoRows {
		return models.Task{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Task{}, errors.Wrapf(err, "get task %s", instanceID)
	}
	return t, nil
}

const availableColumns = `instance_id, repo, problem_statement, hints_text,
	fail_to_pass, pass_to_pass, base_commit, version`

// GetAvailableTask picks a uniformly random not_started task matching the
// filter. The projection never carries patch or test_patch.
func (s *SQLiteStore) GetAvailableTask(repo string, excludeRepos []string) (models.AvailableTask, error) {
	query := "SELECT " + availableColumns + " FROM swe_bench_tasks WHERE completion_status = 'not_started'"
	args := []interface{}{}
	if repo != "" {
		query += " AND repo = ?"
		args = append(args, repo)
	}
	if len(excludeRepos) > 0 {
		clause, inArgs, err := sqlx.In(" AND repo NOT IN (?)", excludeRepos)
		if err != nil {
			return models.AvailableTask{}, errors.Wrap(err, "build exclusion clause")
		}
		query += clause
		args = append(args, inArgs...)
	}
	query += " ORDER BY RANDOM() LIMIT 1"

	var t models.AvailableTask
	err := s.db.Get(&t, query, args...)
	if err == sql.ErrNoRows {
		return models.AvailableTask{}, storage.ErrNotFound
	}
	if err != nil {
		return models.AvailableTask{}, errors.Wrap(err, "get available task")
	}
	return t, nil
}

// GetTasksByRepo lists unstarted tasks for one repository.
func (s *SQLiteStore) GetTasksByRepo(repo string, limit int) ([]models.AvailableTask, error) {
	query := "SELECT " + availableColumns + ` FROM swe_bench_tasks
		WHERE completion_status = 'not_started' AND repo = ? ORDER BY instance_id`
	args := []interface{}{repo}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	tasks := []models.AvailableTask{}
	if err := s.db.Select(&tasks, query, args...); err != nil {
		return nil, errors.Wrapf(err, "get tasks for repo %s", repo)
	}
	return tasks, nil
}

// ListTasks returns full rows filtered by status and/or a repo substring.
func (s *SQLiteStore) ListTasks(status models.CompletionStatus, repoLike string, limit int) ([]models.Task, error) {
	query := "SELECT * FROM swe_bench_tasks WHERE 1=1"
	args := []interface{}{}
	if status != "" {
		query += " AND completion_status = ?"
		args = append(args, status)
	}
	if repoLike != "" {
		query += " AND repo LIKE ?"
		args = append(args, "%"+repoLike+"%")
	}
	query += " ORDER BY instance_id"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	tasks := []models.Task{}
	if err := s.db.Select(&tasks, query, args...); err != nil {
		return nil, errors.Wrap(err, "list tasks")
	}
	return tasks, nil
}

func (s *SQLiteStore) CountTasks() (int, error) {
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM swe_bench_tasks"); err != nil {
		return 0, errors.Wrap(err, "count tasks")
	}
	return count, nil
}

// StartTask moves a task to in_progress and resets its step counters.
// Re-entrant: starting an already started task resets the attempt.
func (s *SQLiteStore) StartTask(instanceID string) error {
	res, err := s.db.Exec(`
		UPDATE swe_bench_tasks
		SET completion_status = 'in_progress', started_at = ?, steps_taken = 0, step_log = ''
		WHERE instance_id = ?`,
		time.Now().UTC(), instanceID)
	if err != nil {
		return errors.Wrapf(err, "start task %s", instanceID)
	}
	return checkAffected(res)
}

// LogStep appends one formatted entry to the step log and returns the new
// step number. Read-then-write; callers serialize via transactions.
func (s *SQLiteStore) LogStep(instanceID, description string) (int, error) {
	var cur struct {
		StepsTaken int    `db:"steps_taken"`
		StepLog    string `db:"step_log"`
	}
	err := s.db.Get(&cur, "SELECT steps_taken, step_log FROM swe_bench_tasks WHERE instance_id = ?", instanceID)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read step log for %s", instanceID)
	}

	step := cur.StepsTaken + 1
	entry := models.StepEntry(step, time.Now().UTC(), description)
	_, err = s.db.Exec("UPDATE swe_bench_tasks SET steps_taken = ?, step_log = ? WHERE instance_id = ?",
		step, models.AppendStep(cur.StepLog, entry), instanceID)
	if err != nil {
		return 0, errors.Wrapf(err, "log step for %s", instanceID)
	}
	return step, nil
}

// UpdateTaskStatus validates the status before touching the row. completed_at
// is recorded only for terminal statuses.
func (s *SQLiteStore) UpdateTaskStatus(instanceID string, status models.CompletionStatus, details string) error {
	if !status.Valid() {
		return errors.Wrapf(storage.ErrInvalidStatus, "'%s'; must be one of: %v", status, models.ValidStatuses())
	}
	res, err := s.db.Exec(`
		UPDATE swe_bench_tasks
		SET completion_status = ?,
		completion_details = ?,
		completed_at = CASE WHEN ? IN ('completed', 'failed') THEN ? ELSE completed_at END
		WHERE instance_id = ?`,
		status, details, status, time.Now().UTC(), instanceID)
	if err != nil {
		return errors.Wrapf(err, "update status for %s", instanceID)
	}
	return checkAffected(res)
}

// GetSolution returns the gold patches only once the task is completed.
func (s *SQLiteStore) GetSolution(instanceID string) (models.Solution, error) {
	var sol models.Solution
	err := s.db.Get(&sol, `
		SELECT instance_id, patch, test_patch, completion_status
		FROM swe_bench_tasks
		WHERE instance_id = ? AND completion_status = 'completed'`, instanceID)
	if err == nil {
		return sol, nil
	}
	if err != sql.ErrNoRows {
		return models.Solution{}, errors.Wrapf(err, "get solution for %s", instanceID)
	}
	var status models.CompletionStatus
	err = s.db.Get(&status, "SELECT completion_status FROM swe_bench_tasks WHERE instance_id = ?", instanceID)
	if err == sql.ErrNoRows {
		return models.Solution{}, storage.ErrNotFound
	}
	if err != nil {
		return models.Solution{}, errors.Wrapf(err, "get solution for %s", instanceID)
	}
	return models.Solution{}, errors.Wrapf(storage.ErrNotCompleted, "task %s has status '%s'", instanceID, status)
}

// GetTaskDetails returns the tracking columns plus split step entries and
// duration. Patch columns are excluded; GetSolution is the only way to read
// them.
func (s *SQLiteStore) GetTaskDetails(instanceID string) (models.TaskDetails, error) {
	var details models.TaskDetails
	err := s.db.Get(&details, `
		SELECT instance_id, repo, problem_statement, completion_status,
			completion_details, steps_taken, step_log, started_at, completed_at
		FROM swe_bench_tasks
		WHERE instance_id = ?`, instanceID)
	if err == sql.ErrNoRows {
		return models.TaskDetails{}, storage.ErrNotFound
	}
	if err != nil {
		return models.TaskDetails{}, errors.Wrapf(err, "get details for %s", instanceID)
	}
	details.StepEntries = models.SplitStepLog(details.StepLog)
	if details.StartedAt != nil && details.CompletedAt != nil {
		minutes := math.Round(details.CompletedAt.Sub(*details.StartedAt).Minutes()*100) / 100
		details.DurationMinutes = &minutes
	}
	return details, nil
}

// GetCompletionSummary computes per-status counts and percentages.
func (s *SQLiteStore) GetCompletionSummary() ([]models.StatusCount, error) {
	summary := []models.StatusCount{}
	err := s.db.Select(&summary, `
		SELECT completion_status,
			COUNT(*) AS count,
			ROUND(COUNT(*) * 100.0 / (SELECT COUNT(*) FROM swe_bench_tasks), 2) AS percentage
		FROM swe_bench_tasks
		GROUP BY completion_status
		ORDER BY count DESC, completion_status`)
	if err != nil {
		return nil, errors.Wrap(err, "get completion summary")
	}
	return summary, nil
}

// GetRepoStatistics aggregates completion progress per repository.
func (s *SQLiteStore) GetRepoStatistics() ([]models.RepoStatistics, error) {
	stats := []models.RepoStatistics{}
	err := s.db.Select(&stats, `
		SELECT repo,
			COUNT(*) AS total_tasks,
			SUM(CASE WHEN completion_status = 'completed' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN completion_status = 'in_progress' THEN 1 ELSE 0 END) AS in_progress,
			SUM(CASE WHEN completion_status = 'failed' THEN 1 ELSE 0 END) AS failed,
			SUM(CASE WHEN completion_status = 'partial' THEN 1 ELSE 0 END) AS partial,
			SUM(CASE WHEN completion_status = 'not_started' THEN 1 ELSE 0 END) AS not_started,
			COALESCE(ROUND(AVG(CASE WHEN steps_taken > 0 THEN steps_taken END), 1), 0) AS avg_steps,
			COALESCE(ROUND(AVG(CASE WHEN started_at IS NOT NULL AND completed_at IS NOT NULL
				THEN (julianday(completed_at) - julianday(started_at)) * 24 * 60 END), 1), 0) AS avg_duration_minutes,
			ROUND(SUM(CASE WHEN completion_status = 'completed' THEN 1 ELSE 0 END) * 100.0 / COUNT(*), 2) AS completion_rate
		FROM swe_bench_tasks
		GROUP BY repo
		ORDER BY total_tasks DESC, repo`)
	if err != nil {
		return nil, errors.Wrap(err, "get repo statistics")
	}
	return stats, nil
}

// GetStepAnalytics summarizes step counts over completed tasks.
func (s *SQLiteStore) GetStepAnalytics() (models.StepAnalytics, error) {
	var a models.StepAnalytics
	err := s.db.Get(&a, `
		SELECT COUNT(*) AS tasks_with_steps,
			COALESCE(ROUND(AVG(steps_taken), 2), 0) AS avg_steps,
			COALESCE(MIN(steps_taken), 0) AS min_steps,
			COALESCE(MAX(steps_taken), 0) AS max_steps,
			COALESCE(ROUND(AVG(CASE WHEN started_at IS NOT NULL AND completed_at IS NOT NULL
				THEN (julianday(completed_at) - julianday(started_at)) * 24 * 60 END), 2), 0) AS avg_duration_minutes,
			COALESCE(SUM(CASE WHEN steps_taken BETWEEN 1 AND 5 THEN 1 ELSE 0 END), 0) AS simple_tasks,
			COALESCE(SUM(CASE WHEN steps_taken BETWEEN 6 AND 15 THEN 1 ELSE 0 END), 0) AS medium_tasks,
			COALESCE(SUM(CASE WHEN steps_taken > 15 THEN 1 ELSE 0 END), 0) AS complex_tasks
		FROM swe_bench_tasks
		WHERE completion_status = 'completed' AND steps_taken > 0`)
	if err != nil {
		return models.StepAnalytics{}, errors.Wrap(err, "get step analytics")
	}
	return a, nil
}

// RefreshCompletionSummary rewrites the persisted completion_summary table
// from the current task rows.
func (s *SQLiteStore) RefreshCompletionSummary() error {
	if _, err := s.db.Exec("DELETE FROM completion_summary"); err != nil {
		return errors.Wrap(err, "clear completion summary")
	}
	_, err := s.db.Exec(`
		INSERT INTO completion_summary (status, count, percentage, updated_timestamp)
		SELECT completion_status,
			COUNT(*),
			ROUND(COUNT(*) * 100.0 / (SELECT COUNT(*) FROM swe_bench_tasks), 2),
			CURRENT_TIMESTAMP
		FROM swe_bench_tasks
		GROUP BY completion_status`)
	if err != nil {
		return errors.Wrap(err, "refresh completion summary")
	}
	return nil
}

func checkAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
