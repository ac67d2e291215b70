// Package loader fills the task store from a JSON dump or from the
// HuggingFace datasets-server API.
package loader

import (
	"encoding/json"
	"os"

	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/service"
	"github.com/pkg/errors"
)

// MinProblemStatementLength is the shortest problem statement accepted as a
// usable benchmark instance.
const MinProblemStatementLength = 50

// Stats reports the outcome of one load.
type Stats struct {
	Loaded  int `json:"loaded"`
	Skipped int `json:"skipped"`
}

// LoadJSONFile reads a JSON array of task records and upserts the valid ones.
// Invalid records are counted and skipped, never fatal.
func LoadJSONFile(path string, svc *service.TaskService, logger service.Logger) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, errors.Wrapf(err, "read dataset file %s", path)
	}

	var records []map[string]interface{}
	if err := json.Unmarshal(data, &records); err != nil {
		return Stats{}, errors.Wrapf(err, "parse dataset file %s", path)
	}
	return importRecords(records, svc, logger)
}

func importRecords(records []map[string]interface{}, svc *service.TaskService, logger service.Logger) (Stats, error) {
	var stats Stats
	tasks := make([]models.Task, 0, len(records))
	for _, record := range records {
		task := ConvertRecord(record)
		if err := Validate(task); err != nil {
			logger.Errorf("Skipping record '%s': %v", task.InstanceID, err)
			stats.Skipped++
			continue
		}
		tasks = append(tasks, task)
	}
	loaded, err := svc.ImportTasks(tasks)
	stats.Loaded = loaded
	if err != nil {
		return stats, err
	}
	logger.Infof("Loaded %d tasks (%d skipped)", stats.Loaded, stats.Skipped)
	return stats, nil
}

// ConvertRecord maps one dataset record onto a Task. Dataset dumps are
// inconsistent about key casing (FAIL_TO_PASS vs fail_to_pass) and about
// whether test lists arrive as JSON strings or arrays; both are accepted.
func ConvertRecord(record map[string]interface{}) models.Task {
	return models.Task{
		InstanceID:             stringField(record, "instance_id"),
		Repo:                   stringField(record, "repo"),
		BaseCommit:             stringField(record, "base_commit"),
		ProblemStatement:       stringField(record, "problem_statement"),
		HintsText:              stringField(record, "hints_text"),
		CreatedAt:              stringField(record, "created_at"),
		Version:                stringField(record, "version"),
		Patch:                  stringField(record, "patch"),
		TestPatch:              stringField(record, "test_patch"),
		FailToPass:             listField(record, "fail_to_pass"),
		PassToPass:             listField(record, "pass_to_pass"),
		EnvironmentSetupCommit: stringField(record, "environment_setup_commit"),
		CompletionStatus:       models.NotStartedStatus,
	}
}

// Validate checks the fields a benchmark instance cannot do without.
func Validate(t models.Task) error {
	if t.InstanceID == "" {
		return errors.New("missing instance_id")
	}
	if t.Repo == "" {
		return errors.New("missing repo")
	}
	if t.BaseCommit == "" {
		return errors.New("missing base_commit")
	}
	if len(t.ProblemStatement) < MinProblemStatementLength {
		return errors.Errorf("problem statement too short (%d chars, need %d)",
			len(t.ProblemStatement), MinProblemStatementLength)
	}
	return nil
}

func stringField(record map[string]interface{}, key string) string {
	for _, k := range keyVariants(key) {
		if v, ok := record[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// listField normalizes a test list to a JSON-encoded string.
func listField(record map[string]interface{}, key string) string {
	for _, k := range keyVariants(key) {
		v, ok := record[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			return val
		case []interface{}:
			encoded, err := json.Marshal(val)
			if err != nil {
				return ""
			}
			return string(encoded)
		}
	}
	return ""
}

func keyVariants(key string) []string {
	return []string{key, upperSnake(key)}
}

func upperSnake(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
