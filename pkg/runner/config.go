package runner

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config drives one benchmark run. Values come from a YAML file with CLI
// flag overrides on top.
type Config struct {
	Workspace     string   `yaml:"workspace"`      // Run artifacts root (results/, summaries)
	Database      string   `yaml:"database"`       // SQLite file path
	MaxTasks      int      `yaml:"max_tasks"`      // 0 means all available
	Repository    string   `yaml:"repository"`     // Restrict to one repo (substring match)
	ExcludeRepos  []string `yaml:"exclude_repos"`  // Repos to skip entirely
	MinComplexity int      `yaml:"min_complexity"` // Inclusive 1-10 bounds
	MaxComplexity int      `yaml:"max_complexity"`
	Workers       int      `yaml:"workers"`    // 0 means one worker per CPU
	BatchSize     int      `yaml:"batch_size"` // Progress logging interval
	BenchmarkType string   `yaml:"benchmark_type"`
	AgentSystem   string   `yaml:"agent_system"`
}

func DefaultConfig() Config {
	return Config{
		Workspace:     "swe-bench-workspace",
		Database:      "swe_bench.db",
		MaxTasks:      10,
		MinComplexity: 1,
		MaxComplexity: 10,
		Workers:       1,
		BatchSize:     5,
		BenchmarkType: "swe-bench-lite",
		AgentSystem:   "roocode-sparc",
	}
}

// LoadConfig overlays the YAML file at path onto the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "read run config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse run config %s", path)
	}
	return cfg, nil
}
