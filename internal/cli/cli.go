package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	internal_http "github.com/agenticsorg/sparc-bench/internal/http"
	"github.com/agenticsorg/sparc-bench/internal/log"
	"github.com/agenticsorg/sparc-bench/internal/report"
	internal_storage "github.com/agenticsorg/sparc-bench/internal/storage"
	"github.com/agenticsorg/sparc-bench/pkg/loader"
	"github.com/agenticsorg/sparc-bench/pkg/models"
	"github.com/agenticsorg/sparc-bench/pkg/runner"
	"github.com/agenticsorg/sparc-bench/pkg/service"
	"github.com/spf13/cobra"
)

// SetupCLI registers every subcommand on the root command.
func SetupCLI(rootCmd *cobra.Command) {
	getTaskCmd := &cobra.Command{
		Use:   "get_task",
		Short: "Fetch a random unstarted task (without solution fields)",
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			repo, _ := cmd.Flags().GetString("repo")
			exclude, _ := cmd.Flags().GetStringSlice("exclude")
			task, err := svc.GetAvailableTask(repo, exclude)
			exitOnError(err, "get task")
			printJSON(task)
		},
	}
	getTaskCmd.Flags().String("repo", "", "Restrict to one repository")
	getTaskCmd.Flags().StringSlice("exclude", nil, "Repositories to exclude")

	getTaskRepoCmd := &cobra.Command{
		Use:   "get_task_repo [repo]",
		Short: "List unstarted tasks for a repository",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			limit, _ := cmd.Flags().GetInt("limit")
			tasks, err := svc.GetTasksByRepo(args[0], limit)
			exitOnError(err, "get tasks by repo")
			printJSON(tasks)
		},
	}
	getTaskRepoCmd.Flags().Int("limit", 10, "Maximum number of tasks")

	startTaskCmd := &cobra.Command{
		Use:   "start_task [instance_id]",
		Short: "Mark a task in_progress and reset its step counters",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			exitOnError(svc.StartTask(args[0]), "start task")
			fmt.Fprintf(os.Stdout, "Started task '%s'\n", args[0])
		},
	}

	logStepCmd := &cobra.Command{
		Use:   "log_step [instance_id] [description]",
		Short: "Append a step to a task's step log",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			description := strings.Join(args[1:], " ")
			step, err := svc.LogStep(args[0], description)
			exitOnError(err, "log step")
			fmt.Fprintf(os.Stdout, "Logged step %d for task '%s'\n", step, args[0])
		},
	}

	updateStatusCmd := &cobra.Command{
		Use:   "update_status [instance_id] [status]",
		Short: "Set a task's completion status",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			details, _ := cmd.Flags().GetString("details")
			err := svc.UpdateTaskStatus(args[0], models.CompletionStatus(args[1]), details)
			exitOnError(err, "update status")
			fmt.Fprintf(os.Stdout, "Updated task '%s' to status '%s'\n", args[0], args[1])
		},
	}
	updateStatusCmd.Flags().String("details", "", "Completion details")

	getSolutionCmd := &cobra.Command{
		Use:   "get_solution [instance_id]",
		Short: "Fetch the gold patches for a completed task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			solution, err := svc.GetSolution(args[0])
			exitOnError(err, "get solution")
			printJSON(solution)
		},
	}

	taskDetailsCmd := &cobra.Command{
		Use:   "task_details [instance_id]",
		Short: "Show the full tracking view of one task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			details, err := svc.GetTaskDetails(args[0])
			exitOnError(err, "get task details")
			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				printJSON(details)
				return
			}
			fmt.Fprint(os.Stdout, report.RenderTaskDetails(details))
		},
	}
	taskDetailsCmd.Flags().Bool("json", false, "Print JSON instead of text")

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Per-status completion counts and percentages",
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			summary, err := svc.GetCompletionSummary()
			exitOnError(err, "get completion summary")
			fmt.Fprint(os.Stdout, report.RenderSummary(summary))
		},
	}

	repoStatsCmd := &cobra.Command{
		Use:   "repo_stats",
		Short: "Per-repository completion statistics",
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			stats, err := svc.GetRepoStatistics()
			exitOnError(err, "get repo statistics")
			fmt.Fprint(os.Stdout, report.RenderRepoStatistics(stats))
		},
	}

	stepAnalyticsCmd := &cobra.Command{
		Use:   "step_analytics",
		Short: "Step-count distribution over completed tasks",
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			analytics, err := svc.GetStepAnalytics()
			exitOnError(err, "get step analytics")
			fmt.Fprint(os.Stdout, report.RenderStepAnalytics(analytics))
		},
	}

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load tasks from a JSON file or the HuggingFace datasets-server",
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			file, _ := cmd.Flags().GetString("file")
			dataset, _ := cmd.Flags().GetString("hf-dataset")
			if file == "" && dataset == "" {
				fmt.Fprintln(os.Stderr, "Error: either --file or --hf-dataset is required")
				os.Exit(1)
			}

			var stats loader.Stats
			var err error
			if file != "" {
				stats, err = loader.LoadJSONFile(file, svc, log.GetLogger())
			} else {
				config, _ := cmd.Flags().GetString("hf-config")
				split, _ := cmd.Flags().GetString("split")
				maxRows, _ := cmd.Flags().GetInt("max-rows")
				client := loader.NewHFClient(nil)
				stats, err = client.LoadDataset(context.Background(), svc, log.GetLogger(),
					dataset, config, split, maxRows)
			}
			exitOnError(err, "load dataset")
			fmt.Fprintf(os.Stdout, "Loaded %d tasks (%d skipped)\n", stats.Loaded, stats.Skipped)
		},
	}
	loadCmd.Flags().String("file", "", "JSON dataset file")
	loadCmd.Flags().String("hf-dataset", "", "HuggingFace dataset name (e.g. princeton-nlp/SWE-bench_Lite)")
	loadCmd.Flags().String("hf-config", "default", "HuggingFace dataset config")
	loadCmd.Flags().String("split", "test", "Dataset split")
	loadCmd.Flags().Int("max-rows", 0, "Maximum rows to load (0 = all)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the mocked SPARC delegation over unstarted tasks",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := runner.DefaultConfig()
			if path, _ := cmd.Flags().GetString("config"); path != "" {
				var err error
				cfg, err = runner.LoadConfig(path)
				exitOnError(err, "load run config")
			}
			applyRunFlags(cmd, &cfg)

			if db, _ := cmd.Flags().GetString("db"); db != "" {
				cfg.Database = db
			}
			store := initStore(cfg.Database)
			defer store.Close()
			svc := service.NewTaskService(store, log.GetLogger())

			r := runner.NewRunner(svc, cfg, log.GetLogger())
			summary, err := r.Run(cmd.Context())
			exitOnError(err, "run benchmark")
			fmt.Fprint(os.Stdout, report.RenderRunSummary(summary))
		},
	}
	runCmd.Flags().String("config", "", "YAML run configuration file")
	runCmd.Flags().Int("max-tasks", -1, "Maximum tasks to process")
	runCmd.Flags().String("repository", "", "Restrict to one repository")
	runCmd.Flags().Int("min-complexity", -1, "Minimum complexity score (1-10)")
	runCmd.Flags().Int("max-complexity", -1, "Maximum complexity score (1-10)")
	runCmd.Flags().Int("workers", -1, "Worker count")
	runCmd.Flags().Int("batch-size", -1, "Progress logging interval")
	runCmd.Flags().String("workspace", "", "Workspace directory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the task store over HTTP",
		Run: func(cmd *cobra.Command, args []string) {
			svc := serviceFromFlags(cmd)
			port, _ := cmd.Flags().GetString("port")
			if port == "" {
				port = os.Getenv("PORT")
			}
			if port == "" {
				port = "8080"
			}
			server := internal_http.NewServer(svc)
			exitOnError(server.Start(port), "serve")
		},
	}
	serveCmd.Flags().String("port", "", "Listen port (default $PORT or 8080)")

	rootCmd.AddCommand(getTaskCmd, getTaskRepoCmd, startTaskCmd, logStepCmd,
		updateStatusCmd, getSolutionCmd, taskDetailsCmd, summaryCmd,
		repoStatsCmd, stepAnalyticsCmd, loadCmd, runCmd, serveCmd,
		newQueryCmd(), newCompareCmd())
}

func applyRunFlags(cmd *cobra.Command, cfg *runner.Config) {
	if v, _ := cmd.Flags().GetInt("max-tasks"); v >= 0 {
		cfg.MaxTasks = v
	}
	if v, _ := cmd.Flags().GetString("repository"); v != "" {
		cfg.Repository = v
	}
	if v, _ := cmd.Flags().GetInt("min-complexity"); v >= 0 {
		cfg.MinComplexity = v
	}
	if v, _ := cmd.Flags().GetInt("max-complexity"); v >= 0 {
		cfg.MaxComplexity = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v >= 0 {
		cfg.Workers = v
	}
	if v, _ := cmd.Flags().GetInt("batch-size"); v >= 0 {
		cfg.BatchSize = v
	}
	if v, _ := cmd.Flags().GetString("workspace"); v != "" {
		cfg.Workspace = v
	}
}

// serviceFromFlags builds a TaskService over the database named by --db or
// SPARC_BENCH_DB.
func serviceFromFlags(cmd *cobra.Command) *service.TaskService {
	dbPath, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	store := initStore(resolveDBPath(dbPath))
	return service.NewTaskService(store, log.GetLogger())
}

func resolveDBPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("SPARC_BENCH_DB"); env != "" {
		return env
	}
	return "swe_bench.db"
}

func initStore(dbPath string) *internal_storage.SQLiteStore {
	store, err := internal_storage.InitStore(dbPath)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}

func exitOnError(err error, action string) {
	if err != nil {
		log.GetLogger().Errorf("Failed to %s: %v", action, err)
		fmt.Fprintf(os.Stderr, "Error: failed to %s: %v\n", action, err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.GetLogger().Errorf("Failed to encode output: %v", err)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stdout, string(data))
}
