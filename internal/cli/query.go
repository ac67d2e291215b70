package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/agenticsorg/sparc-bench/internal/log"
	internal_storage "github.com/agenticsorg/sparc-bench/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

type cannedQuery struct {
	title string
	sql   string
}

// Numbered read-only queries over the reporting views. Matches the order the
// `query` command lists them in.
var cannedQueries = []cannedQuery{
	{"Completion statistics", "SELECT * FROM completion_stats"},
	{"Repository progress", "SELECT * FROM repository_progress ORDER BY total_tasks DESC"},
	{"Recently completed tasks",
		"SELECT instance_id, repo, steps_taken, completed_at FROM swe_bench_tasks " +
			"WHERE completion_status = 'completed' ORDER BY completed_at DESC LIMIT 10"},
	{"Sample of unstarted tasks",
		"SELECT instance_id, repo FROM swe_bench_tasks " +
			"WHERE completion_status = 'not_started' ORDER BY instance_id LIMIT 10"},
	{"Tasks in progress",
		"SELECT instance_id, repo, steps_taken, started_at FROM swe_bench_tasks " +
			"WHERE completion_status = 'in_progress' ORDER BY started_at"},
	{"Failed and partial tasks",
		"SELECT instance_id, repo, completion_status, completion_details FROM swe_bench_tasks " +
			"WHERE completion_status IN ('failed', 'partial') ORDER BY instance_id"},
}

func newQueryCmd() *cobra.Command {
	queryCmd := &cobra.Command{
		Use:   "query [number]",
		Short: "Run a canned reporting query or an ad-hoc SELECT",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dbPath, _ := cmd.Flags().GetString("db")
			db, err := internal_storage.OpenDB(resolveDBPath(dbPath))
			exitOnError(err, "open database")
			defer db.Close()

			if raw, _ := cmd.Flags().GetString("sql"); raw != "" {
				exitOnError(runQuery(db, raw), "run query")
				return
			}

			if len(args) == 0 {
				for i, q := range cannedQueries {
					fmt.Fprintf(os.Stdout, "%d. %s\n", i+1, q.title)
				}
				return
			}

			var n int
			if _, err := fmt.Sscanf(args[0], "%d", &n); err != nil || n < 1 || n > len(cannedQueries) {
				fmt.Fprintf(os.Stderr, "Error: query number must be between 1 and %d\n", len(cannedQueries))
				os.Exit(1)
			}
			q := cannedQueries[n-1]
			fmt.Fprintf(os.Stdout, "=== %s ===\n", q.title)
			exitOnError(runQuery(db, q.sql), "run query")
		},
	}
	queryCmd.Flags().String("sql", "", "Ad-hoc SELECT statement")
	return queryCmd
}

// runQuery executes a read-only statement and prints a column-aligned table.
func runQuery(db *sqlx.DB, query string) error {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return fmt.Errorf("only SELECT statements are allowed")
	}

	rows, err := db.Queryx(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	var records [][]string
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return err
		}
		record := make([]string, len(values))
		for i, v := range values {
			record[i] = formatValue(v)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	printTable(columns, records)
	log.GetLogger().Infof("Query returned %d rows", len(records))
	return nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case float64:
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", val), "0"), ".")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func printTable(columns []string, records [][]string) {
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for _, record := range records {
		for i, cell := range record {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var header strings.Builder
	for i, c := range columns {
		fmt.Fprintf(&header, "%-*s  ", widths[i], c)
	}
	fmt.Fprintln(os.Stdout, strings.TrimRight(header.String(), " "))
	fmt.Fprintln(os.Stdout, strings.Repeat("-", len(strings.TrimRight(header.String(), " "))))

	for _, record := range records {
		var line strings.Builder
		for i, cell := range record {
			fmt.Fprintf(&line, "%-*s  ", widths[i], cell)
		}
		fmt.Fprintln(os.Stdout, strings.TrimRight(line.String(), " "))
	}
	fmt.Fprintf(os.Stdout, "(%d rows)\n", len(records))
}
