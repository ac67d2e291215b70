package cli

import (
	"fmt"
	"os"
	"sort"

	internal_storage "github.com/agenticsorg/sparc-bench/internal/storage"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare [db1] [db2]",
		Short: "Compare two task databases (counts, statuses, overlap, schema)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			db1, err := internal_storage.OpenDB(args[0])
			exitOnError(err, "open first database")
			defer db1.Close()
			db2, err := internal_storage.OpenDB(args[1])
			exitOnError(err, "open second database")
			defer db2.Close()

			exitOnError(compareDatabases(db1, db2, args[0], args[1]), "compare databases")
		},
	}
}

func compareDatabases(db1, db2 *sqlx.DB, name1, name2 string) error {
	count1, err := taskCount(db1)
	if err != nil {
		return err
	}
	count2, err := taskCount(db2)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Task counts:\n  %s: %d\n  %s: %d\n\n", name1, count1, name2, count2)

	if err := compareStatuses(db1, db2, name1, name2); err != nil {
		return err
	}
	if err := compareOverlap(db1, db2, name1, name2); err != nil {
		return err
	}
	return compareSchemas(db1, db2, name1, name2)
}

func taskCount(db *sqlx.DB) (int, error) {
	var count int
	err := db.Get(&count, "SELECT COUNT(*) FROM swe_bench_tasks")
	return count, err
}

func compareStatuses(db1, db2 *sqlx.DB, name1, name2 string) error {
	breakdown := func(db *sqlx.DB) (map[string]int, error) {
		rows := []struct {
			Status string `db:"completion_status"`
			Count  int    `db:"count"`
		}{}
		err := db.Select(&rows,
			"SELECT completion_status, COUNT(*) AS count FROM swe_bench_tasks GROUP BY completion_status")
		if err != nil {
			return nil, err
		}
		m := make(map[string]int, len(rows))
		for _, r := range rows {
			m[r.Status] = r.Count
		}
		return m, nil
	}

	m1, err := breakdown(db1)
	if err != nil {
		return err
	}
	m2, err := breakdown(db2)
	if err != nil {
		return err
	}

	statuses := make(map[string]struct{})
	for s := range m1 {
		statuses[s] = struct{}{}
	}
	for s := range m2 {
		statuses[s] = struct{}{}
	}
	sorted := make([]string, 0, len(statuses))
	for s := range statuses {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	fmt.Fprintf(os.Stdout, "Status breakdown (%s vs %s):\n", name1, name2)
	for _, s := range sorted {
		fmt.Fprintf(os.Stdout, "  %-12s %6d  %6d\n", s, m1[s], m2[s])
	}
	fmt.Fprintln(os.Stdout)
	return nil
}

func compareOverlap(db1, db2 *sqlx.DB, name1, name2 string) error {
	ids := func(db *sqlx.DB) (map[string]struct{}, error) {
		var list []string
		if err := db.Select(&list, "SELECT instance_id FROM swe_bench_tasks"); err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(list))
		for _, id := range list {
			set[id] = struct{}{}
		}
		return set, nil
	}

	set1, err := ids(db1)
	if err != nil {
		return err
	}
	set2, err := ids(db2)
	if err != nil {
		return err
	}

	shared, only1, only2 := 0, 0, 0
	for id := range set1 {
		if _, ok := set2[id]; ok {
			shared++
		} else {
			only1++
		}
	}
	for id := range set2 {
		if _, ok := set1[id]; !ok {
			only2++
		}
	}
	fmt.Fprintf(os.Stdout, "Instance overlap:\n  shared: %d\n  only in %s: %d\n  only in %s: %d\n\n",
		shared, name1, only1, name2, only2)
	return nil
}

func compareSchemas(db1, db2 *sqlx.DB, name1, name2 string) error {
	columns := func(db *sqlx.DB) (map[string]string, error) {
		rows, err := db.Queryx("PRAGMA table_info(swe_bench_tasks)")
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		cols := make(map[string]string)
		for rows.Next() {
			row := make(map[string]interface{})
			if err := rows.MapScan(row); err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%v", row["name"])
			cols[name] = fmt.Sprintf("%v", row["type"])
		}
		return cols, rows.Err()
	}

	cols1, err := columns(db1)
	if err != nil {
		return err
	}
	cols2, err := columns(db2)
	if err != nil {
		return err
	}

	var diffs []string
	for name, typ := range cols1 {
		other, ok := cols2[name]
		if !ok {
			diffs = append(diffs, fmt.Sprintf("  %s (%s) only in %s", name, typ, name1))
		} else if other != typ {
			diffs = append(diffs, fmt.Sprintf("  %s: %s vs %s", name, typ, other))
		}
	}
	for name, typ := range cols2 {
		if _, ok := cols1[name]; !ok {
			diffs = append(diffs, fmt.Sprintf("  %s (%s) only in %s", name, typ, name2))
		}
	}
	sort.Strings(diffs)

	if len(diffs) == 0 {
		fmt.Fprintln(os.Stdout, "Schemas match.")
		return nil
	}
	fmt.Fprintln(os.Stdout, "Schema differences:")
	for _, d := range diffs {
		fmt.Fprintln(os.Stdout, d)
	}
	return nil
}
