package main

import (
	"fmt"
	"os"

	"github.com/agenticsorg/sparc-bench/internal/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sparc-bench",
	Short: "SWE-bench task tracking and mocked SPARC benchmark runner",
}

func main() {
	// Load .env if present
	_ = godotenv.Load()

	rootCmd.PersistentFlags().String("db", "", "SQLite database path (default $SPARC_BENCH_DB or swe_bench.db)")
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
