// empired is the Empire orchestration daemon: it runs the engine and
// its admin API, expanding property workflows into job sequences and
// dispatching them one at a time through the work queue.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "empired",
	Short:        "Property workflow orchestration daemon",
	SilenceUsage: true,
	Long: `empired runs the Empire orchestration engine and its admin API.

Workflows are created for a property, expanded into an ordered job
sequence by their plan, and executed strictly one job at a time. A
failing job halts its workflow; nothing is retried.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
