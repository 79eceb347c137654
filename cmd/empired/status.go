package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thelittleladyinc/empire-system/client"
)

var statusCmd = &cobra.Command{
	Use:   "status [workflow-id]",
	Short: "Show daemon health, or one workflow's job sequence",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := cmd.Flags().GetString("addr")
		if err != nil {
			return err
		}
		c := client.New(addr)
		if len(args) == 1 {
			return workflowStatus(cmd, c, args[0])
		}
		return daemonStatus(cmd, c)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("addr", "http://localhost:8080", "admin API base URL")
}

func daemonStatus(cmd *cobra.Command, c *client.Client) error {
	ctx := cmd.Context()
	report, err := c.Health(ctx)
	if err != nil {
		return err
	}
	stats, err := c.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "healthy:   %v\n", report.Healthy)
	fmt.Fprintf(out, "store:     up=%v latency=%s\n", report.StoreUp, report.StoreLatency)
	fmt.Fprintf(out, "queue:     up=%v\n", report.QueueUp)
	fmt.Fprintf(out, "memory:    %.0f%%\n", report.MemoryRatio*100)
	fmt.Fprintf(out, "active:    %d workflows, %d pending jobs\n", report.ActiveWorkflows, report.PendingJobs)
	fmt.Fprintf(out, "workflows: %d queued / %d running / %d completed / %d failed\n",
		stats.Workflows.Queued, stats.Workflows.Running, stats.Workflows.Completed, stats.Workflows.Failed)
	fmt.Fprintf(out, "jobs:      %d pending / %d running / %d completed / %d failed\n",
		stats.Jobs.Pending, stats.Jobs.Running, stats.Jobs.Completed, stats.Jobs.Failed)
	return nil
}

func workflowStatus(cmd *cobra.Command, c *client.Client, workflowID string) error {
	status, err := c.GetStatus(cmd.Context(), workflowID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := status.Workflow
	fmt.Fprintf(out, "workflow %s\n", w.ID)
	fmt.Fprintf(out, "  type:     %s\n", w.Name)
	fmt.Fprintf(out, "  status:   %s\n", w.Status)
	if w.PropertyID != "" {
		fmt.Fprintf(out, "  property: %s\n", w.PropertyID)
	}
	fmt.Fprintf(out, "  created:  %s\n", w.CreatedAt.Format(time.RFC3339))
	if w.CompletedAt != nil {
		fmt.Fprintf(out, "  finished: %s\n", w.CompletedAt.Format(time.RFC3339))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tNODE\tSTATUS\tERROR")
	for _, j := range status.Jobs {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\n", j.Priority, j.NodeName, j.Status, j.Error)
	}
	return tw.Flush()
}
