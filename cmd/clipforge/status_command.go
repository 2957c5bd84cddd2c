package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			for {
				status, err := client.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !watch || status.Status == queue.StatusCompleted || status.Status == queue.StatusFailed {
					if jsonOut {
						return writeJSON(cmd, status)
					}
					printStatus(cmd, args[0], status)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %d%%\n", args[0], status.Status, status.Progress)
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the status as JSON")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the task finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Poll interval for --watch")
	return cmd
}

func printStatus(cmd *cobra.Command, id string, status queue.StatusResponse) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	kind := statusInfo
	switch status.Status {
	case queue.StatusCompleted:
		kind = statusOK
	case queue.StatusFailed:
		kind = statusError
	}
	fmt.Fprintln(out, renderStatusLine(id, kind, fmt.Sprintf("%s %d%%", status.Status, status.Progress), colorize))
	if status.Error != "" {
		fmt.Fprintf(out, "%sError: %s\n", statusIndent, status.Error)
	}
	if len(status.Result) > 0 {
		fmt.Fprintf(out, "%sResult: %s\n", statusIndent, strings.TrimSpace(string(status.Result)))
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue and worker statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			stats, err := client.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, stats)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(out, line)
			}
			backend := stats.Backend
			kind := statusOK
			if stats.Degraded {
				backend += " (degraded)"
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Backend", kind, backend, colorize))
			fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, strconv.Itoa(stats.QueueLength), colorize))
			fmt.Fprintln(out, renderStatusLine("Active", statusInfo, strconv.Itoa(stats.ActiveTasks), colorize))
			fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, strconv.Itoa(stats.Completed), colorize))
			fmt.Fprintln(out, renderStatusLine("Failed", statusInfo, strconv.Itoa(stats.Failed), colorize))
			fmt.Fprintln(out, renderStatusLine("Workers online", statusInfo, strconv.Itoa(stats.WorkersOnline), colorize))

			if len(stats.Workers) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(stats.Workers))
			for _, w := range stats.Workers {
				rows = append(rows, []string{
					w.WorkerID,
					yesNo(w.Running),
					fmt.Sprintf("%d/%d", w.Active, w.Concurrency),
					strconv.FormatInt(w.Processed, 10),
					strconv.FormatInt(w.Errors, 10),
					w.LastError,
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, renderTable(
				[]string{"Worker", "Running", "Active", "Processed", "Errors", "Last error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print the stats as JSON")
	return cmd
}
