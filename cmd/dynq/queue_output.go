package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dynq/internal/api"
	"dynq/internal/queue"
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		count := stats[string(status)]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{status.Label(), strconv.Itoa(count)})
	}
	return rows
}

var queueListHeaders = []string{"#", "ID", "Pri", "Status", "Description", "Progress", "Env"}

var queueListAligns = []columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft}

func buildQueueListRows(items []api.QueueItem, colorize bool) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		status := item.StatusLabel
		if status == "" {
			status = item.Status
		}
		if item.WasInterrupted {
			status += " (interrupted)"
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.Seq, 10),
			item.ID,
			strconv.Itoa(int(item.Priority)),
			colorStatus(item.Status, status, colorize),
			item.Description,
			formatProgress(item.Progress),
			item.Environment,
		})
	}
	return rows
}

func formatProgress(p api.QueueProgress) string {
	return fmt.Sprintf("%d/%d", p.Succeeded, p.Total)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Second).String()
}

// formatTimestamp renders an API timestamp in local time.
func formatTimestamp(value string) string {
	t := api.ParseQueueTime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatEstimate(est api.Estimate) string {
	if est.Samples == 0 {
		return "n/a"
	}
	return formatDuration(time.Duration(est.RemainingSeconds * float64(time.Second)))
}

func printQueueItem(out io.Writer, item api.QueueItem, colorize bool) {
	fmt.Fprintf(out, "ID:          %s\n", item.ID)
	fmt.Fprintf(out, "Sequence:    %d\n", item.Seq)
	fmt.Fprintf(out, "Description: %s\n", item.Description)
	fmt.Fprintf(out, "Status:      %s\n", colorStatus(item.Status, item.StatusLabel, colorize))
	fmt.Fprintf(out, "Priority:    %d\n", item.Priority)
	fmt.Fprintf(out, "Environment: %s\n", item.Environment)
	fmt.Fprintf(out, "Source:      %s\n", item.Source)
	if item.RowNumber != nil {
		fmt.Fprintf(out, "Row:         %d\n", *item.RowNumber)
	}
	fmt.Fprintf(out, "Progress:    %s (%d remaining)\n", formatProgress(item.Progress), item.Progress.Remaining)
	if item.CreatedAt != "" {
		fmt.Fprintf(out, "Created:     %s\n", formatTimestamp(item.CreatedAt))
	}
	if item.StartedAt != "" {
		fmt.Fprintf(out, "Started:     %s\n", formatTimestamp(item.StartedAt))
	}
	if item.WasInterrupted {
		fmt.Fprintf(out, "Interrupted: %s\n", formatTimestamp(item.InterruptedAt))
	}
	if res := item.Result; res != nil {
		outcome := "success"
		if !res.Success {
			outcome = "failure"
		}
		fmt.Fprintf(out, "Last result: %s, %d/%d operations ok in %s\n",
			outcome, res.Succeeded, res.Reported, formatDuration(time.Duration(res.DurationMS)*time.Millisecond))
		if res.Error != "" {
			fmt.Fprintf(out, "Error:       %s\n", res.Error)
		}
	}
	if len(item.Failures) > 0 {
		rows := make([][]string, 0, len(item.Failures))
		for _, f := range item.Failures {
			code := "-"
			if f.StatusCode != nil {
				code = strconv.Itoa(*f.StatusCode)
			}
			rows = append(rows, []string{strconv.Itoa(f.Position), f.Kind, f.Entity, code, f.Error})
		}
		fmt.Fprintln(out, "Failed operations:")
		fmt.Fprint(out, renderTable(
			[]string{"Op", "Kind", "Entity", "Code", "Error"},
			rows,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
		))
	}
}

func printSchedulerStatus(out io.Writer, status api.SchedulerStatus) {
	mode := "stepping (paused)"
	if status.AutoDispatch {
		mode = "auto-dispatch"
	}
	fmt.Fprintf(out, "Mode:           %s\n", mode)
	fmt.Fprintf(out, "Max concurrent: %d\n", status.MaxConcurrent)
	fmt.Fprintf(out, "Priority tiers: %s\n", yesNo(status.PriorityTiers))
	fmt.Fprintf(out, "View:           filter=%s sort=%s\n", status.Filter, status.Sort)
	fmt.Fprintf(out, "Running:        %d\n", len(status.Running))
	if status.Interrupted > 0 {
		fmt.Fprintf(out, "Interrupted:    %d (acknowledge with `dynq queue ack`)\n", status.Interrupted)
	}
	if len(status.Estimates) > 0 {
		parts := make([]string, 0, len(status.Estimates))
		for _, est := range status.Estimates {
			parts = append(parts, fmt.Sprintf("last %d: %s", est.Window, formatEstimate(est)))
		}
		fmt.Fprintf(out, "Remaining:      %s\n", strings.Join(parts, ", "))
	}
}
