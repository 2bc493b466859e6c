package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dynq/internal/ipc"
	"dynq/internal/queue"
)

type queueHealthReport struct {
	Queue    queue.HealthSummary  `json:"queue"`
	Database queue.DatabaseHealth `json:"database"`
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var report queueHealthReport
				if client != nil {
					summary, err := client.QueueHealth()
					if err != nil {
						return err
					}
					db, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					report = queueHealthReport{Queue: *summary, Database: *db}
				} else {
					summary, err := store.Health(cmd.Context())
					if err != nil {
						return err
					}
					db, err := store.CheckHealth(cmd.Context())
					if err != nil && db.Error == "" {
						return err
					}
					report = queueHealthReport{Queue: summary, Database: db}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, report)
				}

				printHealthReport(cmd.OutOrStdout(), report)
				return nil
			})
		},
	}
}

func printHealthReport(out io.Writer, report queueHealthReport) {
	db := report.Database
	missing := "none"
	if len(db.MissingColumns) > 0 {
		missing = strings.Join(slices.Sorted(slices.Values(db.MissingColumns)), ", ")
	}
	lines := [][2]string{
		{"Database path", db.DBPath},
		{"Database exists", yesNo(db.DatabaseExists)},
		{"Readable", yesNo(db.DatabaseReadable)},
		{"Directory writable", yesNo(db.DirectoryWritable)},
		{"Schema version", strconv.Itoa(db.SchemaVersion)},
		{"queue_items table present", yesNo(db.TableExists)},
		{"Missing columns", missing},
		{"Integrity check", yesNo(db.IntegrityCheck)},
		{"Total items", strconv.Itoa(db.TotalItems)},
		{"Interrupted items", strconv.Itoa(report.Queue.Interrupted)},
	}
	if db.Error != "" {
		lines = append(lines, [2]string{"Error", db.Error})
	}
	for _, line := range lines {
		fmt.Fprintf(out, "%s: %s\n", line[0], line[1])
	}
	if report.Queue.Total > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]string{"Status", "Count"}, buildQueueStatusRows(healthCounts(report.Queue)), []columnAlignment{alignLeft, alignRight}))
	}
}

func healthCounts(h queue.HealthSummary) map[string]int {
	return map[string]int{
		string(queue.StatusPending):         h.Pending,
		string(queue.StatusPaused):          h.Paused,
		string(queue.StatusRunning):         h.Running,
		string(queue.StatusDone):            h.Done,
		string(queue.StatusFailed):          h.Failed,
		string(queue.StatusPartiallyFailed): h.PartiallyFailed,
	}
}
