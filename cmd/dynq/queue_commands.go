package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"dynq/internal/api"
	"dynq/internal/ipc"
	"dynq/internal/queue"
	"dynq/internal/view"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the operation queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueDispatchCommand(ctx, "play", true))
	queueCmd.AddCommand(newQueueDispatchCommand(ctx, "pause", false))
	queueCmd.AddCommand(newQueueStepCommand(ctx))
	queueCmd.AddCommand(newQueuePriorityCommand(ctx))
	queueCmd.AddCommand(newQueueTogglePauseCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueDeleteCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueInterruptedCommand(ctx))
	queueCmd.AddCommand(newQueueAckCommand(ctx))
	queueCmd.AddCommand(newQueueSettingsCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var (
					stats     map[string]int
					scheduler *api.SchedulerStatus
				)
				if client != nil {
					status, err := client.Status()
					if err != nil {
						return err
					}
					stats = status.Scheduler.QueueStats
					scheduler = &status.Scheduler
				} else {
					summary, err := store.Health(cmd.Context())
					if err != nil {
						return err
					}
					stats = api.MergeQueueStats(summary)
				}

				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
				} else {
					fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				}
				if scheduler != nil {
					printSchedulerStatus(out, *scheduler)
				} else {
					fmt.Fprintln(out, "Daemon not running; counts read from the queue database")
				}
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var filterFlag string
	var sortFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items in the current view",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var items []api.QueueItem
				if client != nil {
					resp, err := client.QueueList(filterFlag, sortFlag)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					var err error
					items, err = listFromStore(cmd, ctx, store, filterFlag, sortFlag)
					if err != nil {
						return err
					}
				}
				return renderQueueItems(cmd, ctx, items)
			})
		},
	}

	cmd.Flags().StringVarP(&filterFlag, "status", "s", "", "Filter by status (all, pending, paused, running, done, failed, partially_failed)")
	cmd.Flags().StringVar(&sortFlag, "sort", "", "Sort by priority, status, or source")
	return cmd
}

func listFromStore(cmd *cobra.Command, ctx *commandContext, store *queue.Store, filterValue, sortValue string) ([]api.QueueItem, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	settings, _, err := store.LoadSettings(cmd.Context(), queue.DefaultSettings(cfg.Queue.MaxConcurrent))
	if err != nil {
		return nil, err
	}
	filter := settings.Filter
	mode := settings.Sort
	if strings.TrimSpace(filterValue) != "" || strings.TrimSpace(sortValue) != "" {
		if filter, err = queue.ParseFilter(filterValue); err != nil {
			return nil, err
		}
		if mode, err = queue.ParseSortMode(sortValue); err != nil {
			return nil, err
		}
	}
	all, err := store.ListAll(cmd.Context())
	if err != nil {
		return nil, err
	}
	indices := view.Compute(all, filter, mode)
	selected := make([]*queue.Item, 0, len(indices))
	for _, idx := range indices {
		selected = append(selected, all[idx])
	}
	return api.FromQueueItems(selected), nil
}

func renderQueueItems(cmd *cobra.Command, ctx *commandContext, items []api.QueueItem) error {
	if ctx.JSONMode() {
		if items == nil {
			items = []api.QueueItem{}
		}
		return writeJSON(cmd, items)
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "Queue is empty")
		return nil
	}
	fmt.Fprint(out, renderTable(queueListHeaders, buildQueueListRows(items, shouldColorize(out)), queueListAligns))
	return nil
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show details and failed operations for a queue item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withStore(func(client *ipc.Client, store *queue.Store) error {
				var item api.QueueItem
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					stored, err := store.Get(cmd.Context(), id)
					if err != nil {
						return err
					}
					if stored == nil {
						return fmt.Errorf("queue item %s not found", id)
					}
					item = api.FromQueueItemDetailed(stored)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, item)
				}
				out := cmd.OutOrStdout()
				printQueueItem(out, item, shouldColorize(out))
				return nil
			})
		},
	}
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var envFlag string
	var batchSize int

	cmd := &cobra.Command{
		Use:   "add <file|->",
		Short: "Enqueue a batch of operations from a JSON build request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := readBuildRequest(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(envFlag) != "" {
				req.Environment = strings.TrimSpace(envFlag)
			}
			if cmd.Flags().Changed("batch-size") {
				req.BatchSize = batchSize
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueAdd(ipc.QueueAddRequest{Batch: req})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp.Items)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Queued %d items\n", len(resp.Items))
				if len(resp.Items) > 0 {
					fmt.Fprint(out, renderTable(queueListHeaders, buildQueueListRows(resp.Items, shouldColorize(out)), queueListAligns))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&envFlag, "env", "e", "", "Target environment (overrides the file)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Operations per queue item (0 keeps each phase whole)")
	return cmd
}

func readBuildRequest(stdin io.Reader, path string) (queue.BuildRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return queue.BuildRequest{}, fmt.Errorf("read build request: %w", err)
	}
	var req queue.BuildRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return queue.BuildRequest{}, fmt.Errorf("parse build request: %w", err)
	}
	if len(req.Entities) == 0 {
		return queue.BuildRequest{}, errors.New("build request has no entities")
	}
	return req, nil
}

func newQueueDispatchCommand(ctx *commandContext, use string, enabled bool) *cobra.Command {
	short := "Start continuous dispatch up to the concurrency limit"
	if !enabled {
		short = "Stop starting new items; running items finish"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.AutoDispatch(enabled)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if !resp.Enabled {
					fmt.Fprintln(out, "Auto-dispatch paused")
					return nil
				}
				fmt.Fprintf(out, "Auto-dispatch enabled; started %d items\n", len(resp.Started))
				return nil
			})
		},
	}
}

func newQueueStepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "step [id]",
		Short: "Run one item now; a failed item id is retried directly",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueStep(id)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				if resp.Started == "" {
					fmt.Fprintln(cmd.OutOrStdout(), "No eligible item to run")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Started %s\n", resp.Started)
				return nil
			})
		},
	}
}

func newQueuePriorityCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "priority <id> <up|down|0-255>",
		Short: "Move an item up or down, or set its priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parsePriorityArgs(args[0], args[1])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueuePriority(req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s priority is now %d\n", req.ID, resp.Priority)
				return nil
			})
		},
	}
}

// parsePriorityArgs maps "up" to running sooner (a lower value).
func parsePriorityArgs(id, value string) (ipc.QueuePriorityRequest, error) {
	req := ipc.QueuePriorityRequest{ID: strings.TrimSpace(id)}
	if req.ID == "" {
		return req, errors.New("queue item id is required")
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "up", "+":
		req.Delta = -1
	case "down", "-":
		req.Delta = 1
	default:
		n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 8)
		if err != nil {
			return req, fmt.Errorf("invalid priority %q: want up, down, or 0-255", value)
		}
		set := uint8(n)
		req.Set = &set
	}
	return req, nil
}

func newQueueTogglePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-pause <id>",
		Short: "Pause a pending item or resume a paused one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueTogglePause(strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s is %s\n", args[0], queue.Status(resp.Status).Label())
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>...",
		Short: "Reset failed items to pending; confirmed operations are not resent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry(args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				for _, item := range resp.Items {
					switch item.Outcome {
					case api.RetryItemNotFound:
						fmt.Fprintf(out, "Item %s not found\n", item.ID)
					case api.RetryItemNotFailed:
						fmt.Fprintf(out, "Item %s is not failed\n", item.ID)
					}
				}
				fmt.Fprintf(out, "Retried %d items\n", resp.UpdatedCount)
				return nil
			})
		},
	}
}

func newQueueDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"remove", "rm"},
		Short:   "Delete items that are not running",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRemove(args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				for _, item := range resp.Items {
					switch item.Outcome {
					case api.RemoveItemNotFound:
						fmt.Fprintf(out, "Item %s not found\n", item.ID)
					case api.RemoveItemRunning:
						fmt.Fprintf(out, "Item %s is running; wait for it to finish\n", item.ID)
					}
				}
				fmt.Fprintf(out, "Removed %d items\n", resp.RemovedCount)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every queue item (refused while items are running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear()
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queue items\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueInterruptedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "interrupted",
		Short: "List items whose attempt was cut short by a daemon restart",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueInterrupted()
				if err != nil {
					return err
				}
				return renderQueueItems(cmd, ctx, resp.Items)
			})
		},
	}
}

func newQueueAckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ack [id]...",
		Short: "Acknowledge interrupted items (all when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueAcknowledge(args)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Acknowledged %d interrupted items\n", resp.Cleared)
				return nil
			})
		},
	}
}

func newQueueSettingsCommand(ctx *commandContext) *cobra.Command {
	var req ipc.QueueSettingsRequest

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the saved view and concurrency limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max-concurrent") && req.MaxConcurrent < 1 {
				return errors.New("max-concurrent must be at least 1")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueSettings(req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Filter:         %s\n", resp.Filter)
				fmt.Fprintf(out, "Sort:           %s\n", resp.Sort)
				fmt.Fprintf(out, "Max concurrent: %d\n", resp.MaxConcurrent)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.Filter, "filter", "", "Saved status filter")
	cmd.Flags().StringVar(&req.Sort, "sort", "", "Saved sort mode")
	cmd.Flags().IntVar(&req.MaxConcurrent, "max-concurrent", 0, "Concurrent item limit")
	return cmd
}
