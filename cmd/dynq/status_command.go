package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dynq/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and scheduler status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := ctx.dialClient()
			if err != nil {
				if !daemonUnavailable(err) {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, ipc.StatusResponse{SocketPath: ctx.socketPath()})
				}
				fmt.Fprintln(out, "Daemon: not running")
				fmt.Fprintf(out, "Socket: %s\n", ctx.socketPath())
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, status)
			}
			fmt.Fprintf(out, "Daemon:         running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "Queue DB:       %s\n", status.QueueDBPath)
			fmt.Fprintf(out, "Socket:         %s\n", status.SocketPath)
			if len(status.Environments) > 0 {
				fmt.Fprintf(out, "Environments:   %s\n", strings.Join(status.Environments, ", "))
			}
			if status.Recovered > 0 {
				fmt.Fprintf(out, "Recovered:      %d items interrupted by the last shutdown\n", status.Recovered)
			}
			printSchedulerStatus(out, status.Scheduler)
			return nil
		},
	}
}
