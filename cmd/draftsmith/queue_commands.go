package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"draftsmith/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the work queue",
	}
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending message counts by kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := commandRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			counts, err := rt.queue.PendingByKind(cmd.Context())
			if err != nil {
				return err
			}
			total := 0
			rows := make([][]string, 0, len(counts))
			for _, kind := range queue.AllKinds() {
				count, ok := counts[kind]
				if !ok {
					continue
				}
				rows = append(rows, []string{string(kind), fmt.Sprintf("%d", count)})
				total += count
			}
			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			rows = append(rows, []string{"total", fmt.Sprintf("%d", total)})
			fmt.Fprintln(out, renderTable([]string{"Kind", "Pending"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}
