package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"draftsmith/internal/workflow"
)

func newWorkflowCommand(ctx *commandContext) *cobra.Command {
	workflowCmd := &cobra.Command{
		Use:   "workflow",
		Short: "Inspect and manage enhancement workflows",
	}
	workflowCmd.AddCommand(newWorkflowStartCommand(ctx))
	workflowCmd.AddCommand(newWorkflowStatusCommand(ctx))
	workflowCmd.AddCommand(newWorkflowListCommand(ctx))
	workflowCmd.AddCommand(newWorkflowResumeCommand(ctx))
	return workflowCmd
}

func newWorkflowStartCommand(ctx *commandContext) *cobra.Command {
	var input workflow.Input
	var tags string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workflow for an item manually",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := commandRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			if tags != "" {
				for _, tag := range strings.Split(tags, ",") {
					if tag = strings.TrimSpace(tag); tag != "" {
						input.Tags = append(input.Tags, tag)
					}
				}
			}
			id, err := rt.orchestrator.Start(cmd.Context(), input)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started workflow %s for item %s\n", id, input.ItemID)
			return nil
		},
	}

	cmd.Flags().StringVar(&input.ItemID, "item", "", "Item identifier (required)")
	cmd.Flags().StringVar(&input.Title, "title", "", "Item title (required)")
	cmd.Flags().StringVar(&input.URL, "url", "", "Item URL")
	cmd.Flags().StringVar(&input.Description, "description", "", "Item summary")
	cmd.Flags().StringVar(&input.Category, "category", "", "Target category")
	cmd.Flags().StringVar(&input.Section, "section", "", "Target section")
	cmd.Flags().StringVar(&tags, "tags", "", "Comma-separated tags")
	cmd.Flags().BoolVar(&input.Featured, "featured", false, "Crosspost when the draft completes")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newWorkflowStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <item-id>",
		Short: "Show one workflow's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := commandRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			state, err := rt.orchestrator.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Item", state.Input.ItemID},
				{"Title", state.Input.Title},
				{"Status", string(state.Status)},
				{"Started", formatTime(state.StartedAt)},
			}
			if state.CompletedAt != nil {
				rows = append(rows, []string{"Completed", formatTime(*state.CompletedAt)})
			}
			if state.PageID != "" {
				rows = append(rows, []string{"Page", state.PageID})
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

			if len(state.StageResults) > 0 {
				stages := make([]string, 0, len(state.StageResults))
				for stage := range state.StageResults {
					stages = append(stages, stage)
				}
				sort.Strings(stages)
				stageRows := make([][]string, 0, len(stages))
				for _, stage := range stages {
					result := state.StageResults[stage]
					stageRows = append(stageRows, []string{
						stage, formatTime(result.CompletedAt), truncate(result.Payload, 60),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Stage", "Completed", "Output"}, stageRows, nil))
			}
			return nil
		},
	}
}

func newWorkflowListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := commandRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			summaries, err := rt.orchestrator.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No workflows")
				return nil
			}
			sort.Slice(summaries, func(i, j int) bool {
				return summaries[i].StartedAt.Before(summaries[j].StartedAt)
			})
			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				completed := ""
				if s.CompletedAt != nil {
					completed = formatTime(*s.CompletedAt)
				}
				rows = append(rows, []string{
					s.ItemID, truncate(s.Title, 40), string(s.Status), formatTime(s.StartedAt), completed,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"Item", "Title", "Status", "Started", "Completed"}, rows, nil))
			return nil
		},
	}
}

func newWorkflowResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <item-id>",
		Short: "Re-enqueue a stalled workflow's pending work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := commandRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			status, err := rt.orchestrator.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Re-enqueued %s at status %s\n", args[0], status)
			return nil
		},
	}
}

func commandRuntime(ctx *commandContext) (*runtime, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newCommandLogger(cfg)
	if err != nil {
		return nil, err
	}
	return newRuntime(cfg, logger)
}
