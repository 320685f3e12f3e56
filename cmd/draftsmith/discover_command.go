package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"draftsmith/internal/config"
	"draftsmith/internal/discovery"
)

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var kindFlag string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Run a discovery sweep over configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newCommandLogger(cfg)
			if err != nil {
				return err
			}
			srcs, err := ctx.loadSources()
			if err != nil {
				return fmt.Errorf("load sources: %w", err)
			}

			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			var report discovery.Report
			kind := strings.TrimSpace(strings.ToLower(kindFlag))
			if kind != "" {
				if !validSourceKind(kind) {
					return fmt.Errorf("unknown source kind %q", kind)
				}
				report = rt.engine.RunOne(cmd.Context(), kind, srcs)
			} else {
				report = rt.engine.RunAll(cmd.Context(), srcs)
			}

			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().StringVar(&kindFlag, "kind", "", "Sweep only sources of one kind (video, feed, releases, stories)")
	cmd.AddCommand(newDiscoverReportCommand(ctx))
	return cmd
}

func newDiscoverReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show the last discovery report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := newCommandLogger(cfg)
			if err != nil {
				return err
			}
			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			report, ok, err := rt.engine.LastReport(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No discovery run recorded yet")
				return nil
			}
			printReport(cmd, report)
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, report discovery.Report) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Started", formatTime(report.StartedAt)},
		{"Finished", formatTime(report.FinishedAt)},
		{"Sources", fmt.Sprintf("%d", report.Sources)},
		{"New candidates", fmt.Sprintf("%d", report.Seen)},
		{"Skipped (seen)", fmt.Sprintf("%d", report.Skipped)},
		{"Approved", fmt.Sprintf("%d", report.Approved)},
		{"Errors", fmt.Sprintf("%d", len(report.Errors))},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, msg := range report.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
}

func validSourceKind(kind string) bool {
	switch kind {
	case config.KindVideo, config.KindFeed, config.KindReleases, config.KindStories:
		return true
	}
	return false
}
