package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"draftsmith/internal/daemon"
	"draftsmith/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Daemon lifecycle",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			level := cfg.Logging.Level
			if logLevel != "" {
				level = logLevel
			}
			logger, err := logging.NewForDir(cfg.Paths.LogDir, level, cfg.Logging.Format)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			srcs, err := ctx.loadSources()
			if err != nil {
				if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("load sources: %w", err)
				}
				logger.Warn("sources file missing, discovery idle",
					logging.String("path", cfg.Paths.SourcesFile))
				srcs = nil
			}

			rt, err := newRuntime(cfg, logger)
			if err != nil {
				return err
			}

			d, err := daemon.New(cfg, rt.store, rt.queue, rt.dispatcher, rt.engine, rt.publisher, srcs, logger)
			if err != nil {
				rt.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			signalCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			<-signalCtx.Done()
			logger.Info("draftsmith daemon shutting down")
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override configured log level")
	return cmd
}
