// File: cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/nxadm/tail"
	"github.com/spf13/cobra"
)

type logsOptions struct {
	follow bool
	file   string
}

func newLogsCmd(a *app) *cobra.Command {
	opts := &logsOptions{}
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the structured log file",
		Long:  "Print the JSON log file written by logger.log_file. With --follow, keep printing new lines until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.file
			if path == "" {
				path = a.cfg.Logger().LogFile
			}
			return tailLog(cmd.Context(), cmd.OutOrStdout(), path, opts.follow)
		},
	}
	logsCmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "keep printing lines as they are written")
	logsCmd.Flags().StringVar(&opts.file, "file", "", "log file to read (defaults to logger.log_file)")
	return logsCmd
}

// tailLog copies path to out. When follow is set it survives log rotation and
// returns only once ctx is cancelled.
func tailLog(ctx context.Context, out io.Writer, path string, follow bool) error {
	if path == "" {
		return fmt.Errorf("file logging is disabled (logger.log_file is empty)")
	}

	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Wait()
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}
