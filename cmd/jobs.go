// File: cmd/jobs.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/webpilot/internal/service"
	"github.com/xkilldash9x/webpilot/internal/store"
)

// errNoDatabase is returned by commands that read jobs from another process.
var errNoDatabase = errors.New("no database configured (set database.url or WEBPILOT_DATABASE_URL); in-memory jobs live only inside `serve`")

// openStore is swapped in tests.
var openStore = func(ctx context.Context, a *app) (store.JobStore, func(), error) {
	if a.cfg.Database().URL == "" {
		return nil, nil, errNoDatabase
	}
	st, pool, err := service.InitializeJobStore(ctx, a.cfg.Database(), a.logger, false)
	if err != nil {
		return nil, nil, err
	}
	return st, pool.Close, nil
}

func newJobsCmd(a *app) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect stored jobs",
	}

	var output string
	jobsCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")

	jobsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all jobs, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.listJobs(cmd.Context(), cmd.OutOrStdout(), output)
			},
		},
		&cobra.Command{
			Use:   "get <id> [id...]",
			Short: "Show one or more jobs in full",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.getJobs(cmd.Context(), cmd.OutOrStdout(), output, args)
			},
		},
	)
	return jobsCmd
}

func (a *app) listJobs(ctx context.Context, out io.Writer, format string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	st, closeStore, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer closeStore()

	jobs, err := st.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if format == "text" {
		return printJobTable(out, jobs)
	}
	return encode(out, format, jobs)
}

// getJobs fetches every requested job concurrently and prints them in
// argument order. Structured formats print a list when more than one id is given.
func (a *app) getJobs(ctx context.Context, out io.Writer, format string, args []string) error {
	if err := checkFormat(format); err != nil {
		return err
	}
	ids := make([]int64, len(args))
	for i, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid job id %q", arg)
		}
		ids[i] = id
	}

	st, closeStore, err := openStore(ctx, a)
	if err != nil {
		return err
	}
	defer closeStore()

	jobs := make([]*store.Job, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, id := range ids {
		g.Go(func() error {
			j, err := st.Get(gctx, id)
			if err != nil {
				return fmt.Errorf("job %d: %w", id, err)
			}
			jobs[i] = j
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if format != "text" && len(jobs) > 1 {
		return encode(out, format, jobs)
	}
	for i, j := range jobs {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := printJob(out, format, j); err != nil {
			return err
		}
	}
	return nil
}
