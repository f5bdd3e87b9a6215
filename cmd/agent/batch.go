package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"layout-agent/internal/application/port/input"
	"layout-agent/internal/di"
	"layout-agent/internal/domain/entity"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newBatchCmd(opts *rootOptions) *cobra.Command {
	var maxActions int
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run every url<TAB>goal line of a file concurrently",
		Long: "Each non-empty line that does not start with # holds a start URL and a goal " +
			"separated by a tab. Sessions share the browser context pool.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open batch file: %w", err)
			}
			reqs, err := parseBatch(f, maxActions)
			f.Close()
			if err != nil {
				return err
			}
			return withContainer(cmd.Context(), opts, func(c *di.Container) error {
				return runBatch(cmd.Context(), c.Navigator, reqs, cmd.OutOrStdout(), opts.pretty)
			})
		},
	}
	cmd.Flags().IntVarP(&maxActions, "max-actions", "n", 0, "action budget per session")
	return cmd
}

func parseBatch(r io.Reader, maxActions int) ([]input.RunRequest, error) {
	var reqs []input.RunRequest
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		url, goal, ok := strings.Cut(text, "\t")
		url, goal = strings.TrimSpace(url), strings.TrimSpace(goal)
		if !ok || url == "" || goal == "" {
			return nil, fmt.Errorf("line %d: want url<TAB>goal", line)
		}
		reqs = append(reqs, input.RunRequest{URL: url, Goal: goal, MaxActions: maxActions})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("batch file has no sessions")
	}
	return reqs, nil
}

// runBatch starts every session at once; the pool decides how many hold a
// browser context. Reports are written in input order.
func runBatch(ctx context.Context, nav input.Navigator, reqs []input.RunRequest, w io.Writer, pretty bool) error {
	reports := make([]*entity.Report, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			rep, err := nav.Run(gctx, req)
			reports[i] = rep
			if err != nil && ctx.Err() != nil {
				return err
			}
			return nil
		})
	}
	waitErr := g.Wait()

	failed := 0
	for _, rep := range reports {
		if rep == nil || rep.TerminationReason != entity.StateSucceeded {
			failed++
		}
	}
	if err := writeJSON(w, reports, pretty); err != nil {
		return err
	}
	if waitErr != nil {
		return waitErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sessions did not succeed", failed, len(reqs))
	}
	return nil
}
