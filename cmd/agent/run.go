package main

import (
	"context"
	"fmt"
	"io"

	"layout-agent/internal/application/port/input"
	"layout-agent/internal/di"
	"layout-agent/internal/domain/entity"

	"github.com/spf13/cobra"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var maxActions int
	cmd := &cobra.Command{
		Use:   "run <url> <goal>",
		Short: "Run one navigation session and print its report",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := input.RunRequest{URL: args[0], Goal: args[1], MaxActions: maxActions}
			return withContainer(cmd.Context(), opts, func(c *di.Container) error {
				return runOne(cmd.Context(), c.Navigator, req, cmd.OutOrStdout(), opts.pretty)
			})
		},
	}
	cmd.Flags().IntVarP(&maxActions, "max-actions", "n", 0, "action budget (0 uses the configured max_actions)")
	return cmd
}

func runOne(ctx context.Context, nav input.Navigator, req input.RunRequest, w io.Writer, pretty bool) error {
	rep, runErr := nav.Run(ctx, req)
	if rep != nil {
		if err := writeJSON(w, rep, pretty); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if rep.TerminationReason != entity.StateSucceeded {
		return fmt.Errorf("run %s ended %s", rep.RunID, rep.TerminationReason)
	}
	return nil
}
