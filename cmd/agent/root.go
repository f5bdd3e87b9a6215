package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"layout-agent/internal/config"
	"layout-agent/internal/di"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

type rootOptions struct {
	configFile string
	pretty     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "layout-agent",
		Short:         "Drive a browser towards a goal with a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "optional YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "indent JSON reports")

	cmd.AddCommand(newRunCmd(opts), newBatchCmd(opts))
	return cmd
}

// withContainer loads configuration, builds the container and tears it down
// after fn returns.
func withContainer(ctx context.Context, opts *rootOptions, fn func(c *di.Container) error) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	c, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		c.Close(closeCtx)
	}()
	return fn(c)
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
