package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngenohkevin/procdeck/internal/process"
)

// lifecycleTimeout covers both hooks and the stop wait
const lifecycleTimeout = 2 * time.Minute

func notFound(err error, id string) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return fmt.Errorf("process %s not found or not running", id)
	}
	return err
}

func newStopCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <process_id>",
		Short: "Stop a process, running its hooks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), lifecycleTimeout)
			defer cancel()

			if err := client().Stop(ctx, args[0]); err != nil {
				return notFound(err, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			return nil
		},
	}
}

func newRestartCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <process_id>",
		Short: "Stop a process if running and start it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), lifecycleTimeout)
			defer cancel()

			p, err := client().Restart(ctx, args[0])
			if err != nil {
				return notFound(err, args[0])
			}
			printTable(cmd.OutOrStdout(), []process.Record{p})
			return nil
		},
	}
}

func newRemoveCmd(client func() *Client) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <process_id>",
		Aliases: []string{"remove"},
		Short:   "Remove a process and its logs",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			if err := client().Remove(ctx, args[0]); err != nil {
				return notFound(err, args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), "removed")
			return nil
		},
	}
}
