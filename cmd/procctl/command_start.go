package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngenohkevin/procdeck/internal/process"
)

// hookFlags holds the hook commands shared by start and update
type hookFlags struct {
	beforeStop string
	afterStop  string
}

func (h *hookFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&h.beforeStop, "before-stop", "", "command to run before the process is stopped")
	cmd.Flags().StringVar(&h.afterStop, "after-stop", "", "command to run after the process has stopped")
}

func (h *hookFlags) request(args []string) process.StartRequest {
	return process.StartRequest{
		Command:    args[0],
		Args:       append([]string{}, args[1:]...),
		BeforeStop: h.beforeStop,
		AfterStop:  h.afterStop,
	}
}

func commandArgs(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("command to execute is required; use -- to separate CLI flags from the command")
	}
	return nil
}

func newStartCmd(client func() *Client) *cobra.Command {
	var hooks hookFlags

	cmd := &cobra.Command{
		Use:   "start [flags] -- <command> [args...]",
		Short: "Start a new process",
		Args:  commandArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			p, err := client().Start(ctx, hooks.request(args))
			if err != nil {
				return err
			}
			// Print only the process ID so it can be captured by scripts
			fmt.Fprintln(cmd.OutOrStdout(), p.ID)
			return nil
		},
	}
	hooks.register(cmd)
	return cmd
}

func newUpdateCmd(client func() *Client) *cobra.Command {
	var hooks hookFlags

	cmd := &cobra.Command{
		Use:   "update <process_id> [flags] -- <command> [args...]",
		Short: "Replace the definition of a process; applies on next restart",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("process id is required")
			}
			return commandArgs(cmd, args[1:])
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			p, err := client().Update(ctx, args[0], hooks.request(args[1:]))
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), []process.Record{p})
			return nil
		},
	}
	hooks.register(cmd)
	return cmd
}
