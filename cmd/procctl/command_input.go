package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ngenohkevin/procdeck/internal/process"
)

func newInputCmd(client func() *Client) *cobra.Command {
	var (
		hook      string
		noNewline bool
	)

	cmd := &cobra.Command{
		Use:   "input <process_id> <text...>",
		Short: "Send a line of input to a process or one of its running hooks",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			id := args[0]
			data := strings.Join(args[1:], " ")
			if !noNewline {
				data += "\n"
			}

			var err error
			switch process.HookPhase(hook) {
			case "":
				err = client().Input(ctx, id, data)
			case process.PhaseBeforeStop, process.PhaseAfterStop:
				err = client().HookInput(ctx, process.HookKey(id, process.HookPhase(hook)), data)
			default:
				return fmt.Errorf("unknown hook %q, expected %s or %s", hook, process.PhaseBeforeStop, process.PhaseAfterStop)
			}
			if err != nil {
				return notFound(err, id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&hook, "hook", "", "write to the running beforeStop or afterStop hook instead")
	cmd.Flags().BoolVarP(&noNewline, "no-newline", "n", false, "do not append a newline")
	return cmd
}
