package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ngenohkevin/procdeck/internal/logbuf"
)

func newLogsCmd(client func() *Client) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs <process_id>",
		Short: "Print buffered terminal output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			out := cmd.OutOrStdout()

			if follow {
				return followLogs(cmd.Context(), client(), id, out)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			entries, err := client().Logs(ctx, id)
			if err != nil {
				return notFound(err, id)
			}
			for _, e := range entries {
				if _, err := io.WriteString(out, e.Chunk); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep streaming new output")
	return cmd
}

// followLogs replays the backlog and streams live output until the
// connection closes or ctx is cancelled
func followLogs(ctx context.Context, c *Client, id string, out io.Writer) error {
	conn, err := c.Terminal(ctx, id)
	if err != nil {
		return notFound(err, id)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var ev streamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if ev.Type != "log" {
			continue
		}
		var entry logbuf.Entry
		if err := json.Unmarshal(ev.Data, &entry); err != nil {
			continue
		}
		if _, err := io.WriteString(out, entry.Chunk); err != nil {
			return err
		}
	}
}
