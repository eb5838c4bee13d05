package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const defaultAddress = "http://127.0.0.1:8092"

// NewRootCmd builds the procctl command tree
func NewRootCmd() *cobra.Command {
	var addr string

	root := &cobra.Command{
		Use:           "procctl",
		Short:         "Control processes supervised by a procdeck agent",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&addr, "addr", envAddress(), "agent address (env PROCDECK_ADDR)")

	client := func() *Client {
		return NewClient(addr)
	}

	root.AddCommand(newListCmd(client))
	root.AddCommand(newStartCmd(client))
	root.AddCommand(newStopCmd(client))
	root.AddCommand(newRestartCmd(client))
	root.AddCommand(newRemoveCmd(client))
	root.AddCommand(newUpdateCmd(client))
	root.AddCommand(newLogsCmd(client))
	root.AddCommand(newInputCmd(client))
	root.AddCommand(newSummaryCmd(client))

	return root
}

func envAddress() string {
	addr := os.Getenv("PROCDECK_ADDR")
	if strings.TrimSpace(addr) == "" {
		return defaultAddress
	}
	return addr
}
