package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the shardq client.
// It registers the queue and msg command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "shardq",
		Short: "shardq client commands",
	}
	root.AddCommand(NewQueueCommand(baseURL))
	root.AddCommand(NewMessageCommand(baseURL))
	return root
}
