package cmd

import (
	"context"

	"github.com/pyorchestrator/pyorchestrator/cmd/apply"
	"github.com/pyorchestrator/pyorchestrator/cmd/diff"
	"github.com/pyorchestrator/pyorchestrator/cmd/prepare"
	"github.com/pyorchestrator/pyorchestrator/cmd/start"
	"github.com/pyorchestrator/pyorchestrator/cmd/trigger"
	"github.com/spf13/cobra"
)

var cmds = []*cobra.Command{
	start.Cmd,
	prepare.Cmd,
	apply.Cmd,
	diff.Cmd,
	trigger.Cmd,
}

// Execute builds the command tree and executes commands.
func Execute() error {
	command := &cobra.Command{
		Use:          "pyorchestrator",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Usage()
		},
	}

	for _, c := range cmds {
		command.AddCommand(c)
	}

	return command.ExecuteContext(context.Background())
}
