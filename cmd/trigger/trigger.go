package trigger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pyorchestrator/pyorchestrator/internal/models"
	"github.com/pyorchestrator/pyorchestrator/pkg/client"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/spf13/cobra"
)

var (
	server   string
	schedule bool
	wait     bool
)

// Cmd triggers a project, or a schedule, immediately.
var Cmd = &cobra.Command{
	Use:     "trigger <project-id>",
	Short:   "Run a project now via the REST API",
	Example: "pyorchestrator trigger 2f6c0a4e-8f55-4a53-9e0e-3d7e4f1f2b10 --wait",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid id %q: %w", args[0], err)
		}

		target := server
		if target == "" {
			target = env.Variables().Server
		}
		c := client.New(target)

		var run *models.Run
		if schedule {
			run, err = c.TriggerSchedule(cmd.Context(), id)
		} else {
			run, err = c.TriggerProject(cmd.Context(), id)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s %s\n", run.ID, run.Status)

		if !wait {
			return nil
		}

		run, err = c.Wait(cmd.Context(), run.ID, time.Second)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "run %s %s\n%s\n", run.ID, run.Status, run.LogOutput)
		if run.Status == models.RunStatusFailed {
			return fmt.Errorf("run %s failed", run.ID)
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&server, "server", "", "pyorchestrator server base URL (default: $PYORCHESTRATOR_SERVER)")
	Cmd.Flags().BoolVar(&schedule, "schedule", false, "Treat the id as a schedule id")
	Cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish and print its log")
}
