package prepare

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pyorchestrator/pyorchestrator/api/rest/service/project"
	"github.com/pyorchestrator/pyorchestrator/internal/app"
	"github.com/pyorchestrator/pyorchestrator/internal/environment"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/pkg/db"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/spf13/cobra"
)

// Cmd prepares a project's environment without a running server.
var Cmd = &cobra.Command{
	Use:     "prepare <project-name>",
	Short:   "Sync a project's source and prepare its Python environment",
	Example: "pyorchestrator prepare etl",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()

		if err := db.Migrate(); err != nil {
			return err
		}

		vars := env.Variables()
		st := store.New(db.Connection())
		svc := project.New(st, nil, nil, app.Resolver(vars),
			environment.NewPreparer(nil, vars.UVBin, vars.PythonBin), nil)

		p, err := svc.GetByName(ctx, args[0])
		if err != nil {
			return err
		}

		res, err := svc.Prepare(ctx, p.ID)
		if res != nil {
			for _, line := range res.Narrative {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
		}
		return err
	},
}
