package apply

import (
	"fmt"

	"github.com/pyorchestrator/pyorchestrator/api/rest/service/manifest"
	imanifest "github.com/pyorchestrator/pyorchestrator/internal/manifest"
	"github.com/pyorchestrator/pyorchestrator/pkg/client"
	"github.com/pyorchestrator/pyorchestrator/pkg/env"
	"github.com/spf13/cobra"
)

var (
	paths   []string
	pattern string
	server  string
	prune   bool
)

// Cmd applies project manifests through the REST API.
var Cmd = &cobra.Command{
	Use:     "apply",
	Short:   "Apply project manifests via the REST API",
	Example: "pyorchestrator apply -p deploy/ --glob '**/*.yaml' --prune",
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := imanifest.Load(paths, pattern)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No manifests found.")
			return nil
		}

		target := server
		if target == "" {
			target = env.Variables().Server
		}

		resp, err := client.New(target).Apply(cmd.Context(), &manifest.ApplyRequest{Documents: docs, Prune: prune})
		if resp != nil {
			for _, p := range resp.Projects {
				fmt.Fprintf(cmd.OutOrStdout(), "project %s %s\n", p.Name, p.Action)
				for _, s := range p.Schedules {
					fmt.Fprintf(cmd.OutOrStdout(), "  schedule %s %s\n", s.Name, s.Action)
				}
			}
		}
		return err
	},
}

func init() {
	Cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "Manifest files or directories (default: current directory)")
	Cmd.Flags().StringVar(&pattern, "glob", imanifest.DefaultPattern, "Glob selecting manifest files inside directories")
	Cmd.Flags().StringVar(&server, "server", "", "pyorchestrator server base URL (default: $PYORCHESTRATOR_SERVER)")
	Cmd.Flags().BoolVar(&prune, "prune", false, "Delete schedules that the manifests no longer list")
}
