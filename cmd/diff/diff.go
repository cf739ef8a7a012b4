package diff

import (
	"fmt"
	"io"
	"strings"

	"github.com/pyorchestrator/pyorchestrator/internal/manifest"
	"github.com/pyorchestrator/pyorchestrator/internal/store"
	"github.com/pyorchestrator/pyorchestrator/pkg/db"
	"github.com/spf13/cobra"
)

var (
	paths   []string
	pattern string
)

// Cmd shows what applying manifests would change in the database.
var Cmd = &cobra.Command{
	Use:     "diff",
	Short:   "Show changes between project manifests and the database",
	Example: "pyorchestrator diff -p deploy/",
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := manifest.Load(paths, pattern)
		if err != nil {
			return err
		}

		desired, err := manifest.DesiredSpecs(docs)
		if err != nil {
			return err
		}

		if err := db.Migrate(); err != nil {
			return err
		}

		actual, err := manifest.CurrentSpecs(cmd.Context(), store.New(db.Connection()))
		if err != nil {
			return err
		}

		Print(cmd.OutOrStdout(), manifest.Compare(desired, actual))
		return nil
	},
}

func init() {
	Cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "Manifest files or directories (default: current directory)")
	Cmd.Flags().StringVar(&pattern, "glob", manifest.DefaultPattern, "Glob selecting manifest files inside directories")
}

// Print renders a diff for humans.
func Print(out io.Writer, diff manifest.Diff) {
	if diff.Empty() {
		fmt.Fprintln(out, "No changes detected.")
	}

	if len(diff.Creates) > 0 {
		fmt.Fprintln(out, "Creates:")
		for _, spec := range diff.Creates {
			fmt.Fprintf(out, "  - %s\n", spec.Name)
		}
		fmt.Fprintln(out)
	}

	if len(diff.Updates) > 0 {
		fmt.Fprintln(out, "Updates:")
		for _, upd := range diff.Updates {
			fmt.Fprintf(out, "  - %s\n", upd.Name)
			fmt.Fprintln(out, indent(upd.Diff, "    "))
		}
		fmt.Fprintln(out)
	}

	if len(diff.Unmanaged) > 0 {
		fmt.Fprintln(out, "Not described by any manifest:")
		for _, spec := range diff.Unmanaged {
			fmt.Fprintf(out, "  - %s\n", spec.Name)
		}
	}
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
