package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaban/plughost/project"
)

func newConvertCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Convert a project between the XML, JSON and YAML formats",
		Long: `Read a project and write it back in the format picked from the output
file extension (.phproj, .phpreset, .xml, .json, .yaml, .yml).

Example:
  plughost convert live.phproj live.yaml`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(cmd.OutOrStdout(), g.json, g.quiet)
			if _, ok := project.FormatFor(args[1]); !ok {
				return fmt.Errorf("%w: %s", project.ErrUnknownFormat, args[1])
			}
			doc, err := project.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read project: %w", err)
			}
			if err := project.WriteFile(args[1], doc); err != nil {
				return fmt.Errorf("write project: %w", err)
			}
			printer.Human("wrote %d plugins to %s", len(doc.Plugins), args[1])
			return nil
		},
	}
}
