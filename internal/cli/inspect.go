package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaban/plughost/project"
)

func newInspectCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <project>",
		Short: "Show the plugins and connections stored in a project or preset",
		Long: `Read a project or preset file in any supported format and print its
plugins in slot order followed by its connections.

Example:
  plughost inspect live.phproj
  plughost inspect live.yaml --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := NewPrinter(cmd.OutOrStdout(), g.json, g.quiet)
			doc, err := project.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read project: %w", err)
			}
			if printer.Mode == OutputJSON {
				return printer.JSON(doc)
			}

			kind := "project"
			if doc.Preset {
				kind = "preset"
			}
			printer.Human("%s %s, version %s", kind, args[0], doc.Version)
			for i, p := range doc.Plugins {
				target := p.Label
				if p.Binary != "" {
					target = p.Binary
				}
				printer.Human("  [%d] %-16s %-8s %s (%d parameters)", i, p.Name, p.Type, target, len(p.Parameters))
			}
			for _, c := range doc.Connections {
				printer.Human("  %s -> %s", c.Source, c.Target)
			}
			return nil
		},
	}
}
