// Package cli implements the plughost command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"github.com/shaban/plughost/config"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// globals holds the persistent flags shared by every command.
type globals struct {
	configPath string
	json       bool
	quiet      bool
	logLevel   string
	logFormat  string
}

// settings loads the config file and environment overrides, then applies the
// log flags on top.
func (g *globals) settings() (*config.Settings, error) {
	s, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := s.ApplyEnv(config.EnvPrefix); err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		s.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		s.Log.Format = g.logFormat
	}
	return s, s.Validate()
}

// NewRootCmd creates the top-level command with global flags.
func NewRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "plughost",
		Short:         "Host audio plugins in a fixed-capacity rack",
		Long:          "plughost loads audio plugins into a rack or patchbay, runs them on an audio driver and saves the session as a project file.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "plughost.toml", "settings file (.toml, .yaml or .yml)")
	pf.BoolVar(&g.json, "json", false, "output results as JSON")
	pf.BoolVar(&g.quiet, "quiet", false, "minimal output (errors only)")
	pf.StringVar(&g.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "override log.format (json, text, console)")

	root.AddCommand(newRunCmd(g))
	root.AddCommand(newDriversCmd(g))
	root.AddCommand(newInspectCmd(g))
	root.AddCommand(newConvertCmd(g))
	return root
}

// Execute runs the root command and exits with the correct code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	midi.CloseDriver()
	if err != nil {
		NewPrinter(cmd.ErrOrStderr(), false, false).Error(err)
		stop()
		os.Exit(1)
	}
}
