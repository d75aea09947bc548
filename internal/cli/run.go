package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaban/plughost"
	"github.com/shaban/plughost/config"
)

type runOptions struct {
	driver     string
	clientName string
	project    string
	save       string
	watch      bool
	strict     bool
	duration   time.Duration
}

type eventJSON struct {
	Event    string  `json:"event"`
	PluginID int     `json:"pluginId"`
	Value1   int     `json:"value1,omitempty"`
	Value2   int     `json:"value2,omitempty"`
	Value3   float32 `json:"value3,omitempty"`
	ValueStr string  `json:"valueStr,omitempty"`
}

func newRunCmd(g *globals) *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the engine and host plugins until interrupted",
		Long: `Start the engine on the configured driver, optionally load a project,
and print engine events until interrupted or --duration elapses.

With --watch the settings file is reloaded when it changes; options that
cannot change while the engine runs are reported and left as they are.

Example:
  plughost run --config studio.toml --project live.phproj --watch
  plughost run --driver Dummy --duration 10s --save snapshot.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd, g, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.driver, "driver", "", "driver name (overrides the settings file)")
	f.StringVar(&o.clientName, "client-name", "", "client name (overrides the settings file)")
	f.StringVar(&o.project, "project", "", "project or preset file to load after start")
	f.StringVar(&o.save, "save", "", "save the session to this file before stopping")
	f.BoolVar(&o.watch, "watch", false, "reload the settings file when it changes")
	f.BoolVar(&o.strict, "strict", false, "stop on the first plugin or listener fault instead of isolating it")
	f.DurationVar(&o.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, g *globals, o runOptions) (err error) {
	printer := NewPrinter(cmd.OutOrStdout(), g.json, g.quiet)
	s, err := g.settings()
	if err != nil {
		return err
	}
	if o.driver != "" {
		s.Driver = o.driver
	}
	if o.clientName != "" {
		s.ClientName = o.clientName
	}
	if o.strict {
		s.Engine.Strict = true
	}
	logger := s.Logger(cmd.ErrOrStderr())

	e := plughost.New(plughost.DefaultOptions(),
		plughost.WithLogger(logger),
		plughost.WithErrorHandler(s.ErrorHandler(logger)))
	if err := s.Apply(e); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	events, cancel := e.Subscribe(256)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if printer.Mode == OutputJSON {
				_ = printer.JSON(eventJSON{ev.Opcode.String(), ev.PluginID, ev.Value1, ev.Value2, ev.Value3, ev.ValueStr})
				continue
			}
			printer.Human("%-16s plugin=%d %s", ev.Opcode, ev.PluginID, ev.ValueStr)
		}
	}()

	if err := e.Init(s.Driver, s.ClientName); err != nil {
		return fmt.Errorf("start engine on %s: %w", s.Driver, err)
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("stop engine: %w", cerr))
		}
		cancel()
		<-done
	}()

	if o.project != "" {
		if err := e.LoadProject(o.project); err != nil {
			return fmt.Errorf("load project: %w", err)
		}
	}

	if o.watch {
		w, err := config.NewWatcher(g.configPath, e, config.WithEnvPrefix(config.EnvPrefix), config.WithWatcherLogger(logger))
		if err != nil {
			return fmt.Errorf("watch settings: %w", err)
		}
		defer w.Close()
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if o.duration > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, o.duration)
		defer stop()
	}
	<-ctx.Done()

	if o.save != "" {
		if err := e.SaveProject(o.save); err != nil {
			return fmt.Errorf("save project: %w", err)
		}
	}
	return nil
}
