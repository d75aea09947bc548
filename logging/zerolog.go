package logging

import (
	"github.com/rs/zerolog"
)

// ZerologAdapter wraps zerolog.Logger to implement Logger. Key/value
// arguments become event fields.
type ZerologAdapter struct {
	zerolog.Logger
}

func (z *ZerologAdapter) Debug(msg string, args ...any) { z.emit(z.Logger.Debug(), msg, args) }
func (z *ZerologAdapter) Info(msg string, args ...any)  { z.emit(z.Logger.Info(), msg, args) }
func (z *ZerologAdapter) Warn(msg string, args ...any)  { z.emit(z.Logger.Warn(), msg, args) }
func (z *ZerologAdapter) Error(msg string, args ...any) { z.emit(z.Logger.Error(), msg, args) }

// With returns a child logger carrying the given attributes.
func (z *ZerologAdapter) With(args ...any) Logger {
	return &ZerologAdapter{Logger: z.Logger.With().Fields(args).Logger()}
}

func (z *ZerologAdapter) emit(ev *zerolog.Event, msg string, args []any) {
	if len(args) > 0 {
		ev = ev.Fields(args)
	}
	ev.Msg(msg)
}

// NewZerologAdapter creates a Logger from a zerolog.Logger.
func NewZerologAdapter(l zerolog.Logger) Logger {
	return &ZerologAdapter{Logger: l}
}

// newConsole builds the human readable console logger used by the "console" format.
func newConsole(cfg Config) Logger {
	w := zerolog.ConsoleWriter{Out: cfg.Output, NoColor: true, TimeFormat: "15:04:05.000"}
	ctx := zerolog.New(w).Level(zerologLevel(cfg.Level)).With().Timestamp()
	if cfg.AddSource {
		ctx = ctx.Caller()
	}
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return NewZerologAdapter(ctx.Logger())
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
