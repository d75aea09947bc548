package bridge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shaban/plughost/logging"
	"github.com/shaban/plughost/plugins"
)

// DefaultStopTimeout bounds a graceful bridge shutdown before it is killed.
const DefaultStopTimeout = 2 * time.Second

// Launcher starts bridge executables. It implements plugins.Bridger.
//
// The bridge is invoked as
//
//	<exe> <controlURL> <type> <filename> <label> <uniqueId>
//
// with the request's scoped environment appended to the host environment.
type Launcher struct {
	Supervisor *Supervisor
	ControlURL func() string
	Logger     logging.Logger

	// StopTimeout overrides DefaultStopTimeout.
	StopTimeout time.Duration
	// StartupGrace, when set, waits that long after start and fails the load
	// if the bridge already exited.
	StartupGrace time.Duration
	// OnExit is called when a bridge exits without being closed.
	OnExit func(p *Plugin, err error)
}

var _ plugins.Bridger = (*Launcher)(nil)

// Bridge implements plugins.Bridger.
func (l *Launcher) Bridge(ctx context.Context, req plugins.Request, exe string) (plugins.Plugin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Supervisor == nil {
		return nil, fmt.Errorf("bridge: no supervisor")
	}
	logger := l.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	url := ""
	if l.ControlURL != nil {
		url = l.ControlURL()
	}

	cmd := exec.Command(exe, url, req.Type.String(), req.Filename, req.Label, strconv.FormatInt(req.UniqueID, 10))
	cmd.Env = append(os.Environ(), envList(req.Env)...)
	out := &lineLogger{logger: logging.With(logger, "bridge", req.Name)}
	cmd.Stdout = out
	cmd.Stderr = out

	info := plugins.InfoFromRequest(req)
	info.Hints |= plugins.HintIsBridge
	if info.Name == "" {
		info.Name = req.Label
	}
	bp := &Plugin{launcher: l, exe: exe}
	bp.Init(req.ID, info, nil)

	proc, err := l.Supervisor.Start(info.Name, cmd, func(p *Process) {
		if p.Requested() {
			return
		}
		bp.SetEnabled(false)
		logger.Warn("bridge exited unexpectedly", "plugin", bp.Name(), "id", p.ID, "code", p.ExitCode(), "error", p.ExitError())
		if l.OnExit != nil {
			l.OnExit(bp, fmt.Errorf("bridge %s exited with code %d", bp.Name(), p.ExitCode()))
		}
	})
	if err != nil {
		return nil, err
	}
	bp.proc = proc

	if l.StartupGrace > 0 {
		select {
		case <-proc.Done():
			return nil, fmt.Errorf("bridge %s exited during startup with code %d", exe, proc.ExitCode())
		case <-time.After(l.StartupGrace):
		case <-ctx.Done():
			proc.Stop(l.stopTimeout())
			return nil, ctx.Err()
		}
	}
	return bp, nil
}

func (l *Launcher) stopTimeout() time.Duration {
	if l.StopTimeout > 0 {
		return l.StopTimeout
	}
	return DefaultStopTimeout
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Plugin is the in-host proxy of a bridged instance. Audio is passed through
// unchanged; Close stops the bridge process.
type Plugin struct {
	plugins.Base
	launcher *Launcher
	exe      string
	proc     *Process
	once     sync.Once
}

// Executable returns the bridge executable path.
func (p *Plugin) Executable() string { return p.exe }

// ProcessID returns the supervisor id of the bridge process.
func (p *Plugin) ProcessID() string {
	if p.proc == nil {
		return ""
	}
	return p.proc.ID
}

// Running reports whether the bridge process is alive.
func (p *Plugin) Running() bool { return p.proc != nil && p.proc.IsRunning() }

func (p *Plugin) Process(buf [][]float32, frames int) {}

func (p *Plugin) Close() error {
	p.once.Do(func() {
		if p.proc != nil {
			p.proc.Stop(p.launcher.stopTimeout())
		}
	})
	return p.Base.Close()
}

// lineLogger forwards bridge output to the logger line by line.
type lineLogger struct {
	logger logging.Logger
	mu     sync.Mutex
	buf    []byte
}

func (w *lineLogger) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, b...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logger.Debug("bridge output", "line", string(bytes.TrimRight(w.buf[:i], "\r")))
		w.buf = w.buf[i+1:]
	}
	return len(b), nil
}
