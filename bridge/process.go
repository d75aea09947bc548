// Package bridge hosts plugins out-of-process through bridge executables.
//
// A Supervisor tracks the bridge processes; a Launcher implements
// plugins.Bridger by starting one bridge per instance and wrapping it in a
// Plugin proxy whose lifetime follows the process.
package bridge

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State represents the state of a bridge process.
type State int

const (
	StateCreated State = iota
	StateRunning
	StateExited
	StateKilled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateKilled:
		return "killed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

var (
	ErrProcessNotFound    = errors.New("process not found")
	ErrProcessNotRunning  = errors.New("process not running")
	ErrSupervisorShutdown = errors.New("supervisor is shutting down")
)

// Process is one supervised bridge process.
type Process struct {
	ID      string
	Name    string
	Cmd     *exec.Cmd
	Started time.Time

	done     chan struct{}
	state    atomic.Int32
	exitCode atomic.Int32
	stopping atomic.Bool

	mu      sync.RWMutex
	exitErr error
}

func newProcess(id, name string, cmd *exec.Cmd) *Process {
	p := &Process{ID: id, Name: name, Cmd: cmd, done: make(chan struct{})}
	p.state.Store(int32(StateCreated))
	p.exitCode.Store(-1)
	return p
}

func (p *Process) State() State          { return State(p.state.Load()) }
func (p *Process) IsRunning() bool       { return p.State() == StateRunning }
func (p *Process) Done() <-chan struct{} { return p.done }
func (p *Process) ExitCode() int         { return int(p.exitCode.Load()) }
func (p *Process) Requested() bool       { return p.stopping.Load() }

// ExitError returns the error reported by Wait, nil for a clean exit.
func (p *Process) ExitError() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.exitErr
}

// PID returns the OS process id, -1 before start.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return -1
	}
	return p.Cmd.Process.Pid
}

// Signal sends sig to the process.
func (p *Process) Signal(sig os.Signal) error {
	if !p.IsRunning() || p.Cmd.Process == nil {
		return ErrProcessNotRunning
	}
	return p.Cmd.Process.Signal(sig)
}

// Stop asks the process to terminate and kills it when it is still running
// after timeout. It returns once the process has exited.
func (p *Process) Stop(timeout time.Duration) {
	p.stopping.Store(true)
	if !p.IsRunning() {
		<-p.done
		return
	}
	_ = p.Signal(syscall.SIGTERM)
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
	case <-t.C:
		_ = p.Signal(syscall.SIGKILL)
		<-p.done
	}
}

func (p *Process) start() error {
	if err := p.Cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.Name, err)
	}
	p.Started = time.Now()
	p.state.Store(int32(StateRunning))
	go p.wait()
	return nil
}

func (p *Process) wait() {
	err := p.Cmd.Wait()
	p.mu.Lock()
	p.exitErr = err
	p.mu.Unlock()

	code, state := 0, StateExited
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				state = StateKilled
			}
		} else {
			code = -1
		}
	}
	p.exitCode.Store(int32(code))
	p.state.Store(int32(state))
	close(p.done)
}
