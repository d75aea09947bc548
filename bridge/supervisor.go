package bridge

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/shaban/plughost/logging"
)

// Supervisor tracks bridge processes. Safe for concurrent use.
type Supervisor struct {
	mu        sync.RWMutex
	processes map[string]*Process
	closed    atomic.Bool
	logger    logging.Logger

	onExit func(p *Process)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithExitCallback sets a callback run after any process exits.
func WithExitCallback(fn func(p *Process)) SupervisorOption {
	return func(s *Supervisor) { s.onExit = fn }
}

// WithLogger sets the supervisor logger.
func WithLogger(l logging.Logger) SupervisorOption {
	return func(s *Supervisor) { s.logger = l }
}

// NewSupervisor creates a supervisor.
func NewSupervisor(opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{processes: make(map[string]*Process), logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts cmd under a fresh uuid and tracks it until it exits.
// exitFn, when non-nil, runs after the process exits and before the
// supervisor-wide exit callback.
func (s *Supervisor) Start(name string, cmd *exec.Cmd, exitFn func(p *Process)) (*Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return nil, ErrSupervisorShutdown
	}
	p := newProcess(uuid.New().String(), name, cmd)
	if err := p.start(); err != nil {
		return nil, err
	}
	s.processes[p.ID] = p
	s.logger.Debug("bridge started", "id", p.ID, "name", name, "pid", p.PID())
	go s.monitor(p, exitFn)
	return p, nil
}

func (s *Supervisor) monitor(p *Process, exitFn func(p *Process)) {
	<-p.Done()
	for _, fn := range []func(*Process){exitFn, s.onExit} {
		if fn == nil {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("bridge exit callback panicked", "id", p.ID, "panic", fmt.Sprint(r))
				}
			}()
			fn(p)
		}()
	}
	s.mu.Lock()
	delete(s.processes, p.ID)
	s.mu.Unlock()
}

// Get returns a process by id, nil when unknown.
func (s *Supervisor) Get(id string) *Process {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.processes[id]
}

// Count returns the number of tracked processes.
func (s *Supervisor) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}

// Stop gracefully stops the process with id.
func (s *Supervisor) Stop(id string, timeout time.Duration) error {
	p := s.Get(id)
	if p == nil {
		return ErrProcessNotFound
	}
	p.Stop(timeout)
	return nil
}

// Shutdown stops every process, escalating to SIGKILL after timeout, and
// rejects further starts.
func (s *Supervisor) Shutdown(timeout time.Duration) {
	if s.closed.Swap(true) {
		return
	}
	s.mu.RLock()
	procs := make([]*Process, 0, len(s.processes))
	for _, p := range s.processes {
		procs = append(procs, p)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p *Process) {
			defer wg.Done()
			p.Stop(timeout)
		}(p)
	}
	wg.Wait()
}
