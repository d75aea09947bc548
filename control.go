package plughost

import (
	"errors"
	"sync"

	"github.com/shaban/plughost/plugins"
	"github.com/shaban/plughost/project"
)

// ControlClient is the remote control endpoint plugins and bridges talk to.
type ControlClient interface {
	// URL is passed to bridge processes so they can reach the host.
	URL() string
	RegisterPlugin(id int, p plugins.Plugin)
	UnregisterPlugin(id int)
	// Exit tells connected controllers the engine is going away.
	Exit()
}

type nopControl struct{}

func (nopControl) URL() string                        { return "" }
func (nopControl) RegisterPlugin(int, plugins.Plugin) {}
func (nopControl) UnregisterPlugin(int)               {}
func (nopControl) Exit()                              {}

// Graph is the patchbay routing graph.
type Graph interface {
	Connections() []project.Connection
	RestoreConnection(source, target string) error
}

var errEmptyPort = errors.New("empty port name")

// MemoryGraph records connections without routing audio.
type MemoryGraph struct {
	mu    sync.Mutex
	conns []project.Connection
}

// NewMemoryGraph returns an empty graph.
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{}
}

// Connections returns a copy of the recorded connections in insertion order.
func (g *MemoryGraph) Connections() []project.Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]project.Connection(nil), g.conns...)
}

// RestoreConnection records source -> target. Duplicates are ignored.
func (g *MemoryGraph) RestoreConnection(source, target string) error {
	if source == "" || target == "" {
		return errEmptyPort
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, c := range g.conns {
		if c.Source == source && c.Target == target {
			return nil
		}
	}
	g.conns = append(g.conns, project.Connection{Source: source, Target: target})
	return nil
}

// Disconnect removes source -> target and reports whether it existed.
func (g *MemoryGraph) Disconnect(source, target string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.conns {
		if c.Source == source && c.Target == target {
			g.conns = append(g.conns[:i], g.conns[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes all connections.
func (g *MemoryGraph) Clear() {
	g.mu.Lock()
	g.conns = nil
	g.mu.Unlock()
}
