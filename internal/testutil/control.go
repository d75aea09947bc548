package testutil

import (
	"sync"

	"github.com/shaban/plughost/plugins"
)

// Control records the calls an engine makes to its control client.
type Control struct {
	mu         sync.Mutex
	registered map[int]string
	exits      int
}

func NewControl() *Control {
	return &Control{registered: make(map[int]string)}
}

func (c *Control) URL() string { return "osc.udp://127.0.0.1:22752/plughost" }

func (c *Control) RegisterPlugin(id int, p plugins.Plugin) {
	c.mu.Lock()
	c.registered[id] = p.Name()
	c.mu.Unlock()
}

func (c *Control) UnregisterPlugin(id int) {
	c.mu.Lock()
	delete(c.registered, id)
	c.mu.Unlock()
}

func (c *Control) Exit() {
	c.mu.Lock()
	c.exits++
	c.mu.Unlock()
}

// Registered returns the name registered for each id.
func (c *Control) Registered() map[int]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int]string, len(c.registered))
	for k, v := range c.registered {
		out[k] = v
	}
	return out
}

// Exits returns how often Exit was called.
func (c *Control) Exits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exits
}
