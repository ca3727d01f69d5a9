package ws

import "sync"

// group is the broadcast set for one room: every live connection that
// joined it. Registry state is authoritative for membership; the group
// only decides who gets frames.
type group struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func newGroup() *group { return &group{conns: map[*Conn]struct{}{}} }

// join subscribes a connection to the room's frames
func (g *group) join(c *Conn) {
	g.mu.Lock()
	g.conns[c] = struct{}{}
	g.mu.Unlock()
}

// leave unsubscribes a connection; reports whether the group is now empty
func (g *group) leave(c *Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c)
	return len(g.conns) == 0
}

// broadcast queues a frame on every member except the excluded sender.
// Holding the lock across the whole fan-out keeps frames to one room in
// arrival order.
func (g *group) broadcast(b []byte, except *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.conns {
		if c == except {
			continue
		}
		c.send(b)
	}
}
