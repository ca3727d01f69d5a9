package ws

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
)

// moveInterval is the floor between accepted position updates per
// connection (10 Hz). Faster senders just get frames dropped.
const moveInterval = 100 * time.Millisecond

type Conn struct {
	ws      *websocket.Conn
	id      string // opaque connection ID, never reused
	out     chan []byte
	limiter *rate.Limiter
	room    string // set by the read loop after a successful join
}

// Accept upgrades HTTP to websocket (allow all origins)
func Accept(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionDisabled,
	})
}

// NewConn wraps a WS connection under a fresh connection ID
func NewConn(ws *websocket.Conn, id string) *Conn {
	return &Conn{
		ws:      ws,
		id:      id,
		out:     make(chan []byte, 256),
		limiter: rate.NewLimiter(rate.Every(moveInterval), 1),
	}
}

// ID returns the opaque connection identifier
func (c *Conn) ID() string { return c.id }

// Read blocks until it receives a text/binary message
// Returns false if connection is closed
func (c *Conn) Read(ctx context.Context) ([]byte, bool) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return nil, false
		}
		if typ == websocket.MessageText || typ == websocket.MessageBinary {
			return data, true
		}
	}
}

// WriteLoop sends outbound messages + periodic pings
// Exits when ctx is cancelled
func (c *Conn) WriteLoop(ctx context.Context) {
	t := time.NewTicker(20 * time.Second)
	defer t.Stop()

	for {
		select {
		case b := <-c.out:
			_ = c.ws.Write(ctx, websocket.MessageText, b)
		case <-t.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// send queues a frame without blocking; a full buffer drops the frame.
// Position relay is latest-wins, so a slow reader misses frames rather
// than stalling the room.
func (c *Conn) send(b []byte) {
	select {
	case c.out <- b:
	default:
	}
}

// allowMove reports whether a position update at the given time fits the
// per-connection budget, consuming the slot if so.
func (c *Conn) allowMove(now time.Time) bool {
	return c.limiter.AllowN(now, 1)
}

// Close closes the WS connection normally
func (c *Conn) Close() error { return c.ws.Close(websocket.StatusNormalClosure, "bye") }
