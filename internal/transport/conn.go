package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/kapu/playroom/internal/obslog"
	"github.com/kapu/playroom/internal/protocol"
)

// MessageHandler receives each decoded envelope from a connection's read
// pump, one at a time per connection.
type MessageHandler func(ctx context.Context, c *Conn, env *protocol.Envelope)

// CloseHandler runs once when the connection is fully torn down.
type CloseHandler func(c *Conn, err error)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
)

// Conn wraps one websocket with a buffered outbound queue. All writes go
// through the queue; the write pump is the only goroutine touching the
// socket for sends.
type Conn struct {
	id uuid.UUID
	ws *websocket.Conn

	send chan protocol.OutEvent
	done chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	onMessage MessageHandler
	onClose   CloseHandler
}

func newConn(parent context.Context, ws *websocket.Conn, onMessage MessageHandler, onClose CloseHandler) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		id:        uuid.New(),
		ws:        ws,
		send:      make(chan protocol.OutEvent, sendBuffer),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		onMessage: onMessage,
		onClose:   onClose,
	}
}

func (c *Conn) ConnID() uuid.UUID { return c.id }

// Send queues an event without blocking. A full queue drops the event and
// reports false; a slow tab must not stall the room.
func (c *Conn) Send(ev protocol.OutEvent) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *Conn) run() {
	go c.writePump()
	c.readPump()
}

func (c *Conn) readPump() {
	var readErr error
	defer func() { c.close(readErr) }()

	for {
		typ, raw, err := c.ws.Read(c.ctx)
		if err != nil {
			readErr = err
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil {
			obslog.L().Warn("ws_bad_envelope", zap.String("conn_id", c.id.String()), zap.Error(err))
			c.Send(protocol.NewError("bad_envelope", protocol.CategoryValidation, "malformed message"))
			continue
		}
		c.onMessage(c.ctx, c, env)
	}
}

func (c *Conn) writePump() {
	var writeErr error
	defer func() { c.close(writeErr) }()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := wsjson.Write(wctx, c.ws, ev)
			cancel()
			if err != nil {
				writeErr = err
				return
			}
		}
	}
}

func (c *Conn) ping(ctx context.Context) error {
	return c.ws.Ping(ctx)
}

func (c *Conn) close(err error) {
	c.closeOnce.Do(func() {
		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
		if c.onClose != nil {
			c.onClose(c, err)
		}
		close(c.done)
	})
}

// Close tears the connection down from the server side.
func (c *Conn) Close(err error) { c.close(err) }

func (c *Conn) Done() <-chan struct{} { return c.done }
