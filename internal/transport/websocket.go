package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSOptions tunes a WebSocket connection
type WSOptions struct {
	// PingInterval sends a ping this often; the peer must answer within
	// two intervals. Zero disables heartbeats.
	PingInterval time.Duration
	// WriteTimeout bounds a single frame write
	WriteTimeout time.Duration
	// ReadLimit caps an inbound message; zero means 4 MiB
	ReadLimit int64
}

func (o *WSOptions) setDefaults() {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4 << 20
	}
}

// wsConn frames a gorilla WebSocket. Writes are serialized; gorilla allows
// one concurrent writer.
type wsConn struct {
	ws   *websocket.Conn
	opts WSOptions

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// NewWSConn wraps an established WebSocket. Both ends of the transport use
// it: the host after upgrading, the consumer after dialing.
func NewWSConn(ws *websocket.Conn, opts WSOptions) Conn {
	opts.setDefaults()
	c := &wsConn{ws: ws, opts: opts, done: make(chan struct{})}

	ws.SetReadLimit(opts.ReadLimit)
	if opts.PingInterval > 0 {
		c.extendDeadline()
		ws.SetPongHandler(func(string) error {
			c.extendDeadline()
			return nil
		})
		ws.SetPingHandler(func(data string) error {
			c.extendDeadline()
			c.writeMu.Lock()
			defer c.writeMu.Unlock()
			err := ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(opts.WriteTimeout))
			if errors.Is(err, websocket.ErrCloseSent) {
				return nil
			}
			return err
		})
		go c.heartbeat()
	}
	return c
}

func (c *wsConn) extendDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * c.opts.PingInterval))
}

func (c *wsConn) heartbeat() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *wsConn) Send(ctx context.Context, f Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Recv() (Frame, error) {
	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return Frame{}, ErrConnClosed
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, ErrConnClosed
			}
			return Frame{}, err
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		return Decode(data)
	}
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

// WSDialer dials the host's WebSocket endpoint
type WSDialer struct {
	URL     string
	Header  http.Header
	Options WSOptions
	// Dialer overrides websocket.DefaultDialer
	Dialer *websocket.Dialer
}

// Dial opens a WebSocket connection
func (d *WSDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return NewWSConn(ws, d.Options), nil
}
