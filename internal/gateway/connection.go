package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// CloseTryAgainLater is sent when a connection is reset because its
	// overflow could not be drained.
	CloseTryAgainLater = websocket.CloseTryAgainLater
)

var ErrConnectionClosed = errors.New("connection closed")

// PrincipalKind distinguishes the trusted worker from admin browser sessions.
type PrincipalKind string

const (
	PrincipalAdmin   PrincipalKind = "admin"
	PrincipalService PrincipalKind = "service"
)

type Principal struct {
	Kind    PrincipalKind
	AdminID string
}

// QueueOptions bound a connection's outbound buffering.
type QueueOptions struct {
	Size          int           // queued frames before overflow handling kicks in
	RetryAttempts int           // overflow drain attempts before the connection is reset
	RetryBase     time.Duration // first backoff delay, doubled per attempt
}

func (o QueueOptions) withDefaults() QueueOptions {
	if o.Size <= 0 {
		o.Size = 256
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 5
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 100 * time.Millisecond
	}
	return o
}

// socket is the subset of *websocket.Conn the writer needs.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type outbound struct {
	data     []byte
	critical bool
}

// Connection owns one socket's outbound side. Enqueue never blocks: when the
// queue is full the oldest snapshot frame is dropped, and critical frames that
// still do not fit wait in an ordered overflow list.
type Connection struct {
	ID        string
	Principal Principal

	ws   socket
	opts QueueOptions
	log  zerolog.Logger

	mu       sync.Mutex
	queue    []outbound
	overflow []outbound
	dropped  int
	warn     bool
	retrying bool

	notify chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewConnection(p Principal, ws socket, opts QueueOptions, log zerolog.Logger) *Connection {
	id := uuid.NewString()
	return &Connection{
		ID:        id,
		Principal: p,
		ws:        ws,
		opts:      opts.withDefaults(),
		log:       log.With().Str("conn", id).Str("principal", string(p.Kind)).Logger(),
		notify:    make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send encodes ev and enqueues it.
func (c *Connection) Send(ev Event, ref string) error {
	data, err := Encode(ev, ref)
	if err != nil {
		return err
	}
	return c.Enqueue(data, Critical(ev))
}

// Enqueue adds an already encoded frame. It returns ErrBackpressure when a
// non-critical frame had to be dropped and ErrConnectionClosed after Close.
func (c *Connection) Enqueue(data []byte, critical bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	msg := outbound{data: data, critical: critical}

	if len(c.queue) >= c.opts.Size && !c.dropOldestSnapshotLocked() {
		if !critical {
			c.dropped++
			c.warn = true
			c.signal()
			return entities.ErrBackpressure
		}
		c.overflow = append(c.overflow, msg)
		c.warn = true
		if !c.retrying {
			c.retrying = true
			go c.drainOverflow()
		}
		c.signal()
		return nil
	}

	// Critical frames never overtake ones already waiting in overflow.
	if critical && len(c.overflow) > 0 {
		c.overflow = append(c.overflow, msg)
		c.promoteLocked()
	} else {
		c.queue = append(c.queue, msg)
	}
	c.signal()
	return nil
}

// Close terminates the connection and stops the write loop. It may run
// concurrently with the writer: only WriteControl and Close touch the socket.
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.closed
}

func (c *Connection) dropOldestSnapshotLocked() bool {
	for i, m := range c.queue {
		if !m.critical {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.dropped++
			c.warn = true
			return true
		}
	}
	return false
}

func (c *Connection) promoteLocked() {
	for len(c.overflow) > 0 && len(c.queue) < c.opts.Size {
		c.queue = append(c.queue, c.overflow[0])
		c.overflow = c.overflow[1:]
	}
}

func (c *Connection) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// drainOverflow retries moving overflow into the queue with exponential
// backoff. If the overflow is still not empty after the last attempt the
// client is too slow to keep up and gets disconnected.
func (c *Connection) drainOverflow() {
	delay := c.opts.RetryBase
	for attempt := 1; attempt <= c.opts.RetryAttempts; attempt++ {
		select {
		case <-c.closed:
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		c.promoteLocked()
		empty := len(c.overflow) == 0
		if empty {
			c.retrying = false
		}
		c.mu.Unlock()

		if empty {
			c.signal()
			return
		}
		c.log.Warn().Int("attempt", attempt).Msg("outbound overflow not drained")
		delay *= 2
	}

	c.log.Error().Msg("resetting slow connection")
	c.Close(CloseTryAgainLater, "backpressure")
}

// next pops the frame to write, putting a pending backpressure warning first.
func (c *Connection) next() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.warn {
		c.warn = false
		dropped := c.dropped
		c.dropped = 0
		if data, err := Encode(Backpressure{Dropped: dropped}, ""); err == nil {
			return data, true
		}
	}
	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue[0] = outbound{}
	c.queue = c.queue[1:]
	c.promoteLocked()
	return msg.data, true
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-c.notify:
			for {
				data, ok := c.next()
				if !ok {
					break
				}
				if err := c.write(websocket.TextMessage, data); err != nil {
					c.log.Debug().Err(err).Msg("write failed")
					c.Close(websocket.CloseAbnormalClosure, "write failed")
					return
				}
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}
