package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"project_handoff/internal/entities"
)

// Handler receives events the gateway pushes to the service connection.
// Events of one conversation arrive in order; different conversations are
// handled concurrently.
type Handler func(ctx context.Context, ev Event)

type pendingFrame struct {
	ref      string
	name     string
	data     []byte
	critical bool
}

// ClientOptions tune the service client.
type ClientOptions struct {
	MaxPending int           // unacknowledged frames kept for re-send
	MinBackoff time.Duration // first reconnect delay
	MaxBackoff time.Duration
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.MaxPending <= 0 {
		o.MaxPending = 1024
	}
	if o.MinBackoff <= 0 {
		o.MinBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

// Client is the worker's service connection. Published frames stay pending
// until the gateway acks them and are written again after a reconnect, so
// delivery is at-least-once and consumers dedup by event id.
type Client struct {
	url     string
	token   string
	dialer  *websocket.Dialer
	inbox   *conversationQueues
	opts    ClientOptions
	log     zerolog.Logger

	mu      sync.Mutex
	pending []pendingFrame
	sent    int // pending[:sent] were written on the current socket
	nextRef uint64

	wake chan struct{}
}

func NewClient(url, serviceToken string, handler Handler, opts ClientOptions, log zerolog.Logger) *Client {
	return &Client{
		url:     url,
		token:   serviceToken,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		inbox:   newConversationQueues(handler),
		opts:    opts.withDefaults(),
		log:     log.With().Str("component", "gateway-client").Logger(),
		wake:    make(chan struct{}, 1),
	}
}

// Publish queues ev for the gateway. Snapshot events replace any older
// unsent snapshot of the same name.
func (c *Client) Publish(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextRef++
	ref := "w" + strconv.FormatUint(c.nextRef, 10)
	data, err := Encode(ev, ref)
	if err != nil {
		return err
	}
	f := pendingFrame{ref: ref, name: ev.EventName(), data: data, critical: Critical(ev)}

	if !f.critical {
		for i := c.sent; i < len(c.pending); i++ {
			if c.pending[i].name == f.name {
				c.pending = append(c.pending[:i], c.pending[i+1:]...)
				break
			}
		}
	}
	if len(c.pending) >= c.opts.MaxPending {
		if !f.critical {
			return entities.ErrBackpressure
		}
		if !c.dropSnapshotLocked() {
			return fmt.Errorf("%w: %d frames awaiting ack", entities.ErrBackpressure, len(c.pending))
		}
	}
	c.pending = append(c.pending, f)

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Client) dropSnapshotLocked() bool {
	for i, f := range c.pending {
		if !f.critical {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			if i < c.sent {
				c.sent--
			}
			return true
		}
	}
	return false
}

// Pending is the number of frames not yet acknowledged.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Run keeps a connection open until ctx is cancelled. It returns once the
// handlers it started have finished.
func (c *Client) Run(ctx context.Context) error {
	defer c.inbox.wait()
	backoff := c.opts.MinBackoff
	for {
		started := time.Now()
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > c.opts.MaxBackoff {
			backoff = c.opts.MinBackoff
		}
		c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("gateway connection lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.opts.MaxBackoff {
			backoff = c.opts.MaxBackoff
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	header := http.Header{}
	header.Set(ServiceTokenHeader, c.token)

	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("dial gateway: %w", entities.ErrUnauthorized)
		}
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer ws.Close()

	c.mu.Lock()
	c.sent = 0
	resend := len(c.pending)
	c.mu.Unlock()
	c.log.Info().Int("resend", resend).Msg("connected to gateway")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- c.writeLoop(sessCtx, ws)
		_ = ws.Close()
	}()

	_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
	ws.SetPingHandler(func(data string) error {
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			cancel()
			if werr := <-writeErr; werr != nil && !errors.Is(werr, context.Canceled) {
				return werr
			}
			return err
		}
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))

		_, ev, err := Decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			continue
		}
		switch e := ev.(type) {
		case Ack:
			c.acked(e.Ref)
		case ErrorReply:
			// The gateway rejected the frame; re-sending would fail the same way.
			c.log.Error().Str("ref", e.Ref).Str("code", e.Code).Msg(e.Error)
			c.acked(e.Ref)
		case Backpressure:
			c.log.Warn().Int("dropped", e.Dropped).Msg("gateway reported backpressure")
		default:
			c.inbox.submit(ctx, ev)
		}
	}
}

func (c *Client) acked(ref string) {
	if ref == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.pending {
		if f.ref == ref {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			if i < c.sent {
				c.sent--
			}
			return
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		c.mu.Lock()
		var data []byte
		if c.sent < len(c.pending) {
			data = c.pending[c.sent].data
			c.sent++
		}
		c.mu.Unlock()

		if data != nil {
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
		}
	}
}

// conversationQueues runs the handler off the read loop: one goroutine per
// conversation with queued events, so a slow conversation delays only itself.
type conversationQueues struct {
	handler Handler
	wg      sync.WaitGroup

	mu     sync.Mutex
	queues map[string][]Event
}

func newConversationQueues(handler Handler) *conversationQueues {
	return &conversationQueues{handler: handler, queues: make(map[string][]Event)}
}

func (q *conversationQueues) submit(ctx context.Context, ev Event) {
	if q.handler == nil {
		return
	}
	key := conversationOf(ev)

	q.mu.Lock()
	queued, running := q.queues[key]
	q.queues[key] = append(queued, ev)
	q.mu.Unlock()

	if !running {
		q.wg.Add(1)
		go q.drain(ctx, key)
	}
}

func (q *conversationQueues) drain(ctx context.Context, key string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		queued := q.queues[key]
		if len(queued) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		ev := queued[0]
		q.queues[key] = queued[1:]
		q.mu.Unlock()

		q.handler(ctx, ev)
	}
}

func (q *conversationQueues) wait() {
	q.wg.Wait()
}

// conversationOf keys an event by user id. Events without one share "".
func conversationOf(ev Event) string {
	switch e := ev.(type) {
	case SendMessageToUser:
		return e.UserID
	case BotStatusChanged:
		return e.UserID
	case NewMessage:
		return e.UserID
	case AdminMessage:
		return e.UserID
	case DeliveryFailed:
		return e.UserID
	}
	return ""
}
