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

	"project_handoff/internal/entities"
)

// RemoteError is an error frame the gateway sent in reply to a request.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway %s: %s", e.Code, e.Message)
}

// AdminSocket is an admin session's connection to the gateway. Replies to
// requests are routed by ref; everything else is delivered on Events.
type AdminSocket struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	waiters map[string]chan Event
	nextRef uint64

	events  chan Event
	done    chan struct{}
	closing chan struct{}
	once    sync.Once
	err     error
}

// DialAdmin connects with an admin bearer token.
func DialAdmin(ctx context.Context, url, token string) (*AdminSocket, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("dial gateway: %w", entities.ErrUnauthorized)
		}
		return nil, fmt.Errorf("dial gateway: %w", err)
	}

	s := &AdminSocket{
		ws:      ws,
		waiters: make(map[string]chan Event),
		events:  make(chan Event, 256),
		done:    make(chan struct{}),
		closing: make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// Events carries broadcasts. It is closed when the socket closes.
func (s *AdminSocket) Events() <-chan Event {
	return s.events
}

// Done is closed when the socket closes; Err then reports why.
func (s *AdminSocket) Done() <-chan struct{} {
	return s.done
}

func (s *AdminSocket) Err() error {
	<-s.done
	return s.err
}

func (s *AdminSocket) Close() error {
	s.once.Do(func() { close(s.closing) })
	s.writeMu.Lock()
	_ = s.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return s.ws.Close()
}

func (s *AdminSocket) Join(ctx context.Context, userID string) error {
	_, err := s.request(ctx, JoinUserRoom{UserID: userID})
	return err
}

func (s *AdminSocket) Leave(ctx context.Context, userID string) error {
	_, err := s.request(ctx, LeaveUserRoom{UserID: userID})
	return err
}

func (s *AdminSocket) TakeOver(ctx context.Context, userID string) (entities.OwnershipState, error) {
	return s.stateRequest(ctx, TakeOver{UserID: userID})
}

func (s *AdminSocket) Release(ctx context.Context, userID string) (entities.OwnershipState, error) {
	return s.stateRequest(ctx, Release{UserID: userID})
}

func (s *AdminSocket) SetBotEnabled(ctx context.Context, userID string, enabled bool) (entities.OwnershipState, error) {
	return s.stateRequest(ctx, SetBotEnabled{UserID: userID, Enabled: enabled})
}

// SendAdminMessage returns once the gateway acked the committed turn.
func (s *AdminSocket) SendAdminMessage(ctx context.Context, userID, text string) (entities.Turn, error) {
	ack, err := s.request(ctx, SendMessageToUser{UserID: userID, Message: text})
	if err != nil {
		return entities.Turn{}, err
	}
	if ack.Turn == nil {
		return entities.Turn{}, errors.New("ack carried no turn")
	}
	return *ack.Turn, nil
}

func (s *AdminSocket) stateRequest(ctx context.Context, ev Event) (entities.OwnershipState, error) {
	ack, err := s.request(ctx, ev)
	if err != nil {
		return entities.OwnershipState{}, err
	}
	if ack.State == nil {
		return entities.OwnershipState{}, errors.New("ack carried no state")
	}
	return *ack.State, nil
}

func (s *AdminSocket) request(ctx context.Context, ev Event) (Ack, error) {
	reply := make(chan Event, 1)
	s.mu.Lock()
	s.nextRef++
	ref := "a" + strconv.FormatUint(s.nextRef, 10)
	s.waiters[ref] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, ref)
		s.mu.Unlock()
	}()

	data, err := Encode(ev, ref)
	if err != nil {
		return Ack{}, err
	}
	s.writeMu.Lock()
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	err = s.ws.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		return Ack{}, fmt.Errorf("write %s: %w", ev.EventName(), err)
	}

	select {
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	case <-s.done:
		return Ack{}, fmt.Errorf("%s: %w", ev.EventName(), ErrConnectionClosed)
	case r := <-reply:
		switch r := r.(type) {
		case Ack:
			return r, nil
		case ErrorReply:
			return Ack{}, &RemoteError{Code: r.Code, Message: r.Error}
		}
		return Ack{}, fmt.Errorf("unexpected reply %s", r.EventName())
	}
}

func (s *AdminSocket) readLoop() {
	defer close(s.events)
	defer close(s.done)

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.err = err
			}
			return
		}
		f, ev, err := Decode(data)
		if err != nil {
			continue
		}
		if f.Ref != "" {
			if _, isReply := ev.(Ack); isReply || f.Event == EventError {
				s.mu.Lock()
				reply, ok := s.waiters[f.Ref]
				s.mu.Unlock()
				if ok {
					reply <- ev
					continue
				}
			}
		}
		select {
		case s.events <- ev:
		case <-s.closing:
			return
		}
	}
}
