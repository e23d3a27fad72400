package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"project_handoff/internal/entities"
)

const defaultReadTimeout = 60 * time.Second

// Handoff is the ownership command surface the gateway forwards to.
type Handoff interface {
	TakeOver(ctx context.Context, userID, adminID string) (entities.OwnershipState, error)
	Release(ctx context.Context, userID, adminID string) (entities.OwnershipState, error)
	SetBotEnabled(ctx context.Context, userID string, enabled bool, actor string) (entities.OwnershipState, error)
}

// AdminMessenger persists an admin message and fans it out on success.
type AdminMessenger interface {
	SendAsAdmin(ctx context.Context, userID, adminID, text string) (entities.Turn, error)
}

// StatsRecorder is told about committed message events and admin presence.
type StatsRecorder interface {
	RecordEvent(ctx context.Context, ev entities.Event) error
	Publish(ctx context.Context) error
}

type Options struct {
	Queue          QueueOptions
	InboundRate    rate.Limit // frames per second per connection
	InboundBurst   int
	CommandTimeout time.Duration
	ReadLimit      int64
}

func (o Options) withDefaults() Options {
	if o.InboundRate <= 0 {
		o.InboundRate = 20
	}
	if o.InboundBurst <= 0 {
		o.InboundBurst = 40
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 10 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 1 << 20
	}
	return o
}

// Server is the /ws endpoint.
type Server struct {
	hub          *Hub
	tokens       TokenParser
	serviceToken string
	handoff      Handoff
	messenger    AdminMessenger
	stats        StatsRecorder
	opts         Options
	log          zerolog.Logger
	upgrader     websocket.Upgrader
}

func NewServer(hub *Hub, tokens TokenParser, serviceToken string, handoff Handoff, messenger AdminMessenger, stats StatsRecorder, opts Options, log zerolog.Logger) *Server {
	return &Server{
		hub:          hub,
		tokens:       tokens,
		serviceToken: serviceToken,
		handoff:      handoff,
		messenger:    messenger,
		stats:        stats,
		opts:         opts.withDefaults(),
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates, upgrades and serves one connection until it closes.
func (s *Server) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := Authenticate(c.Request, s.serviceToken, s.tokens)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.log.Debug().Err(err).Msg("upgrade failed")
			return
		}

		conn := NewConnection(principal, ws, s.opts.Queue, s.log)
		s.hub.Register(conn)
		s.log.Info().Str("conn", conn.ID).Str("principal", string(principal.Kind)).Str("admin", principal.AdminID).Msg("socket connected")
		if principal.Kind == PrincipalAdmin {
			s.publishStats()
		}
		defer func() {
			s.hub.Unregister(conn)
			conn.Close(websocket.CloseNormalClosure, "session closed")
			if principal.Kind == PrincipalAdmin {
				s.publishStats()
			}
			s.log.Info().Str("conn", conn.ID).Msg("socket disconnected")
		}()

		ws.SetReadLimit(s.opts.ReadLimit)
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		limiter := rate.NewLimiter(s.opts.InboundRate, s.opts.InboundBurst)
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					s.log.Debug().Err(err).Str("conn", conn.ID).Msg("read failed")
				}
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))

			frame, ev, err := Decode(data)
			if err != nil {
				code := "bad_request"
				if errors.Is(err, ErrUnknownEvent) {
					code = "unsupported_event"
				}
				s.replyError(conn, frame.Ref, code, err.Error())
				continue
			}
			if !limiter.Allow() {
				s.replyError(conn, frame.Ref, "rate_limited", "too many frames")
				continue
			}
			if !allowed(principal, ev) {
				s.replyError(conn, frame.Ref, "forbidden", ev.EventName()+" is not permitted for "+string(principal.Kind))
				continue
			}
			s.dispatch(conn, frame.Ref, ev)
		}
	}
}

func allowed(p Principal, ev Event) bool {
	switch p.Kind {
	case PrincipalAdmin:
		return adminCommand(ev)
	case PrincipalService:
		return serviceEvent(ev)
	}
	return false
}

func (s *Server) dispatch(conn *Connection, ref string, ev Event) {
	adminID := conn.Principal.AdminID

	switch e := ev.(type) {
	case JoinUserRoom:
		if e.UserID == "" {
			s.replyError(conn, ref, "bad_request", "userId is required")
			return
		}
		s.hub.Join(e.UserID, conn)
		s.ack(conn, Ack{Ref: ref, For: EventJoinUserRoom, UserID: e.UserID})

	case LeaveUserRoom:
		if e.UserID == "" {
			s.replyError(conn, ref, "bad_request", "userId is required")
			return
		}
		s.hub.Leave(e.UserID, conn)
		s.ack(conn, Ack{Ref: ref, For: EventLeaveUserRoom, UserID: e.UserID})

	case SendMessageToUser:
		if e.UserID == "" {
			s.replyError(conn, ref, "bad_request", "userId is required")
			return
		}
		// Persistence runs off the read loop and outlives the socket.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
			defer cancel()
			turn, err := s.messenger.SendAsAdmin(ctx, e.UserID, adminID, e.Message)
			if err != nil {
				s.replyErr(conn, ref, err)
				return
			}
			s.ack(conn, Ack{Ref: ref, For: EventSendMessageToUser, UserID: e.UserID, Turn: &turn})
		}()

	case TakeOver:
		s.command(conn, ref, EventTakeOver, e.UserID, func(ctx context.Context) (entities.OwnershipState, error) {
			return s.handoff.TakeOver(ctx, e.UserID, adminID)
		})

	case Release:
		s.command(conn, ref, EventRelease, e.UserID, func(ctx context.Context) (entities.OwnershipState, error) {
			return s.handoff.Release(ctx, e.UserID, adminID)
		})

	case SetBotEnabled:
		s.command(conn, ref, EventSetBotEnabled, e.UserID, func(ctx context.Context) (entities.OwnershipState, error) {
			return s.handoff.SetBotEnabled(ctx, e.UserID, e.Enabled, adminID)
		})

	case NewMessage:
		s.hub.Publish(e.UserID, e)
		s.ack(conn, Ack{Ref: ref, For: EventNewMessage, UserID: e.UserID})
		if s.stats != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
				defer cancel()
				if err := s.stats.RecordEvent(ctx, e.Message); err != nil {
					s.log.Warn().Err(err).Str("event_id", e.Message.EventID).Msg("stats record failed")
				}
			}()
		}

	case BotStatusChanged:
		s.hub.Publish(e.UserID, e)
		s.ack(conn, Ack{Ref: ref, For: EventBotStatusChanged, UserID: e.UserID})

	case DeliveryFailed:
		s.hub.Publish(e.UserID, e)
		s.ack(conn, Ack{Ref: ref, For: EventDeliveryFailed, UserID: e.UserID})

	case MetricsUpdate:
		s.hub.PublishToAdmins(e)
		s.ack(conn, Ack{Ref: ref, For: EventMetricsUpdate})

	default:
		s.replyError(conn, ref, "unsupported_event", ev.EventName())
	}
}

// command runs an ownership command off the read loop. The controller
// broadcasts on success; the requester additionally gets an ack.
func (s *Server) command(conn *Connection, ref, name, userID string, run func(context.Context) (entities.OwnershipState, error)) {
	if userID == "" {
		s.replyError(conn, ref, "bad_request", "userId is required")
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		defer cancel()
		state, err := run(ctx)
		if err != nil {
			s.replyErr(conn, ref, err)
			return
		}
		s.ack(conn, Ack{Ref: ref, For: name, UserID: userID, State: &state})
	}()
}

func (s *Server) publishStats() {
	if s.stats == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		defer cancel()
		if err := s.stats.Publish(ctx); err != nil {
			s.log.Warn().Err(err).Msg("stats publish failed")
		}
	}()
}

func (s *Server) ack(conn *Connection, a Ack) {
	if err := conn.Send(a, a.Ref); err != nil {
		s.log.Debug().Err(err).Str("conn", conn.ID).Msg("ack not queued")
	}
}

// replyErr maps a business error to an error frame for the requester only.
func (s *Server) replyErr(conn *Connection, ref string, err error) {
	var conflict *entities.ConflictError
	var persistence *entities.PersistenceError
	switch {
	case errors.As(err, &conflict):
		s.replyError(conn, ref, "conflict", err.Error())
	case errors.As(err, &persistence):
		s.log.Error().Err(err).Str("conn", conn.ID).Msg("command failed")
		s.replyError(conn, ref, "persistence_error", "could not save change")
	case errors.Is(err, entities.ErrEmptyMessage), errors.Is(err, entities.ErrMessageTooLong):
		s.replyError(conn, ref, "bad_request", err.Error())
	default:
		s.log.Error().Err(err).Str("conn", conn.ID).Msg("command failed")
		s.replyError(conn, ref, "internal_error", "unexpected error")
	}
}

func (s *Server) replyError(conn *Connection, ref, code, msg string) {
	if err := conn.Send(ErrorReply{Ref: ref, Code: code, Error: msg}, ref); err != nil {
		s.log.Debug().Err(err).Str("conn", conn.ID).Msg("error frame not queued")
	}
}
