package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub tracks live connections and the rooms they joined. A room exists while
// at least one connection holds a reference to it. Publishing only enqueues,
// so it never waits on a slow socket.
type Hub struct {
	log zerolog.Logger

	mu       sync.RWMutex
	conns    map[string]*Connection
	rooms    map[string]map[string]int      // userID -> connID -> join count
	joined   map[string]map[string]struct{} // connID -> userIDs
	services map[string]*Connection
	admins   map[string]*Connection
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		log:      log,
		conns:    make(map[string]*Connection),
		rooms:    make(map[string]map[string]int),
		joined:   make(map[string]map[string]struct{}),
		services: make(map[string]*Connection),
		admins:   make(map[string]*Connection),
	}
}

// Register tracks conn and starts its writer.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	switch conn.Principal.Kind {
	case PrincipalService:
		h.services[conn.ID] = conn
	case PrincipalAdmin:
		h.admins[conn.ID] = conn
	}
	h.mu.Unlock()

	conn.Start()
}

// Unregister drops conn and every room reference it held.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return
	}
	delete(h.conns, conn.ID)
	delete(h.services, conn.ID)
	delete(h.admins, conn.ID)
	for userID := range h.joined[conn.ID] {
		h.removeMemberLocked(userID, conn.ID)
	}
	delete(h.joined, conn.ID)
}

// Join adds a reference from conn to the user's room and returns the
// connection's reference count for it.
func (h *Hub) Join(userID string, conn *Connection) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return 0
	}
	room := h.rooms[userID]
	if room == nil {
		room = make(map[string]int)
		h.rooms[userID] = room
	}
	room[conn.ID]++

	memberships := h.joined[conn.ID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		h.joined[conn.ID] = memberships
	}
	memberships[userID] = struct{}{}
	return room[conn.ID]
}

// Leave releases one reference. The connection stops receiving room events
// once its count reaches zero; the room is destroyed when empty.
func (h *Hub) Leave(userID string, conn *Connection) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[userID]
	if room == nil {
		return 0
	}
	n, ok := room[conn.ID]
	if !ok {
		return 0
	}
	if n > 1 {
		room[conn.ID] = n - 1
		return n - 1
	}
	h.removeMemberLocked(userID, conn.ID)
	return 0
}

func (h *Hub) removeMemberLocked(userID, connID string) {
	if room := h.rooms[userID]; room != nil {
		delete(room, connID)
		if len(room) == 0 {
			delete(h.rooms, userID)
		}
	}
	if memberships := h.joined[connID]; memberships != nil {
		delete(memberships, userID)
		if len(memberships) == 0 {
			delete(h.joined, connID)
		}
	}
}

// Publish fans ev out to every member of the user's room and returns how many
// connections accepted it. Frames from one publisher reach each member in
// call order.
func (h *Hub) Publish(userID string, ev Event) int {
	data, err := Encode(ev, "")
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.EventName()).Msg("encode failed")
		return 0
	}
	critical := Critical(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for connID := range h.rooms[userID] {
		if h.enqueue(h.conns[connID], data, critical) {
			delivered++
		}
	}
	return delivered
}

// PublishToServices sends ev to every service connection.
func (h *Hub) PublishToServices(ev Event) int {
	return h.publishSet(ev, func() map[string]*Connection { return h.services })
}

// PublishToAdmins sends ev to every admin connection, joined or not.
func (h *Hub) PublishToAdmins(ev Event) int {
	return h.publishSet(ev, func() map[string]*Connection { return h.admins })
}

func (h *Hub) publishSet(ev Event, set func() map[string]*Connection) int {
	data, err := Encode(ev, "")
	if err != nil {
		h.log.Error().Err(err).Str("event", ev.EventName()).Msg("encode failed")
		return 0
	}
	critical := Critical(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for _, conn := range set() {
		if h.enqueue(conn, data, critical) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) enqueue(conn *Connection, data []byte, critical bool) bool {
	if conn == nil {
		return false
	}
	return conn.Enqueue(data, critical) == nil
}

// ConnectedAdmins is the number of live admin sessions.
func (h *Hub) ConnectedAdmins() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.admins)
}

// RoomSize is the number of distinct connections in the user's room.
func (h *Hub) RoomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

// Close disconnects everyone.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	h.conns = make(map[string]*Connection)
	h.rooms = make(map[string]map[string]int)
	h.joined = make(map[string]map[string]struct{})
	h.services = make(map[string]*Connection)
	h.admins = make(map[string]*Connection)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
