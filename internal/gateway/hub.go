package gateway

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"incident-cloud/internal/eventing"
	"incident-cloud/internal/observability/metrics"
)

// Hub tracks which sessions belong to which rooms and fans bus
// envelopes out to them. Delivery is non-blocking: a session that
// cannot drain its queue loses the envelope rather than stalling the
// room.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Session]struct{}
	logger *zap.Logger
}

func NewHub(bus *eventing.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		rooms:  make(map[string]map[*Session]struct{}),
		logger: logger,
	}
	if bus != nil {
		bus.Subscribe(func(_ context.Context, env eventing.Envelope) {
			h.Broadcast(env)
		})
	}
	return h
}

// Join adds the session to each named room.
func (h *Hub) Join(session *Session, rooms ...string) {
	if session == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, room := range rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Session]struct{})
			h.rooms[room] = members
		}
		members[session] = struct{}{}
		session.rooms[room] = struct{}{}
	}
}

// LeaveAll removes the session from every room it joined. Empty rooms
// are dropped from the registry.
func (h *Hub) LeaveAll(session *Session) {
	if session == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range session.rooms {
		members, ok := h.rooms[room]
		if !ok {
			continue
		}
		delete(members, session)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	session.rooms = make(map[string]struct{})
}

// Broadcast enqueues the envelope for every session in the envelope's
// rooms. A session in several target rooms receives it once.
func (h *Hub) Broadcast(env eventing.Envelope) {
	h.mu.RLock()
	seen := make(map[*Session]struct{})
	for _, room := range env.Rooms {
		for session := range h.rooms[room] {
			seen[session] = struct{}{}
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for session := range seen {
		if !session.enqueue(env) {
			dropped++
		}
	}
	metrics.ObserveBroadcast(string(env.Kind))
	if dropped > 0 {
		h.logger.Warn("dropped envelope for slow sessions",
			zap.String("kind", string(env.Kind)),
			zap.Int("dropped", dropped))
	}
}

// RoomSize reports the current member count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
