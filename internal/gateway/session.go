package gateway

import (
	"time"

	"incident-cloud/internal/auth"
	"incident-cloud/internal/eventing"
)

// Session is the per-connection state: verified identity, room
// memberships and rate-limit windows. It is created on a successful
// handshake and destroyed on disconnect; the windows die with it, so
// counters can never leak across connections.
type Session struct {
	ID       string
	Identity auth.Identity

	rooms   map[string]struct{}
	windows map[EventKind]*slidingWindow
	budgets Budgets
	send    chan eventing.Envelope
}

const sendQueueDepth = 32

func newSession(id string, identity auth.Identity, budgets Budgets) *Session {
	return &Session{
		ID:       id,
		Identity: identity,
		rooms:    make(map[string]struct{}),
		windows:  make(map[EventKind]*slidingWindow),
		budgets:  budgets,
		send:     make(chan eventing.Envelope, sendQueueDepth),
	}
}

// roomsFor returns the rooms a freshly authenticated identity joins:
// personnel get the shared personnel room, admin-audience roles the
// shared admin room. Every session also joins its personal room, so
// directed envelopes reach admins too.
func roomsFor(identity auth.Identity) []string {
	if auth.IsAdminLike(identity.Role) {
		return []string{eventing.RoomAdmins, eventing.PersonalRoom(identity.SubjectID)}
	}
	return []string{eventing.RoomPersonnel, eventing.PersonalRoom(identity.SubjectID)}
}

// allow applies the sliding window for the event kind.
func (s *Session) allow(kind EventKind, now time.Time) bool {
	window, ok := s.windows[kind]
	if !ok {
		window = newSlidingWindow(s.budgets[kind])
		s.windows[kind] = window
	}
	return window.allow(now)
}

// enqueue offers an envelope for delivery, dropping it when the client
// cannot keep up. A slow consumer must not stall the room fan-out.
func (s *Session) enqueue(env eventing.Envelope) bool {
	select {
	case s.send <- env:
		return true
	default:
		return false
	}
}
