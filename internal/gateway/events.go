package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"incident-cloud/internal/auth"
	"incident-cloud/internal/eventing"
	personnel "incident-cloud/internal/personnel/domain"
)

// EventKind identifies an inbound socket event.
type EventKind string

const (
	KindLocationUpdate EventKind = "location.update"
	KindStatusUpdate   EventKind = "status.update"
	KindMarkerClicked  EventKind = "marker.clicked"
	KindBroadcastSend  EventKind = "broadcast.send"
)

// capabilityFor maps event kinds to the capability the sender's role
// must hold. Unknown kinds map to no capability and are rejected.
func capabilityFor(kind EventKind) (auth.Capability, bool) {
	switch kind {
	case KindLocationUpdate:
		return auth.CapabilityPublishLocation, true
	case KindStatusUpdate:
		return auth.CapabilityPublishStatus, true
	case KindMarkerClicked:
		return auth.CapabilityReportMarker, true
	case KindBroadcastSend:
		return auth.CapabilityBroadcast, true
	default:
		return "", false
	}
}

// inboundEvent is the wire frame clients send.
type inboundEvent struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// errInvalidPayload wraps payload validation failures.
var errInvalidPayload = errors.New("gateway: invalid payload")

func invalidPayload(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errInvalidPayload, fmt.Sprintf(format, args...))
}

// errIdentityMismatch marks a payload claiming another member's
// identity. Always audited.
var errIdentityMismatch = errors.New("gateway: payload identity does not match session")

// LocationUpdate is a position report from a field member.
type LocationUpdate struct {
	PersonnelID string  `json:"personnel_id,omitempty"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Accuracy    float64 `json:"accuracy,omitempty"`
	Timestamp   int64   `json:"timestamp,omitempty"`
}

func (p *LocationUpdate) validate(subjectID string) error {
	if p.PersonnelID != "" && p.PersonnelID != subjectID {
		return errIdentityMismatch
	}
	if !finite(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return invalidPayload("latitude %v out of range", p.Latitude)
	}
	if !finite(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return invalidPayload("longitude %v out of range", p.Longitude)
	}
	if !finite(p.Accuracy) || p.Accuracy < 0 {
		return invalidPayload("accuracy %v out of range", p.Accuracy)
	}
	return nil
}

func (p *LocationUpdate) recordedAt(now time.Time) time.Time {
	if p.Timestamp <= 0 {
		return now
	}
	return time.UnixMilli(p.Timestamp).UTC()
}

// StatusUpdate is a duty status change reported by a member.
type StatusUpdate struct {
	PersonnelID string `json:"personnel_id,omitempty"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

func (p *StatusUpdate) validate(subjectID string) error {
	if p.PersonnelID != "" && p.PersonnelID != subjectID {
		return errIdentityMismatch
	}
	status, ok := personnel.ValidDutyStatus(p.Status)
	if !ok {
		return invalidPayload("unknown duty status %q", p.Status)
	}
	if status == personnel.DutySuspended {
		// Suspension is an administrative action, never self-reported.
		return invalidPayload("duty status %q cannot be self-assigned", p.Status)
	}
	return nil
}

// MarkerClicked reports a member opening an incident marker.
type MarkerClicked struct {
	IncidentID string `json:"incident_id"`
}

func (p *MarkerClicked) validate() error {
	if strings.TrimSpace(p.IncidentID) == "" {
		return invalidPayload("incident_id is required")
	}
	return nil
}

// Broadcast message types.
const (
	BroadcastInfo      = "info"
	BroadcastWarning   = "warning"
	BroadcastEmergency = "emergency"
)

// BroadcastSend is an administrative broadcast to named rooms.
type BroadcastSend struct {
	Title    string   `json:"title"`
	Message  string   `json:"message"`
	Type     string   `json:"type,omitempty"`
	Targets  []string `json:"targets"`
	Priority string   `json:"priority,omitempty"`
}

func (p *BroadcastSend) validate() error {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Message) == "" {
		return invalidPayload("title and message are required")
	}
	switch p.Type {
	case "", BroadcastInfo, BroadcastWarning, BroadcastEmergency:
	default:
		return invalidPayload("unknown broadcast type %q", p.Type)
	}
	switch p.Priority {
	case "", "low", "medium", "high", "critical":
	default:
		return invalidPayload("unknown priority %q", p.Priority)
	}
	if len(p.Targets) == 0 {
		return invalidPayload("at least one target room is required")
	}
	for _, target := range p.Targets {
		if !validRoom(target) {
			return invalidPayload("unknown target room %q", target)
		}
	}
	return nil
}

func validRoom(room string) bool {
	if room == eventing.RoomPersonnel || room == eventing.RoomAdmins {
		return true
	}
	return strings.HasPrefix(room, "personnel:") && len(room) > len("personnel:")
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}
