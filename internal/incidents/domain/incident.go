package incidents

import "time"

// Status is an incident lifecycle state.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusVerified            Status = "verified"
	StatusSpam                Status = "spam"
	StatusReported            Status = "reported"
	StatusAcknowledged        Status = "acknowledged"
	StatusDispatched          Status = "dispatched"
	StatusResponding          Status = "responding"
	StatusArrived             Status = "arrived"
	StatusInProgress          Status = "in_progress"
	StatusPendingResolve      Status = "pending_resolve"
	StatusResolved            Status = "resolved"
	StatusClosed              Status = "closed"
	StatusCancelled           Status = "cancelled"
)

// Priority buckets used for addressing and display.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// Incident is the lifecycle aggregate. Roster membership and
// acknowledgments are separate tables; PrimaryResponderID is a weak
// reference into the roster for this incident.
type Incident struct {
	ID                 string    `json:"id"`
	Number             string    `json:"number"`
	Title              string    `json:"title"`
	Description        string    `json:"description,omitempty"`
	Priority           string    `json:"priority"`
	Status             Status    `json:"status"`
	PrimaryResponderID string    `json:"primary_responder_id,omitempty"`
	Latitude           float64   `json:"latitude,omitempty"`
	Longitude          float64   `json:"longitude,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	ReportedAt         time.Time `json:"reported_at,omitempty"`
	VerifiedAt         time.Time `json:"verified_at,omitempty"`
	AcknowledgedAt     time.Time `json:"acknowledged_at,omitempty"`
	DispatchedAt       time.Time `json:"dispatched_at,omitempty"`
	RespondingAt       time.Time `json:"responding_at,omitempty"`
	ArrivedAt          time.Time `json:"arrived_at,omitempty"`
	InProgressAt       time.Time `json:"in_progress_at,omitempty"`
	PendingResolveAt   time.Time `json:"pending_resolve_at,omitempty"`
	ResolvedAt         time.Time `json:"resolved_at,omitempty"`
	ClosedAt           time.Time `json:"closed_at,omitempty"`
	CancelledAt        time.Time `json:"cancelled_at,omitempty"`
	SpamAt             time.Time `json:"spam_at,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ValidStatus reports whether value is a known lifecycle state.
func ValidStatus(value string) (Status, bool) {
	status := Status(value)
	if _, ok := transitions[status]; ok {
		return status, true
	}
	return "", false
}

// Terminal reports whether the status ends active response. Terminal
// incidents accept no roster changes.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusClosed
}

// Joinable statuses admit new responder assignments: the verified-like
// states up through in-progress, excluding pending verification,
// pending resolution and every terminal or dead state.
func (s Status) Joinable() bool {
	switch s {
	case StatusVerified, StatusReported, StatusAcknowledged, StatusDispatched,
		StatusResponding, StatusArrived, StatusInProgress:
		return true
	default:
		return false
	}
}

// PreResponse reports whether the incident has not yet entered the
// responding phase; the first roster join advances these to responding.
func (s Status) PreResponse() bool {
	switch s {
	case StatusVerified, StatusReported, StatusAcknowledged, StatusDispatched:
		return true
	default:
		return false
	}
}
