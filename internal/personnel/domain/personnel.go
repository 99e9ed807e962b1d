package personnel

import "time"

// DutyStatus is a personnel availability state.
type DutyStatus string

const (
	DutyAvailable  DutyStatus = "available"
	DutyOnCall     DutyStatus = "on_call"
	DutyResponding DutyStatus = "responding"
	DutyOffDuty    DutyStatus = "off_duty"
	DutySuspended  DutyStatus = "suspended"
)

// ValidDutyStatus validates a duty status string.
func ValidDutyStatus(value string) (DutyStatus, bool) {
	switch DutyStatus(value) {
	case DutyAvailable, DutyOnCall, DutyResponding, DutyOffDuty, DutySuspended:
		return DutyStatus(value), true
	default:
		return "", false
	}
}

// AvailableLike reports whether the status permits joining an incident.
func (s DutyStatus) AvailableLike() bool {
	return s == DutyAvailable || s == DutyOnCall
}

// Notifiable reports whether the status makes the member eligible for
// incident notifications, and so counted in acknowledgment totals.
func (s DutyStatus) Notifiable() bool {
	return s == DutyAvailable || s == DutyOnCall || s == DutyResponding
}

// Personnel is a member of the organization, field or admin staff.
type Personnel struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	DutyStatus DutyStatus `json:"duty_status"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// LocationSample is a single reported position for a member.
type LocationSample struct {
	PersonnelID string    `json:"personnel_id"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Accuracy    float64   `json:"accuracy,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}
