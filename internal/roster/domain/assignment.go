package roster

import (
	"errors"
	"time"
)

// ErrAlreadyAssigned is returned when the (incident, personnel) pair
// already exists.
var ErrAlreadyAssigned = errors.New("roster: already assigned")

// ErrNotAssigned is returned when no assignment exists for the pair.
var ErrNotAssigned = errors.New("roster: not assigned")

// Assignment records one member responding to one incident.
type Assignment struct {
	IncidentID  string    `json:"incident_id"`
	PersonnelID string    `json:"personnel_id"`
	AssignedAt  time.Time `json:"assigned_at"`
	ArrivedAt   time.Time `json:"arrived_at,omitempty"`
}
