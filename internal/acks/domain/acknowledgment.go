package acks

import "time"

// Acknowledgment records that a member saw an incident notification.
// The (incident, personnel) pair is unique; repeated acknowledgments
// refresh the timestamp.
type Acknowledgment struct {
	IncidentID     string    `json:"incident_id"`
	PersonnelID    string    `json:"personnel_id"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// Summary aggregates acknowledgment progress for one incident.
// TotalNotified is recomputed live from current duty statuses, so the
// denominator drifts as personnel go on and off duty.
type Summary struct {
	IncidentID        string           `json:"incident_id"`
	TotalNotified     int              `json:"total_notified"`
	AcknowledgedCount int              `json:"acknowledged_count"`
	Percentage        int              `json:"acknowledgment_percentage"`
	List              []Acknowledgment `json:"list"`
}
