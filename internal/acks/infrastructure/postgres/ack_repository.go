package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	acks "incident-cloud/internal/acks/domain"
)

// AckRepository is a Postgres repository for notification acknowledgments.
type AckRepository struct {
	db *sql.DB
}

// NewAckRepository constructs a repository.
func NewAckRepository(db *sql.DB) *AckRepository {
	return &AckRepository{db: db}
}

// Upsert records or refreshes an acknowledgment. The unique constraint
// on (incident_id, personnel_id) makes repeated acknowledgments
// idempotent; only the timestamp moves.
func (r *AckRepository) Upsert(ctx context.Context, incidentID, personnelID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("ack repo: nil db")
	}
	if incidentID == "" || personnelID == "" {
		return errors.New("ack repo: missing fields")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO notification_acknowledgments (incident_id, personnel_id, acknowledged_at)
VALUES ($1, $2, $3)
ON CONFLICT (incident_id, personnel_id)
DO UPDATE SET acknowledged_at = EXCLUDED.acknowledged_at`,
		incidentID, personnelID, at)
	return err
}

// ListByIncident returns acknowledgments ordered by time.
func (r *AckRepository) ListByIncident(ctx context.Context, incidentID string) ([]acks.Acknowledgment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ack repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT incident_id, personnel_id, acknowledged_at
FROM notification_acknowledgments
WHERE incident_id = $1
ORDER BY acknowledged_at ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []acks.Acknowledgment
	for rows.Next() {
		var ack acks.Acknowledgment
		if err := rows.Scan(&ack.IncidentID, &ack.PersonnelID, &ack.AcknowledgedAt); err != nil {
			return nil, err
		}
		out = append(out, ack)
	}
	return out, rows.Err()
}

// CountByIncidents returns acknowledgment counts for a set of incidents.
func (r *AckRepository) CountByIncidents(ctx context.Context, incidentIDs []string) (map[string]int, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("ack repo: nil db")
	}
	out := make(map[string]int, len(incidentIDs))
	if len(incidentIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT incident_id, COUNT(*)
FROM notification_acknowledgments
WHERE incident_id = ANY($1)
GROUP BY incident_id`, incidentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		out[id] = count
	}
	return out, rows.Err()
}
