package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	incidents "incident-cloud/internal/incidents/domain"
)

// IncidentRepository is a Postgres repository for incidents.
type IncidentRepository struct {
	db *sql.DB
}

// NewIncidentRepository constructs a repository.
func NewIncidentRepository(db *sql.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

const incidentColumns = `
id, number, title, description, priority, status, primary_responder_id,
latitude, longitude, notes,
reported_at, verified_at, acknowledged_at, dispatched_at, responding_at,
arrived_at, in_progress_at, pending_resolve_at, resolved_at, closed_at,
cancelled_at, spam_at, created_at, updated_at`

// Create inserts a new incident.
func (r *IncidentRepository) Create(ctx context.Context, incident *incidents.Incident) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	if incident == nil {
		return errors.New("incident repo: nil incident")
	}
	if incident.ID == "" || incident.Number == "" {
		return errors.New("incident repo: missing fields")
	}
	now := time.Now().UTC()
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = now
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = incident.CreatedAt
	}
	if incident.ReportedAt.IsZero() {
		incident.ReportedAt = incident.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO incidents (
	id, number, title, description, priority, status, primary_responder_id,
	latitude, longitude, notes,
	reported_at, verified_at, acknowledged_at, dispatched_at, responding_at,
	arrived_at, in_progress_at, pending_resolve_at, resolved_at, closed_at,
	cancelled_at, spam_at, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10,
	$11, $12, $13, $14, $15,
	$16, $17, $18, $19, $20,
	$21, $22, $23, $24
)`,
		incident.ID, incident.Number, incident.Title, incident.Description,
		incident.Priority, string(incident.Status), nullableString(incident.PrimaryResponderID),
		incident.Latitude, incident.Longitude, incident.Notes,
		nullableTime(incident.ReportedAt), nullableTime(incident.VerifiedAt),
		nullableTime(incident.AcknowledgedAt), nullableTime(incident.DispatchedAt),
		nullableTime(incident.RespondingAt), nullableTime(incident.ArrivedAt),
		nullableTime(incident.InProgressAt), nullableTime(incident.PendingResolveAt),
		nullableTime(incident.ResolvedAt), nullableTime(incident.ClosedAt),
		nullableTime(incident.CancelledAt), nullableTime(incident.SpamAt),
		incident.CreatedAt, incident.UpdatedAt,
	)
	return err
}

// GetByID fetches an incident by id.
func (r *IncidentRepository) GetByID(ctx context.Context, id string) (*incidents.Incident, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("incident repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+incidentColumns+`
FROM incidents
WHERE id = $1`, id)
	return scanIncident(row)
}

// UpdateStatusCAS persists a transitioned incident, conditional on the
// stored status still matching the status the transition was computed
// from. Zero rows affected means the incident raced with another writer.
func (r *IncidentRepository) UpdateStatusCAS(ctx context.Context, updated *incidents.Incident, from incidents.Status) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	if updated == nil || updated.ID == "" {
		return errors.New("incident repo: nil incident")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE incidents SET
	status = $1, notes = $2, updated_at = $3,
	reported_at = $4, verified_at = $5, acknowledged_at = $6, dispatched_at = $7,
	responding_at = $8, arrived_at = $9, in_progress_at = $10,
	pending_resolve_at = $11, resolved_at = $12, closed_at = $13,
	cancelled_at = $14, spam_at = $15
WHERE id = $16 AND status = $17`,
		string(updated.Status), updated.Notes, updated.UpdatedAt,
		nullableTime(updated.ReportedAt), nullableTime(updated.VerifiedAt),
		nullableTime(updated.AcknowledgedAt), nullableTime(updated.DispatchedAt),
		nullableTime(updated.RespondingAt), nullableTime(updated.ArrivedAt),
		nullableTime(updated.InProgressAt), nullableTime(updated.PendingResolveAt),
		nullableTime(updated.ResolvedAt), nullableTime(updated.ClosedAt),
		nullableTime(updated.CancelledAt), nullableTime(updated.SpamAt),
		updated.ID, string(from),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return incidents.ErrConflict
	}
	return nil
}

// SetPrimaryIfNone elects the personnel as primary responder only when
// no primary is currently set. Returns true when the election won.
func (r *IncidentRepository) SetPrimaryIfNone(ctx context.Context, incidentID, personnelID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("incident repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE incidents
SET primary_responder_id = $1, updated_at = $2
WHERE id = $3 AND primary_responder_id IS NULL`,
		personnelID, time.Now().UTC(), incidentID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClearPrimary removes the primary responder slot. Called when a
// closure releases the roster, so a later reopen starts with a clean
// election.
func (r *IncidentRepository) ClearPrimary(ctx context.Context, incidentID string) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE incidents
SET primary_responder_id = NULL, updated_at = $2
WHERE id = $1 AND primary_responder_id IS NOT NULL`,
		incidentID, time.Now().UTC())
	return err
}

// ReassignPrimaryAfterLeave re-elects the earliest remaining assignment
// as primary, or clears the primary when the roster emptied. The update
// is conditional on the leaver still holding the primary slot, so a
// racing re-election never clobbers a newer primary.
func (r *IncidentRepository) ReassignPrimaryAfterLeave(ctx context.Context, incidentID, leavingID string) error {
	if r == nil || r.db == nil {
		return errors.New("incident repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE incidents
SET primary_responder_id = (
	SELECT personnel_id FROM responder_assignments
	WHERE incident_id = $1
	ORDER BY assigned_at ASC, personnel_id ASC
	LIMIT 1
), updated_at = $2
WHERE id = $1 AND primary_responder_id = $3`,
		incidentID, time.Now().UTC(), leavingID)
	return err
}

func scanIncident(row *sql.Row) (*incidents.Incident, error) {
	var inc incidents.Incident
	var status string
	var primary sql.NullString
	var reported, verified, acked, dispatched, responding sql.NullTime
	var arrived, inProgress, pendingResolve, resolved, closed sql.NullTime
	var cancelled, spam sql.NullTime
	err := row.Scan(
		&inc.ID, &inc.Number, &inc.Title, &inc.Description, &inc.Priority,
		&status, &primary, &inc.Latitude, &inc.Longitude, &inc.Notes,
		&reported, &verified, &acked, &dispatched, &responding,
		&arrived, &inProgress, &pendingResolve, &resolved, &closed,
		&cancelled, &spam, &inc.CreatedAt, &inc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incidents.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inc.Status = incidents.Status(status)
	inc.PrimaryResponderID = primary.String
	inc.ReportedAt = timeOrZero(reported)
	inc.VerifiedAt = timeOrZero(verified)
	inc.AcknowledgedAt = timeOrZero(acked)
	inc.DispatchedAt = timeOrZero(dispatched)
	inc.RespondingAt = timeOrZero(responding)
	inc.ArrivedAt = timeOrZero(arrived)
	inc.InProgressAt = timeOrZero(inProgress)
	inc.PendingResolveAt = timeOrZero(pendingResolve)
	inc.ResolvedAt = timeOrZero(resolved)
	inc.ClosedAt = timeOrZero(closed)
	inc.CancelledAt = timeOrZero(cancelled)
	inc.SpamAt = timeOrZero(spam)
	return &inc, nil
}

func nullableTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func timeOrZero(value sql.NullTime) time.Time {
	if value.Valid {
		return value.Time
	}
	return time.Time{}
}
