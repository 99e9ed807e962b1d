package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	roster "incident-cloud/internal/roster/domain"
)

const uniqueViolation = "23505"

// AssignmentRepository is a Postgres repository for responder assignments.
type AssignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository constructs a repository.
func NewAssignmentRepository(db *sql.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Insert creates an assignment row. The table carries a unique
// constraint on (incident_id, personnel_id); a duplicate insert maps to
// ErrAlreadyAssigned so concurrent joins cannot double-assign.
func (r *AssignmentRepository) Insert(ctx context.Context, assignment roster.Assignment) error {
	if r == nil || r.db == nil {
		return errors.New("assignment repo: nil db")
	}
	if assignment.IncidentID == "" || assignment.PersonnelID == "" {
		return errors.New("assignment repo: missing fields")
	}
	if assignment.AssignedAt.IsZero() {
		assignment.AssignedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO responder_assignments (incident_id, personnel_id, assigned_at, arrived_at)
VALUES ($1, $2, $3, $4)`,
		assignment.IncidentID, assignment.PersonnelID, assignment.AssignedAt,
		sql.NullTime{Time: assignment.ArrivedAt, Valid: !assignment.ArrivedAt.IsZero()})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return roster.ErrAlreadyAssigned
		}
		return err
	}
	return nil
}

// Delete removes the assignment for the pair. Returns ErrNotAssigned
// when no row existed.
func (r *AssignmentRepository) Delete(ctx context.Context, incidentID, personnelID string) error {
	if r == nil || r.db == nil {
		return errors.New("assignment repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
DELETE FROM responder_assignments
WHERE incident_id = $1 AND personnel_id = $2`, incidentID, personnelID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return roster.ErrNotAssigned
	}
	return nil
}

// DeleteAllForIncident removes every assignment for an incident and
// returns the personnel ids that were assigned, for duty-status resets
// on incident closure.
func (r *AssignmentRepository) DeleteAllForIncident(ctx context.Context, incidentID string) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("assignment repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
DELETE FROM responder_assignments
WHERE incident_id = $1
RETURNING personnel_id`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get fetches one assignment.
func (r *AssignmentRepository) Get(ctx context.Context, incidentID, personnelID string) (*roster.Assignment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("assignment repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT incident_id, personnel_id, assigned_at, arrived_at
FROM responder_assignments
WHERE incident_id = $1 AND personnel_id = $2`, incidentID, personnelID)
	var out roster.Assignment
	var arrived sql.NullTime
	err := row.Scan(&out.IncidentID, &out.PersonnelID, &out.AssignedAt, &arrived)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, roster.ErrNotAssigned
	}
	if err != nil {
		return nil, err
	}
	if arrived.Valid {
		out.ArrivedAt = arrived.Time
	}
	return &out, nil
}

// ListByIncident returns the roster ordered by ascending assignment time.
func (r *AssignmentRepository) ListByIncident(ctx context.Context, incidentID string) ([]roster.Assignment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("assignment repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT incident_id, personnel_id, assigned_at, arrived_at
FROM responder_assignments
WHERE incident_id = $1
ORDER BY assigned_at ASC, personnel_id ASC`, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []roster.Assignment
	for rows.Next() {
		var a roster.Assignment
		var arrived sql.NullTime
		if err := rows.Scan(&a.IncidentID, &a.PersonnelID, &a.AssignedAt, &arrived); err != nil {
			return nil, err
		}
		if arrived.Valid {
			a.ArrivedAt = arrived.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Count returns the roster size for an incident.
func (r *AssignmentRepository) Count(ctx context.Context, incidentID string) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("assignment repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM responder_assignments
WHERE incident_id = $1`, incidentID).Scan(&count)
	return count, err
}

// MarkArrived stamps the on-scene time for an assignment.
func (r *AssignmentRepository) MarkArrived(ctx context.Context, incidentID, personnelID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("assignment repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE responder_assignments
SET arrived_at = $1
WHERE incident_id = $2 AND personnel_id = $3`, at, incidentID, personnelID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return roster.ErrNotAssigned
	}
	return nil
}
