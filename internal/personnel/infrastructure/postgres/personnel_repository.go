package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	personnel "incident-cloud/internal/personnel/domain"
)

// ErrNotFound is returned when a personnel record does not exist.
var ErrNotFound = errors.New("personnel repo: not found")

// PersonnelRepository is a Postgres repository for personnel records.
type PersonnelRepository struct {
	db *sql.DB
}

// NewPersonnelRepository constructs a repository.
func NewPersonnelRepository(db *sql.DB) *PersonnelRepository {
	return &PersonnelRepository{db: db}
}

// GetByID fetches a personnel record.
func (r *PersonnelRepository) GetByID(ctx context.Context, id string) (*personnel.Personnel, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("personnel repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, email, role, duty_status, active, created_at, updated_at
FROM personnel
WHERE id = $1`, id)
	return scanPersonnel(row)
}

// SubjectActive reports whether a subject exists and is active. It
// backs the token verifier's revocation re-check.
func (r *PersonnelRepository) SubjectActive(ctx context.Context, subjectID string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("personnel repo: nil db")
	}
	var active bool
	var duty string
	err := r.db.QueryRowContext(ctx, `
SELECT active, duty_status FROM personnel WHERE id = $1`, subjectID).Scan(&active, &duty)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return active && personnel.DutyStatus(duty) != personnel.DutySuspended, nil
}

// UpdateDutyStatus sets the duty status for a member.
func (r *PersonnelRepository) UpdateDutyStatus(ctx context.Context, id string, status personnel.DutyStatus) error {
	if r == nil || r.db == nil {
		return errors.New("personnel repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE personnel
SET duty_status = $1, updated_at = $2
WHERE id = $3`, string(status), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountNotifiable counts members currently in a notifiable duty status.
func (r *PersonnelRepository) CountNotifiable(ctx context.Context) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("personnel repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM personnel
WHERE active AND duty_status IN ($1, $2, $3)`,
		string(personnel.DutyAvailable), string(personnel.DutyOnCall), string(personnel.DutyResponding),
	).Scan(&count)
	return count, err
}

// ListNotifiable returns members eligible for incident notifications.
func (r *PersonnelRepository) ListNotifiable(ctx context.Context) ([]personnel.Personnel, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("personnel repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, email, role, duty_status, active, created_at, updated_at
FROM personnel
WHERE active AND duty_status IN ($1, $2, $3)
ORDER BY name ASC`,
		string(personnel.DutyAvailable), string(personnel.DutyOnCall), string(personnel.DutyResponding))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPersonnel(rows)
}

// ListAdminStaff returns active admin-audience members.
func (r *PersonnelRepository) ListAdminStaff(ctx context.Context) ([]personnel.Personnel, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("personnel repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, email, role, duty_status, active, created_at, updated_at
FROM personnel
WHERE active AND role IN ('admin', 'dispatcher')
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPersonnel(rows)
}

// InsertLocation stores a reported position sample.
func (r *PersonnelRepository) InsertLocation(ctx context.Context, sample personnel.LocationSample) error {
	if r == nil || r.db == nil {
		return errors.New("personnel repo: nil db")
	}
	if sample.PersonnelID == "" {
		return errors.New("personnel repo: missing personnel id")
	}
	if sample.RecordedAt.IsZero() {
		sample.RecordedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO personnel_locations (personnel_id, latitude, longitude, accuracy, recorded_at)
VALUES ($1, $2, $3, $4, $5)`,
		sample.PersonnelID, sample.Latitude, sample.Longitude,
		sql.NullFloat64{Float64: sample.Accuracy, Valid: sample.Accuracy > 0},
		sample.RecordedAt)
	return err
}

func scanPersonnel(row *sql.Row) (*personnel.Personnel, error) {
	var p personnel.Personnel
	var duty string
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Role, &duty, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.DutyStatus = personnel.DutyStatus(duty)
	return &p, nil
}

func collectPersonnel(rows *sql.Rows) ([]personnel.Personnel, error) {
	var out []personnel.Personnel
	for rows.Next() {
		var p personnel.Personnel
		var duty string
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Role, &duty, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.DutyStatus = personnel.DutyStatus(duty)
		out = append(out, p)
	}
	return out, rows.Err()
}
