package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"incident-cloud/internal/eventing"
	incidents "incident-cloud/internal/incidents/domain"
	personnel "incident-cloud/internal/personnel/domain"
	roster "incident-cloud/internal/roster/domain"
)

// IncidentStore is the incident persistence surface the roster needs.
type IncidentStore interface {
	GetByID(ctx context.Context, id string) (*incidents.Incident, error)
	UpdateStatusCAS(ctx context.Context, updated *incidents.Incident, from incidents.Status) error
	SetPrimaryIfNone(ctx context.Context, incidentID, personnelID string) (bool, error)
	ReassignPrimaryAfterLeave(ctx context.Context, incidentID, leavingID string) error
}

// AssignmentStore is the assignment persistence surface.
type AssignmentStore interface {
	Insert(ctx context.Context, assignment roster.Assignment) error
	Delete(ctx context.Context, incidentID, personnelID string) error
	Get(ctx context.Context, incidentID, personnelID string) (*roster.Assignment, error)
	ListByIncident(ctx context.Context, incidentID string) ([]roster.Assignment, error)
	MarkArrived(ctx context.Context, incidentID, personnelID string, at time.Time) error
}

// PersonnelStore is the personnel persistence surface.
type PersonnelStore interface {
	GetByID(ctx context.Context, id string) (*personnel.Personnel, error)
	UpdateDutyStatus(ctx context.Context, id string, status personnel.DutyStatus) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service manages responder assignment and primary election. Election
// is never decided in-process: the store's conditional updates and the
// unique assignment constraint arbitrate concurrent joins, because the
// service runs as multiple instances behind one database.
type Service struct {
	incidents   IncidentStore
	assignments AssignmentStore
	personnel   PersonnelStore
	bus         *eventing.Bus
	clock       Clock
	logger      *zap.Logger
}

// NewService constructs a roster service.
func NewService(incidentStore IncidentStore, assignmentStore AssignmentStore, personnelStore PersonnelStore, bus *eventing.Bus, logger *zap.Logger) (*Service, error) {
	if incidentStore == nil || assignmentStore == nil || personnelStore == nil {
		return nil, errors.New("roster service: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		incidents:   incidentStore,
		assignments: assignmentStore,
		personnel:   personnelStore,
		bus:         bus,
		clock:       systemClock{},
		logger:      logger,
	}, nil
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(clock Clock) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// JoinResult reports the outcome of a join.
type JoinResult struct {
	Assignment roster.Assignment  `json:"assignment"`
	Primary    bool               `json:"primary"`
	Incident   incidents.Incident `json:"incident"`
}

// Join assigns a member to an incident. The first member on an empty
// roster wins the primary slot through a conditional update; if the
// incident has not yet entered the responding phase, the winning join
// advances it.
func (s *Service) Join(ctx context.Context, incidentID, personnelID string) (*JoinResult, error) {
	if incidentID == "" || personnelID == "" {
		return nil, incidents.NewValidationError("incident id and personnel id are required")
	}
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	if !incident.Status.Joinable() {
		return nil, incidents.NewValidationError("incident in status %s does not accept responders", incident.Status)
	}
	member, err := s.personnel.GetByID(ctx, personnelID)
	if err != nil {
		return nil, err
	}
	if !member.Active {
		return nil, incidents.NewValidationError("personnel %s is inactive", personnelID)
	}
	if !member.DutyStatus.AvailableLike() {
		return nil, incidents.NewValidationError("personnel %s is not available (status %s)", personnelID, member.DutyStatus)
	}

	assignment := roster.Assignment{
		IncidentID:  incidentID,
		PersonnelID: personnelID,
		AssignedAt:  s.clock.Now(),
	}
	if err := s.assignments.Insert(ctx, assignment); err != nil {
		if errors.Is(err, roster.ErrAlreadyAssigned) {
			return nil, incidents.NewValidationError("personnel %s already assigned to incident %s", personnelID, incidentID)
		}
		return nil, err
	}

	elected, err := s.incidents.SetPrimaryIfNone(ctx, incidentID, personnelID)
	if err != nil {
		return nil, err
	}
	if elected {
		incident.PrimaryResponderID = personnelID
		if incident.Status.PreResponse() {
			if advanced, err := s.advanceToResponding(ctx, incident); err != nil {
				return nil, err
			} else if advanced != nil {
				incident = advanced
			}
		}
	}

	if err := s.personnel.UpdateDutyStatus(ctx, personnelID, personnel.DutyResponding); err != nil {
		return nil, err
	}

	s.publishIncidentUpdate(ctx, incident, personnelID, "responder_joined")
	return &JoinResult{Assignment: assignment, Primary: elected, Incident: *incident}, nil
}

// advanceToResponding applies the pre-response -> responding transition
// with a compare-and-set retry: a lost race means another writer moved
// the incident, in which case the newer state wins.
func (s *Service) advanceToResponding(ctx context.Context, incident *incidents.Incident) (*incidents.Incident, error) {
	for attempt := 0; attempt < 2; attempt++ {
		updated, err := incidents.Transition(*incident, incidents.StatusResponding, "", s.clock.Now())
		if err != nil {
			// The incident moved out of the pre-response set.
			return incident, nil
		}
		err = s.incidents.UpdateStatusCAS(ctx, &updated, incident.Status)
		if err == nil {
			return &updated, nil
		}
		if !errors.Is(err, incidents.ErrConflict) {
			return nil, err
		}
		reloaded, err := s.incidents.GetByID(ctx, incident.ID)
		if err != nil {
			return nil, err
		}
		incident = reloaded
		if !incident.Status.PreResponse() {
			return incident, nil
		}
	}
	return incident, nil
}

// Leave removes a member from an incident's roster, reverting their
// duty status and re-electing the earliest remaining assignment when
// the leaver held the primary slot.
func (s *Service) Leave(ctx context.Context, incidentID, personnelID string) error {
	if incidentID == "" || personnelID == "" {
		return incidents.NewValidationError("incident id and personnel id are required")
	}
	incident, err := s.incidents.GetByID(ctx, incidentID)
	if err != nil {
		return err
	}
	if incident.Status.Terminal() {
		return incidents.NewValidationError("incident in status %s no longer accepts roster changes", incident.Status)
	}

	if err := s.assignments.Delete(ctx, incidentID, personnelID); err != nil {
		if errors.Is(err, roster.ErrNotAssigned) {
			return incidents.NewValidationError("personnel %s is not assigned to incident %s", personnelID, incidentID)
		}
		return err
	}
	if err := s.incidents.ReassignPrimaryAfterLeave(ctx, incidentID, personnelID); err != nil {
		return err
	}
	if err := s.personnel.UpdateDutyStatus(ctx, personnelID, personnel.DutyAvailable); err != nil {
		return err
	}

	s.publishIncidentUpdate(ctx, incident, personnelID, "responder_left")
	return nil
}

// Arrive stamps the on-scene time for an assignment.
func (s *Service) Arrive(ctx context.Context, incidentID, personnelID string) error {
	if err := s.assignments.MarkArrived(ctx, incidentID, personnelID, s.clock.Now()); err != nil {
		if errors.Is(err, roster.ErrNotAssigned) {
			return incidents.NewValidationError("personnel %s is not assigned to incident %s", personnelID, incidentID)
		}
		return err
	}
	return nil
}

// Roster returns the current assignments ordered by assignment time.
func (s *Service) Roster(ctx context.Context, incidentID string) ([]roster.Assignment, error) {
	return s.assignments.ListByIncident(ctx, incidentID)
}

func (s *Service) publishIncidentUpdate(ctx context.Context, incident *incidents.Incident, personnelID, change string) {
	if s.bus == nil {
		return
	}
	env, err := eventing.NewEnvelope(eventing.KindIncidentUpdated,
		[]string{eventing.RoomAdmins, eventing.RoomPersonnel},
		map[string]any{
			"incident_id":  incident.ID,
			"status":       incident.Status,
			"primary_id":   incident.PrimaryResponderID,
			"personnel_id": personnelID,
			"change":       change,
		})
	if err != nil {
		s.logger.Error("roster event encode failed", zap.Error(err))
		return
	}
	s.bus.Publish(ctx, env)
}
