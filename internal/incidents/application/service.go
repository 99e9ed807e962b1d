package application

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"incident-cloud/internal/eventing"
	incidents "incident-cloud/internal/incidents/domain"
	"incident-cloud/internal/observability/metrics"
	personnel "incident-cloud/internal/personnel/domain"
)

// IncidentStore is the persistence surface for the transition engine.
type IncidentStore interface {
	GetByID(ctx context.Context, id string) (*incidents.Incident, error)
	UpdateStatusCAS(ctx context.Context, updated *incidents.Incident, from incidents.Status) error
	ClearPrimary(ctx context.Context, incidentID string) error
}

// AssignmentCleaner detaches a closed incident's roster.
type AssignmentCleaner interface {
	DeleteAllForIncident(ctx context.Context, incidentID string) ([]string, error)
}

// DutyUpdater reverts duty status for released responders.
type DutyUpdater interface {
	UpdateDutyStatus(ctx context.Context, id string, status personnel.DutyStatus) error
}

// Notifier dispatches incident notifications to the recipient set.
// Delivery is fire-and-forget; the engine does not wait on it.
type Notifier interface {
	IncidentVerified(ctx context.Context, incident incidents.Incident)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service validates and applies incident status changes. The transition
// write is a compare-and-set on the prior status, so two racing
// transitions cannot both apply.
type Service struct {
	store       IncidentStore
	assignments AssignmentCleaner
	duty        DutyUpdater
	bus         *eventing.Bus
	notifier    Notifier
	clock       Clock
	logger      *zap.Logger
}

// NewService constructs a transition service.
func NewService(store IncidentStore, assignments AssignmentCleaner, duty DutyUpdater, bus *eventing.Bus, notifier Notifier, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("incident service: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		assignments: assignments,
		duty:        duty,
		bus:         bus,
		notifier:    notifier,
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

// Get returns an incident by id.
func (s *Service) Get(ctx context.Context, incidentID string) (*incidents.Incident, error) {
	return s.store.GetByID(ctx, incidentID)
}

// Transition applies a status change. A rejected transition performs no
// mutation; a successful one stamps only the destination phase
// timestamp and fans the result out to the admin and personnel rooms.
func (s *Service) Transition(ctx context.Context, incidentID string, target incidents.Status, notes string) (*incidents.Incident, error) {
	if incidentID == "" {
		return nil, incidents.NewValidationError("incident id is required")
	}
	incident, err := s.store.GetByID(ctx, incidentID)
	if err != nil {
		return nil, err
	}

	updated, err := incidents.Transition(*incident, target, notes, s.clock.Now())
	if err != nil {
		metrics.ObserveTransitionReject()
		return nil, err
	}
	if err := s.store.UpdateStatusCAS(ctx, &updated, incident.Status); err != nil {
		return nil, err
	}
	metrics.ObserveTransition(string(incident.Status), string(target))

	if target == incidents.StatusClosed {
		s.releaseRoster(ctx, &updated)
	}

	s.publish(ctx, &updated)
	if target == incidents.StatusVerified && s.notifier != nil {
		s.notifier.IncidentVerified(ctx, updated)
	}
	return &updated, nil
}

// releaseRoster deletes the closed incident's assignments, clears the
// primary slot and reverts the released members to available. The
// primary must not outlive the roster: a stale value would block the
// election on the first join after a reopen.
func (s *Service) releaseRoster(ctx context.Context, incident *incidents.Incident) {
	if err := s.store.ClearPrimary(ctx, incident.ID); err != nil {
		s.logger.Error("primary release failed",
			zap.String("incident_id", incident.ID), zap.Error(err))
	} else {
		incident.PrimaryResponderID = ""
	}
	if s.assignments == nil {
		return
	}
	released, err := s.assignments.DeleteAllForIncident(ctx, incident.ID)
	if err != nil {
		s.logger.Error("roster release failed",
			zap.String("incident_id", incident.ID), zap.Error(err))
		return
	}
	if s.duty == nil {
		return
	}
	for _, personnelID := range released {
		if err := s.duty.UpdateDutyStatus(ctx, personnelID, personnel.DutyAvailable); err != nil {
			s.logger.Error("duty revert failed",
				zap.String("incident_id", incident.ID),
				zap.String("personnel_id", personnelID), zap.Error(err))
		}
	}
}

func (s *Service) publish(ctx context.Context, incident *incidents.Incident) {
	if s.bus == nil {
		return
	}
	rooms := []string{eventing.RoomAdmins, eventing.RoomPersonnel}
	env, err := eventing.NewEnvelope(eventing.KindIncidentUpdated, rooms, incident)
	if err != nil {
		s.logger.Error("incident event encode failed", zap.Error(err))
		return
	}
	s.bus.Publish(ctx, env)

	if incident.Status == incidents.StatusVerified {
		verified, err := eventing.NewEnvelope(eventing.KindIncidentVerified, rooms, incident)
		if err != nil {
			s.logger.Error("incident event encode failed", zap.Error(err))
			return
		}
		s.bus.Publish(ctx, verified)
	}
}
