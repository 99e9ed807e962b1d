package application

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	acks "incident-cloud/internal/acks/domain"
	"incident-cloud/internal/eventing"
)

// AckStore is the acknowledgment persistence surface.
type AckStore interface {
	Upsert(ctx context.Context, incidentID, personnelID string, at time.Time) error
	ListByIncident(ctx context.Context, incidentID string) ([]acks.Acknowledgment, error)
	CountByIncidents(ctx context.Context, incidentIDs []string) (map[string]int, error)
}

// NotifiableCounter counts members currently eligible for notifications.
type NotifiableCounter interface {
	CountNotifiable(ctx context.Context) (int, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service records and aggregates notification acknowledgments.
type Service struct {
	store   AckStore
	counter NotifiableCounter
	bus     *eventing.Bus
	clock   Clock
	logger  *zap.Logger
}

// NewService constructs an acknowledgment service.
func NewService(store AckStore, counter NotifiableCounter, bus *eventing.Bus, logger *zap.Logger) (*Service, error) {
	if store == nil || counter == nil {
		return nil, errors.New("ack service: nil store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, counter: counter, bus: bus, clock: systemClock{}, logger: logger}, nil
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(clock Clock) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Acknowledge upserts the member's acknowledgment for the incident.
// Repeated calls refresh the timestamp without creating duplicates.
func (s *Service) Acknowledge(ctx context.Context, incidentID, personnelID string) (acks.Acknowledgment, error) {
	if incidentID == "" || personnelID == "" {
		return acks.Acknowledgment{}, errors.New("ack service: incident id and personnel id are required")
	}
	ack := acks.Acknowledgment{
		IncidentID:     incidentID,
		PersonnelID:    personnelID,
		AcknowledgedAt: s.clock.Now(),
	}
	if err := s.store.Upsert(ctx, incidentID, personnelID, ack.AcknowledgedAt); err != nil {
		return acks.Acknowledgment{}, err
	}
	s.publish(ctx, ack)
	return ack, nil
}

// Get returns the acknowledgment summary for one incident.
func (s *Service) Get(ctx context.Context, incidentID string) (*acks.Summary, error) {
	list, err := s.store.ListByIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	total, err := s.counter.CountNotifiable(ctx)
	if err != nil {
		return nil, err
	}
	return &acks.Summary{
		IncidentID:        incidentID,
		TotalNotified:     total,
		AcknowledgedCount: len(list),
		Percentage:        percentage(len(list), total),
		List:              list,
	}, nil
}

// GetBulk returns summaries for several incidents, sharing a single
// notifiable-count query across all of them.
func (s *Service) GetBulk(ctx context.Context, incidentIDs []string) (map[string]*acks.Summary, error) {
	out := make(map[string]*acks.Summary, len(incidentIDs))
	if len(incidentIDs) == 0 {
		return out, nil
	}
	total, err := s.counter.CountNotifiable(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountByIncidents(ctx, incidentIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range incidentIDs {
		count := counts[id]
		out[id] = &acks.Summary{
			IncidentID:        id,
			TotalNotified:     total,
			AcknowledgedCount: count,
			Percentage:        percentage(count, total),
		}
	}
	return out, nil
}

func percentage(acknowledged, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(acknowledged) / float64(total) * 100))
}

func (s *Service) publish(ctx context.Context, ack acks.Acknowledgment) {
	if s.bus == nil {
		return
	}
	env, err := eventing.NewEnvelope(eventing.KindIncidentAcknowledged,
		[]string{eventing.RoomAdmins}, ack)
	if err != nil {
		s.logger.Error("ack event encode failed", zap.Error(err))
		return
	}
	s.bus.Publish(ctx, env)
}
