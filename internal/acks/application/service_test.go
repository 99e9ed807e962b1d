package application

import (
	"context"
	"sync"
	"testing"
	"time"

	acks "incident-cloud/internal/acks/domain"
	"incident-cloud/internal/eventing"
)

type memAckStore struct {
	mu   sync.Mutex
	rows map[string]map[string]time.Time
}

func newMemAckStore() *memAckStore {
	return &memAckStore{rows: make(map[string]map[string]time.Time)}
}

func (m *memAckStore) Upsert(_ context.Context, incidentID, personnelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byIncident := m.rows[incidentID]
	if byIncident == nil {
		byIncident = make(map[string]time.Time)
		m.rows[incidentID] = byIncident
	}
	byIncident[personnelID] = at
	return nil
}

func (m *memAckStore) ListByIncident(_ context.Context, incidentID string) ([]acks.Acknowledgment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []acks.Acknowledgment
	for personnelID, at := range m.rows[incidentID] {
		out = append(out, acks.Acknowledgment{IncidentID: incidentID, PersonnelID: personnelID, AcknowledgedAt: at})
	}
	return out, nil
}

func (m *memAckStore) CountByIncidents(_ context.Context, incidentIDs []string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, id := range incidentIDs {
		if n := len(m.rows[id]); n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

type fixedCounter int

func (f fixedCounter) CountNotifiable(_ context.Context) (int, error) { return int(f), nil }

type tickingClock struct {
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

func TestAcknowledgeIsIdempotentAndRefreshesTimestamp(t *testing.T) {
	store := newMemAckStore()
	service, err := NewService(store, fixedCounter(10), nil, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	service.WithClock(&tickingClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
	ctx := context.Background()

	first, err := service.Acknowledge(ctx, "inc-1", "resp-a")
	if err != nil {
		t.Fatalf("first ack: %v", err)
	}
	second, err := service.Acknowledge(ctx, "inc-1", "resp-a")
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if !second.AcknowledgedAt.After(first.AcknowledgedAt) {
		t.Fatal("second acknowledgment did not refresh the timestamp")
	}

	summary, err := service.Get(ctx, "inc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if summary.AcknowledgedCount != 1 {
		t.Fatalf("expected a single record, got %d", summary.AcknowledgedCount)
	}
	if !summary.List[0].AcknowledgedAt.Equal(second.AcknowledgedAt) {
		t.Fatal("later timestamp not retained")
	}
}

func TestPercentageBounds(t *testing.T) {
	cases := []struct {
		acknowledged int
		total        int
		want         int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{10, 10, 100},
	}
	for _, tc := range cases {
		got := percentage(tc.acknowledged, tc.total)
		if got != tc.want {
			t.Errorf("percentage(%d, %d) = %d, want %d", tc.acknowledged, tc.total, got, tc.want)
		}
		if got < 0 || got > 100 {
			t.Errorf("percentage(%d, %d) = %d out of range", tc.acknowledged, tc.total, got)
		}
	}
}

func TestGetZeroNotified(t *testing.T) {
	service, _ := NewService(newMemAckStore(), fixedCounter(0), nil, nil)
	summary, err := service.Get(context.Background(), "inc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if summary.Percentage != 0 {
		t.Fatalf("expected 0%% with empty denominator, got %d", summary.Percentage)
	}
}

func TestGetBulkSharesOneCount(t *testing.T) {
	store := newMemAckStore()
	ctx := context.Background()
	service, _ := NewService(store, fixedCounter(4), nil, nil)
	service.WithClock(&tickingClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})

	_, _ = service.Acknowledge(ctx, "inc-1", "resp-a")
	_, _ = service.Acknowledge(ctx, "inc-1", "resp-b")
	_, _ = service.Acknowledge(ctx, "inc-2", "resp-a")

	summaries, err := service.GetBulk(ctx, []string{"inc-1", "inc-2", "inc-3"})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if summaries["inc-1"].AcknowledgedCount != 2 || summaries["inc-1"].Percentage != 50 {
		t.Fatalf("inc-1 summary wrong: %+v", summaries["inc-1"])
	}
	if summaries["inc-2"].AcknowledgedCount != 1 || summaries["inc-2"].Percentage != 25 {
		t.Fatalf("inc-2 summary wrong: %+v", summaries["inc-2"])
	}
	if summaries["inc-3"].AcknowledgedCount != 0 || summaries["inc-3"].Percentage != 0 {
		t.Fatalf("inc-3 summary wrong: %+v", summaries["inc-3"])
	}
}

func TestAcknowledgePublishesAdminEvent(t *testing.T) {
	bus := eventing.NewBus()
	var rooms [][]string
	bus.Subscribe(func(_ context.Context, env eventing.Envelope) {
		rooms = append(rooms, env.Rooms)
	})
	service, _ := NewService(newMemAckStore(), fixedCounter(1), bus, nil)

	if _, err := service.Acknowledge(context.Background(), "inc-1", "resp-a"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if len(rooms) != 1 || len(rooms[0]) != 1 || rooms[0][0] != eventing.RoomAdmins {
		t.Fatalf("acknowledgment should target only the admin room, got %v", rooms)
	}
}
