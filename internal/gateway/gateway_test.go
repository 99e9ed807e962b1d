package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"incident-cloud/internal/audit"
	"incident-cloud/internal/auth"
	"incident-cloud/internal/eventing"
	incidents "incident-cloud/internal/incidents/domain"
	personnel "incident-cloud/internal/personnel/domain"
)

type allowAllDirectory struct{ inactive map[string]bool }

func (d *allowAllDirectory) SubjectActive(_ context.Context, subjectID string) (bool, error) {
	if d.inactive != nil && d.inactive[subjectID] {
		return false, nil
	}
	return true, nil
}

type recordingLocations struct {
	mu      sync.Mutex
	samples []personnel.LocationSample
	fail    error
}

func (s *recordingLocations) InsertLocation(_ context.Context, sample personnel.LocationSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.samples = append(s.samples, sample)
	return nil
}

type recordingDuty struct {
	mu       sync.Mutex
	statuses map[string]personnel.DutyStatus
}

func (s *recordingDuty) UpdateDutyStatus(_ context.Context, id string, status personnel.DutyStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses == nil {
		s.statuses = make(map[string]personnel.DutyStatus)
	}
	s.statuses[id] = status
	return nil
}

type fixedIncidents struct{ incident *incidents.Incident }

func (s *fixedIncidents) GetByID(_ context.Context, id string) (*incidents.Incident, error) {
	if s.incident != nil && s.incident.ID == id {
		return s.incident, nil
	}
	return nil, incidents.ErrNotFound
}

type gatewayHarness struct {
	gateway   *Gateway
	bus       *eventing.Bus
	locations *recordingLocations
	duty      *recordingDuty
	published []eventing.Envelope
	mu        sync.Mutex
}

func (h *gatewayHarness) busEnvelopes() []eventing.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]eventing.Envelope(nil), h.published...)
}

const testSecret = "gateway-test-secret"

func signedToken(t *testing.T, subjectID, role string, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	verifier, err := auth.NewVerifier([]byte(testSecret), &allowAllDirectory{})
	require.NoError(t, err)

	bus := eventing.NewBus()
	h := &gatewayHarness{
		bus:       bus,
		locations: &recordingLocations{},
		duty:      &recordingDuty{},
	}
	bus.Subscribe(func(_ context.Context, env eventing.Envelope) {
		h.mu.Lock()
		h.published = append(h.published, env)
		h.mu.Unlock()
	})

	g, err := New(Config{
		Verifier: verifier,
		Hub:      NewHub(bus, zap.NewNop()),
		Bus:      bus,
		Auditor:  audit.NewRecorder(zap.NewNop()),
		Locations: h.locations,
		Duty:      h.duty,
		Incidents: &fixedIncidents{incident: &incidents.Incident{
			ID:     "inc-1",
			Number: "IC-2026-0001",
			Title:  "Transformer fire",
			Status: incidents.StatusResponding,
		}},
		Logger: zap.NewNop(),
	})
	require.NoError(t, err)
	h.gateway = g
	return h
}

func frame(t *testing.T, kind EventKind, payload any) inboundEvent {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return inboundEvent{Kind: kind, Payload: raw}
}

func errorsFrom(t *testing.T, session *Session) []string {
	t.Helper()
	var reasons []string
	for _, env := range drain(session) {
		if env.Kind != eventing.KindError {
			continue
		}
		var body struct {
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(env.Payload, &body))
		reasons = append(reasons, body.Reason)
	}
	return reasons
}

func TestLocationUpdateBroadcastsThenPersists(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindLocationUpdate, LocationUpdate{
		Latitude:  52.52,
		Longitude: 13.405,
		Accuracy:  8,
	}))

	published := h.busEnvelopes()
	require.Len(t, published, 1)
	require.Equal(t, eventing.KindLocationUpdated, published[0].Kind)
	require.Equal(t, []string{eventing.RoomAdmins}, published[0].Rooms)

	require.Len(t, h.locations.samples, 1)
	require.Equal(t, "p-1", h.locations.samples[0].PersonnelID)
	require.Empty(t, errorsFrom(t, session))
}

func TestLocationPersistFailureDoesNotRetractBroadcast(t *testing.T) {
	h := newHarness(t)
	h.locations.fail = errors.New("db down")
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindLocationUpdate, LocationUpdate{
		Latitude:  10,
		Longitude: 20,
	}))

	require.Len(t, h.busEnvelopes(), 1, "broadcast happens before the write and survives its failure")
	require.Empty(t, errorsFrom(t, session), "persist failure is an operator concern, not a client error")
}

func TestLocationRejectsOutOfRangeCoordinates(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindLocationUpdate, LocationUpdate{
		Latitude:  95,
		Longitude: 20,
	}))

	require.Empty(t, h.busEnvelopes(), "invalid payload must not fan out")
	require.Empty(t, h.locations.samples)
	require.NotEmpty(t, errorsFrom(t, session))
}

func TestLocationRejectsSpoofedIdentity(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindLocationUpdate, LocationUpdate{
		PersonnelID: "p-9",
		Latitude:    1,
		Longitude:   1,
	}))

	require.Empty(t, h.busEnvelopes())
	require.NotEmpty(t, errorsFrom(t, session))
}

func TestStatusUpdatePersistsAndFansOut(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindStatusUpdate, StatusUpdate{
		Status: "on_call",
	}))

	published := h.busEnvelopes()
	require.Len(t, published, 1)
	require.Equal(t, eventing.KindStatusUpdated, published[0].Kind)
	require.ElementsMatch(t, []string{eventing.RoomAdmins, eventing.RoomPersonnel}, published[0].Rooms)
	require.Equal(t, personnel.DutyOnCall, h.duty.statuses["p-1"])
}

func TestStatusUpdateRejectsSelfSuspension(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindStatusUpdate, StatusUpdate{
		Status: "suspended",
	}))

	require.Empty(t, h.busEnvelopes())
	require.Empty(t, h.duty.statuses)
	require.NotEmpty(t, errorsFrom(t, session))
}

func TestResponderCannotBroadcast(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindBroadcastSend, BroadcastSend{
		Title:   "Evacuate",
		Message: "now",
		Targets: []string{eventing.RoomPersonnel},
	}))

	require.Empty(t, h.busEnvelopes())
	reasons := errorsFrom(t, session)
	require.Len(t, reasons, 1)
	require.Equal(t, "not permitted", reasons[0])
}

func TestDispatcherBroadcastReachesTargetsAndAcksSender(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("d-1", "dispatcher"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindBroadcastSend, BroadcastSend{
		Title:   "Shift change",
		Message: "B shift takes over at 18:00",
		Type:    BroadcastWarning,
		Targets: []string{eventing.RoomPersonnel},
	}))

	published := h.busEnvelopes()
	require.Len(t, published, 1)
	require.Equal(t, eventing.KindNotificationNew, published[0].Kind)
	require.Equal(t, []string{eventing.RoomPersonnel}, published[0].Rooms)

	var sawAck bool
	for _, env := range drain(session) {
		if env.Kind == "broadcast.ack" {
			sawAck = true
		}
	}
	require.True(t, sawAck)
}

func TestMarkerClickedRepliesToRequesterOnly(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindMarkerClicked, MarkerClicked{
		IncidentID: "inc-1",
	}))

	require.Empty(t, h.busEnvelopes(), "marker replies are point-to-point, never fanned out")
	queued := drain(session)
	require.Len(t, queued, 1)
	require.Equal(t, eventing.KindIncidentUpdated, queued[0].Kind)
	require.Equal(t, []string{eventing.PersonalRoom("p-1")}, queued[0].Rooms)

	var incident incidents.Incident
	require.NoError(t, json.Unmarshal(queued[0].Payload, &incident))
	require.Equal(t, "IC-2026-0001", incident.Number)
}

func TestMarkerClickedUnknownIncident(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, frame(t, KindMarkerClicked, MarkerClicked{
		IncidentID: "inc-404",
	}))

	require.NotEmpty(t, errorsFrom(t, session))
}

func TestUnknownEventKindRejected(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), DefaultBudgets())

	h.gateway.handleEvent(context.Background(), session, inboundEvent{Kind: "mystery.kind"})

	reasons := errorsFrom(t, session)
	require.Len(t, reasons, 1)
	require.Equal(t, "unknown event kind", reasons[0])
}

func TestRateLimitedEventMutatesNothing(t *testing.T) {
	h := newHarness(t)
	session := newSession("s1", identityOf("p-1", "responder"), Budgets{
		KindLocationUpdate: {Limit: 2, Window: time.Minute},
	})
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	h.gateway.clock = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	send := func() {
		h.gateway.handleEvent(context.Background(), session, frame(t, KindLocationUpdate, LocationUpdate{
			Latitude:  1,
			Longitude: 1,
		}))
	}

	send()
	send()
	send() // third inside the window

	require.Len(t, h.busEnvelopes(), 2, "the rejected event must not fan out")
	require.Len(t, h.locations.samples, 2, "the rejected event must not persist")
	reasons := errorsFrom(t, session)
	require.Len(t, reasons, 1)
	require.Equal(t, "rate limit exceeded", reasons[0])

	// After the window elapses the same kind flows again.
	now = now.Add(2 * time.Minute)
	send()
	require.Len(t, h.locations.samples, 3)
}

func TestHandshakeRejectsMissingAndInvalidTokens(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.gateway)
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(server.URL + "?token=not-a-jwt")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired := signedToken(t, "p-1", "responder", -time.Minute)
	resp, err = http.Get(server.URL + "?token=" + expired)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandshakeConnectsAndReceivesReady(t *testing.T) {
	h := newHarness(t)
	server := httptest.NewServer(h.gateway)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := signedToken(t, "p-1", "responder", time.Hour)
	conn, _, err := websocket.Dial(ctx, server.URL+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	var ready eventing.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &ready))
	require.Equal(t, "ready", ready.Kind)

	var body struct {
		SubjectID string   `json:"subject_id"`
		Rooms     []string `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(ready.Payload, &body))
	require.Equal(t, "p-1", body.SubjectID)
	require.ElementsMatch(t, []string{eventing.RoomPersonnel, eventing.PersonalRoom("p-1")}, body.Rooms)
}

func TestRevokedSubjectCannotConnect(t *testing.T) {
	verifier, err := auth.NewVerifier([]byte(testSecret), &allowAllDirectory{inactive: map[string]bool{"p-9": true}})
	require.NoError(t, err)
	bus := eventing.NewBus()
	g, err := New(Config{
		Verifier: verifier,
		Hub:      NewHub(bus, zap.NewNop()),
		Bus:      bus,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	server := httptest.NewServer(g)
	defer server.Close()

	token := signedToken(t, "p-9", "responder", time.Hour)
	resp, err := http.Get(server.URL + "?token=" + token)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "an unexpired token for a revoked subject must be rejected")
}
