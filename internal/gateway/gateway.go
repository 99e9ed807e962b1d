package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"incident-cloud/internal/audit"
	"incident-cloud/internal/auth"
	"incident-cloud/internal/eventing"
	incidents "incident-cloud/internal/incidents/domain"
	"incident-cloud/internal/observability/metrics"
	personnel "incident-cloud/internal/personnel/domain"
)

// LocationStore persists position samples after fan-out.
type LocationStore interface {
	InsertLocation(ctx context.Context, sample personnel.LocationSample) error
}

// DutyStore persists duty status changes after fan-out.
type DutyStore interface {
	UpdateDutyStatus(ctx context.Context, id string, status personnel.DutyStatus) error
}

// IncidentReader resolves incidents for marker lookups.
type IncidentReader interface {
	GetByID(ctx context.Context, id string) (*incidents.Incident, error)
}

// Gateway upgrades authenticated HTTP requests to websocket sessions
// and runs the per-connection event loop.
type Gateway struct {
	verifier  *auth.Verifier
	hub       *Hub
	bus       *eventing.Bus
	auditor   *audit.Recorder
	locations LocationStore
	duty      DutyStore
	incidents IncidentReader
	budgets   Budgets
	origins   []string
	logger    *zap.Logger
	clock     func() time.Time
}

// Config carries the gateway collaborators.
type Config struct {
	Verifier  *auth.Verifier
	Hub       *Hub
	Bus       *eventing.Bus
	Auditor   *audit.Recorder
	Locations LocationStore
	Duty      DutyStore
	Incidents IncidentReader
	Budgets   Budgets
	Origins   []string
	Logger    *zap.Logger
}

// New constructs a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("gateway: nil verifier")
	}
	if cfg.Hub == nil {
		return nil, errors.New("gateway: nil hub")
	}
	if cfg.Bus == nil {
		return nil, errors.New("gateway: nil bus")
	}
	budgets := cfg.Budgets
	if len(budgets) == 0 {
		budgets = DefaultBudgets()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		verifier:  cfg.Verifier,
		hub:       cfg.Hub,
		bus:       cfg.Bus,
		auditor:   cfg.Auditor,
		locations: cfg.Locations,
		duty:      cfg.Duty,
		incidents: cfg.Incidents,
		budgets:   budgets,
		origins:   cfg.Origins,
		logger:    logger,
		clock:     time.Now,
	}, nil
}

const writeTimeout = 5 * time.Second

// ServeHTTP authenticates the handshake and, only then, upgrades the
// connection. An invalid credential never reaches the upgrade.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := auth.ExtractBearer(r)
	if credential == "" {
		http.Error(w, "missing credentials", http.StatusUnauthorized)
		return
	}
	identity, err := g.verifier.Verify(r.Context(), credential)
	if err != nil {
		action := audit.ActionAuthFailed
		if errors.Is(err, auth.ErrSubjectRevoked) {
			action = audit.ActionSubjectRevoked
		}
		g.auditor.Record(audit.Entry{
			Action:   action,
			Detail:   err.Error(),
			RemoteIP: r.RemoteAddr,
		})
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.origins,
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	session := newSession(eventing.NewEventID(), identity, g.budgets)
	g.hub.Join(session, roomsFor(identity)...)
	metrics.GatewayConnected()
	g.logger.Info("session connected",
		zap.String("session_id", session.ID),
		zap.String("subject_id", identity.SubjectID),
		zap.String("role", string(identity.Role)))

	defer func() {
		g.hub.LeaveAll(session)
		metrics.GatewayDisconnected()
		conn.Close(websocket.StatusNormalClosure, "")
		g.logger.Info("session disconnected", zap.String("session_id", session.ID))
	}()

	g.run(r.Context(), conn, session)
}

// run drives one connection: a read pump feeds inbound frames into a
// channel, while the main loop multiplexes them with outbound
// envelopes from the hub.
func (g *Gateway) run(ctx context.Context, conn *websocket.Conn, session *Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := g.write(ctx, conn, g.readyEnvelope(session)); err != nil {
		return
	}

	inbound := make(chan inboundEvent)
	go func() {
		defer cancel()
		for {
			var event inboundEvent
			if err := wsjson.Read(ctx, conn, &event); err != nil {
				return
			}
			select {
			case inbound <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-inbound:
			g.handleEvent(ctx, session, event)
		case env := <-session.send:
			if err := g.write(ctx, conn, env); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) write(ctx context.Context, conn *websocket.Conn, env eventing.Envelope) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, env)
}

func (g *Gateway) readyEnvelope(session *Session) eventing.Envelope {
	rooms := make([]string, 0, len(session.rooms))
	for room := range session.rooms {
		rooms = append(rooms, room)
	}
	env, _ := eventing.NewEnvelope("ready", []string{eventing.PersonalRoom(session.Identity.SubjectID)}, map[string]any{
		"session_id": session.ID,
		"subject_id": session.Identity.SubjectID,
		"role":       session.Identity.Role,
		"rooms":      rooms,
	})
	return env
}

// handleEvent runs the inbound pipeline: capability check, rate
// limit, payload validation, then the kind-specific handler. Failures
// produce an error envelope for the offending session only.
func (g *Gateway) handleEvent(ctx context.Context, session *Session, event inboundEvent) {
	capability, known := capabilityFor(event.Kind)
	if !known {
		metrics.ObserveGatewayEvent(string(event.Kind), metrics.OutcomeInvalid)
		g.sendError(session, event.Kind, "unknown event kind")
		return
	}
	if !session.Identity.Role.Can(capability) {
		metrics.ObserveGatewayEvent(string(event.Kind), metrics.OutcomeUnauthorized)
		g.auditor.Record(audit.Entry{
			Action:    audit.ActionRoleDenied,
			SubjectID: session.Identity.SubjectID,
			Role:      string(session.Identity.Role),
			Detail:    "event " + string(event.Kind),
		})
		g.sendError(session, event.Kind, "not permitted")
		return
	}
	if !session.allow(event.Kind, g.clock()) {
		metrics.ObserveGatewayEvent(string(event.Kind), metrics.OutcomeRateLimited)
		g.sendError(session, event.Kind, "rate limit exceeded")
		return
	}

	var err error
	switch event.Kind {
	case KindLocationUpdate:
		err = g.handleLocation(ctx, session, event.Payload)
	case KindStatusUpdate:
		err = g.handleStatus(ctx, session, event.Payload)
	case KindMarkerClicked:
		err = g.handleMarker(ctx, session, event.Payload)
	case KindBroadcastSend:
		err = g.handleBroadcast(ctx, session, event.Payload)
	}
	if err != nil {
		metrics.ObserveGatewayEvent(string(event.Kind), metrics.OutcomeInvalid)
		if errors.Is(err, errIdentityMismatch) {
			g.auditor.Record(audit.Entry{
				Action:    audit.ActionIdentityMismatch,
				SubjectID: session.Identity.SubjectID,
				Role:      string(session.Identity.Role),
				Detail:    "event " + string(event.Kind),
			})
		}
		g.sendError(session, event.Kind, err.Error())
		return
	}
	metrics.ObserveGatewayEvent(string(event.Kind), metrics.OutcomeAccepted)
}

// handleLocation broadcasts the position to the admin audience first
// and persists it after. A failed write is logged and counted but
// does not retract the already emitted event.
func (g *Gateway) handleLocation(ctx context.Context, session *Session, payload json.RawMessage) error {
	var update LocationUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return invalidPayload("malformed location payload")
	}
	if err := update.validate(session.Identity.SubjectID); err != nil {
		return err
	}
	sample := personnel.LocationSample{
		PersonnelID: session.Identity.SubjectID,
		Latitude:    update.Latitude,
		Longitude:   update.Longitude,
		Accuracy:    update.Accuracy,
		RecordedAt:  update.recordedAt(g.clock()),
	}

	env, err := eventing.NewEnvelope(eventing.KindLocationUpdated, []string{eventing.RoomAdmins}, sample)
	if err != nil {
		return err
	}
	g.bus.Publish(ctx, env)

	if g.locations != nil {
		if err := g.locations.InsertLocation(ctx, sample); err != nil {
			metrics.ObservePersistFailure(string(KindLocationUpdate))
			g.logger.Error("location persist failed after fan-out",
				zap.String("personnel_id", sample.PersonnelID), zap.Error(err))
		}
	}
	return nil
}

func (g *Gateway) handleStatus(ctx context.Context, session *Session, payload json.RawMessage) error {
	var update StatusUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return invalidPayload("malformed status payload")
	}
	if err := update.validate(session.Identity.SubjectID); err != nil {
		return err
	}
	status, _ := personnel.ValidDutyStatus(update.Status)

	env, err := eventing.NewEnvelope(eventing.KindStatusUpdated,
		[]string{eventing.RoomAdmins, eventing.RoomPersonnel},
		map[string]any{
			"personnel_id": session.Identity.SubjectID,
			"status":       status,
			"reason":       update.Reason,
			"changed_at":   g.clock().UTC(),
		})
	if err != nil {
		return err
	}
	g.bus.Publish(ctx, env)

	if g.duty != nil {
		if err := g.duty.UpdateDutyStatus(ctx, session.Identity.SubjectID, status); err != nil {
			metrics.ObservePersistFailure(string(KindStatusUpdate))
			g.logger.Error("duty status persist failed after fan-out",
				zap.String("personnel_id", session.Identity.SubjectID), zap.Error(err))
		}
	}
	return nil
}

// handleMarker answers a marker lookup with the incident details,
// addressed to the requester's personal room only.
func (g *Gateway) handleMarker(ctx context.Context, session *Session, payload json.RawMessage) error {
	var click MarkerClicked
	if err := json.Unmarshal(payload, &click); err != nil {
		return invalidPayload("malformed marker payload")
	}
	if err := click.validate(); err != nil {
		return err
	}
	if g.incidents == nil {
		return invalidPayload("incident lookup unavailable")
	}
	incident, err := g.incidents.GetByID(ctx, click.IncidentID)
	if err != nil {
		if errors.Is(err, incidents.ErrNotFound) {
			return invalidPayload("incident %s not found", click.IncidentID)
		}
		return err
	}
	env, err := eventing.NewEnvelope(eventing.KindIncidentUpdated,
		[]string{eventing.PersonalRoom(session.Identity.SubjectID)}, incident)
	if err != nil {
		return err
	}
	session.enqueue(env)
	return nil
}

// handleBroadcast fans an administrative message out to the named
// rooms and acknowledges the sender.
func (g *Gateway) handleBroadcast(ctx context.Context, session *Session, payload json.RawMessage) error {
	var msg BroadcastSend
	if err := json.Unmarshal(payload, &msg); err != nil {
		return invalidPayload("malformed broadcast payload")
	}
	if err := msg.validate(); err != nil {
		return err
	}
	kind := msg.Type
	if kind == "" {
		kind = BroadcastInfo
	}
	env, err := eventing.NewEnvelope(eventing.KindNotificationNew, msg.Targets, map[string]any{
		"title":    msg.Title,
		"message":  msg.Message,
		"type":     kind,
		"priority": msg.Priority,
		"sender":   session.Identity.SubjectID,
		"sent_at":  g.clock().UTC(),
	})
	if err != nil {
		return err
	}
	g.bus.Publish(ctx, env)

	ack, err := eventing.NewEnvelope("broadcast.ack",
		[]string{eventing.PersonalRoom(session.Identity.SubjectID)},
		map[string]any{"event_id": env.EventID, "targets": msg.Targets})
	if err != nil {
		return err
	}
	session.enqueue(ack)
	return nil
}

// sendError delivers an error envelope to the offending session alone.
func (g *Gateway) sendError(session *Session, kind EventKind, reason string) {
	env, err := eventing.NewEnvelope(eventing.KindError,
		[]string{eventing.PersonalRoom(session.Identity.SubjectID)},
		map[string]any{"event": kind, "reason": reason})
	if err != nil {
		return
	}
	session.enqueue(env)
}
