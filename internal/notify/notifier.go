package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"incident-cloud/internal/eventing"
	incidents "incident-cloud/internal/incidents/domain"
	"incident-cloud/internal/observability/metrics"
)

// Dispatch results recorded in metrics.
const (
	resultSent       = "sent"
	resultFailed     = "failed"
	resultSuppressed = "suppressed"
)

// Clock provides time for dedupe bookkeeping.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier resolves the recipient set for a verified incident, fans a
// notification event out over the bus, and delivers the rendered
// content through the channel.
type Notifier struct {
	directory Directory
	channel   Channel
	template  *Template
	bus       *eventing.Bus
	logger    *zap.Logger
	clock     Clock

	mu           sync.Mutex
	sent         map[string]sendRecord
	cooldown     time.Duration
	dedupeWindow time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the
// same incident and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an incident notifier. The channel may be nil
// when no webhook is configured; bus fan-out still happens.
func NewNotifier(directory Directory, channel Channel, template *Template, bus *eventing.Bus, logger *zap.Logger, opts ...Option) (*Notifier, error) {
	if directory == nil {
		return nil, errors.New("incident notifier: nil directory")
	}
	if bus == nil {
		return nil, errors.New("incident notifier: nil bus")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &Notifier{
		directory: directory,
		channel:   channel,
		template:  template,
		bus:       bus,
		logger:    logger,
		clock:     systemClock{},
		sent:      make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// IncidentVerified implements the application Notifier contract.
func (n *Notifier) IncidentVerified(ctx context.Context, incident incidents.Incident) {
	n.dispatch(ctx, "verified", incident)
}

func (n *Notifier) dispatch(ctx context.Context, event string, incident incidents.Incident) {
	if n == nil {
		return
	}
	recipients, err := ResolveRecipients(ctx, n.directory)
	if err != nil {
		metrics.ObserveNotification(resultFailed)
		n.logger.Error("recipient resolution failed",
			zap.String("incident_id", incident.ID), zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		n.logger.Warn("no recipients for incident notification",
			zap.String("incident_id", incident.ID))
		return
	}

	content, err := n.template.Render(templateDataFor(event, incident, len(recipients)))
	if err != nil {
		metrics.ObserveNotification(resultFailed)
		n.logger.Error("notification render failed",
			zap.String("incident_id", incident.ID), zap.Error(err))
		return
	}
	if !n.shouldSend(incident.ID, event, content) {
		metrics.ObserveNotification(resultSuppressed)
		return
	}

	n.publish(ctx, event, incident, recipients)

	if n.channel != nil {
		if err := n.channel.Send(ctx, content); err != nil {
			metrics.ObserveNotification(resultFailed)
			n.logger.Error("notification delivery failed",
				zap.String("incident_id", incident.ID), zap.Error(err))
			return
		}
	}
	n.markSent(incident.ID, event, content)
	metrics.ObserveNotification(resultSent)
}

// publish emits notification.new to the admin room and every
// recipient's personal room.
func (n *Notifier) publish(ctx context.Context, event string, incident incidents.Incident, recipients []Recipient) {
	rooms := make([]string, 0, len(recipients)+1)
	rooms = append(rooms, eventing.RoomAdmins)
	for _, recipient := range recipients {
		rooms = append(rooms, eventing.PersonalRoom(recipient.PersonnelID))
	}
	env, err := eventing.NewEnvelope(eventing.KindNotificationNew, rooms, map[string]any{
		"event":           event,
		"incident_id":     incident.ID,
		"incident_number": incident.Number,
		"title":           incident.Title,
		"priority":        incident.Priority,
		"status":          incident.Status,
		"recipient_count": len(recipients),
	})
	if err != nil {
		n.logger.Error("notification envelope failed",
			zap.String("incident_id", incident.ID), zap.Error(err))
		return
	}
	n.bus.Publish(ctx, env)
}

func templateDataFor(event string, incident incidents.Incident, recipientCount int) TemplateData {
	reportedAt := incident.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = incident.CreatedAt
	}
	location := ""
	if incident.Latitude != 0 || incident.Longitude != 0 {
		location = fmt.Sprintf("%.5f, %.5f", incident.Latitude, incident.Longitude)
	}
	return TemplateData{
		Number:         incident.Number,
		Title:          incident.Title,
		Priority:       incident.Priority,
		Status:         string(incident.Status),
		Location:       location,
		ReportedAt:     reportedAt.UTC().Format(time.RFC3339),
		Notes:          incident.Notes,
		RecipientCount: recipientCount,
		Event:          event,
		EventLabel:     eventLabel(event),
	}
}

func eventLabel(event string) string {
	switch event {
	case "verified":
		return "Verified"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func (n *Notifier) shouldSend(incidentID, event, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(incidentID, event)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(incidentID, event, content string) {
	if n == nil {
		return
	}
	key := notificationKey(incidentID, event)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(incidentID, event string) string {
	return incidentID + "|" + event
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
