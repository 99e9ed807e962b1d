package notify

import (
	"context"

	incidentapp "incident-cloud/internal/incidents/application"
	incidents "incident-cloud/internal/incidents/domain"
)

// MultiNotifier fans incident notifications out to several notifiers.
type MultiNotifier struct {
	notifiers []incidentapp.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...incidentapp.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// IncidentVerified forwards the event to all notifiers.
func (m *MultiNotifier) IncidentVerified(ctx context.Context, incident incidents.Incident) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.IncidentVerified(ctx, incident)
		}
	}
}
