package incidents

import "time"

// transitions is the full lifecycle edge table. A status change is legal
// iff the target appears in the source's edge set.
var transitions = map[Status][]Status{
	StatusPendingVerification: {StatusVerified, StatusSpam},
	StatusVerified:            {StatusAcknowledged, StatusResponding, StatusResolved, StatusCancelled},
	StatusReported:            {StatusAcknowledged, StatusInProgress, StatusResolved, StatusCancelled},
	StatusAcknowledged:        {StatusDispatched, StatusResponding, StatusInProgress, StatusResolved, StatusCancelled},
	StatusDispatched:          {StatusResponding, StatusInProgress, StatusResolved, StatusCancelled},
	StatusResponding:          {StatusArrived, StatusResolved, StatusCancelled},
	StatusArrived:             {StatusPendingResolve, StatusResolved, StatusCancelled},
	StatusInProgress:          {StatusPendingResolve, StatusResolved, StatusCancelled},
	StatusPendingResolve:      {StatusResolved, StatusCancelled},
	StatusResolved:            {StatusClosed},
	StatusClosed:              {StatusReported},
	StatusCancelled:           {StatusReported},
	StatusSpam:                {StatusReported},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the legal targets from a status.
func NextStatuses(from Status) []Status {
	edges := transitions[from]
	out := make([]Status, len(edges))
	copy(out, edges)
	return out
}

// Transition validates and applies a status change, stamping only the
// destination phase timestamp. The input incident is not mutated; a
// rejected transition returns the zero Incident and an error.
func Transition(incident Incident, target Status, notes string, now time.Time) (Incident, error) {
	if _, ok := transitions[target]; !ok {
		return Incident{}, &InvalidTransitionError{From: incident.Status, To: target}
	}
	if !CanTransition(incident.Status, target) {
		return Incident{}, &InvalidTransitionError{From: incident.Status, To: target}
	}

	updated := incident
	updated.Status = target
	updated.UpdatedAt = now
	if notes != "" {
		updated.Notes = notes
	}
	stampPhase(&updated, target, now)
	return updated, nil
}

func stampPhase(incident *Incident, target Status, now time.Time) {
	switch target {
	case StatusVerified:
		incident.VerifiedAt = now
	case StatusAcknowledged:
		incident.AcknowledgedAt = now
	case StatusDispatched:
		incident.DispatchedAt = now
	case StatusResponding:
		incident.RespondingAt = now
	case StatusArrived:
		incident.ArrivedAt = now
	case StatusInProgress:
		incident.InProgressAt = now
	case StatusPendingResolve:
		incident.PendingResolveAt = now
	case StatusResolved:
		incident.ResolvedAt = now
	case StatusClosed:
		incident.ClosedAt = now
	case StatusCancelled:
		incident.CancelledAt = now
	case StatusSpam:
		incident.SpamAt = now
	case StatusReported:
		// Reopen and reactivate land here; refresh the report stamp.
		incident.ReportedAt = now
	}
}
