package incidents

import (
	"errors"
	"testing"
	"time"
)

var allStatuses = []Status{
	StatusPendingVerification, StatusVerified, StatusSpam, StatusReported,
	StatusAcknowledged, StatusDispatched, StatusResponding, StatusArrived,
	StatusInProgress, StatusPendingResolve, StatusResolved, StatusClosed,
	StatusCancelled,
}

func TestTransitionTableIsAuthoritative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, from := range allStatuses {
		allowed := make(map[Status]bool)
		for _, to := range NextStatuses(from) {
			allowed[to] = true
		}
		for _, to := range allStatuses {
			incident := Incident{ID: "inc-1", Status: from}
			updated, err := Transition(incident, to, "", now)
			if allowed[to] {
				if err != nil {
					t.Errorf("%s -> %s: unexpected error %v", from, to, err)
					continue
				}
				if updated.Status != to {
					t.Errorf("%s -> %s: status not applied", from, to)
				}
			} else {
				if err == nil {
					t.Errorf("%s -> %s: expected rejection", from, to)
					continue
				}
				var invalid *InvalidTransitionError
				if !errors.As(err, &invalid) {
					t.Errorf("%s -> %s: expected InvalidTransitionError, got %v", from, to, err)
				}
			}
		}
	}
}

func TestTransitionStampsOnlyDestinationTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	incident := Incident{ID: "inc-1", Status: StatusPendingVerification}

	updated, err := Transition(incident, StatusVerified, "checked by operator", now)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !updated.VerifiedAt.Equal(now) {
		t.Fatal("verified_at not stamped")
	}
	if !updated.RespondingAt.IsZero() || !updated.ResolvedAt.IsZero() || !updated.ClosedAt.IsZero() {
		t.Fatal("stamped a phase that was not reached")
	}
	if updated.Notes != "checked by operator" {
		t.Fatal("notes not applied")
	}
}

func TestRejectedTransitionLeavesInputUntouched(t *testing.T) {
	now := time.Now().UTC()
	incident := Incident{ID: "inc-1", Status: StatusResolved, ResolvedAt: now}
	if _, err := Transition(incident, StatusResponding, "", now); err == nil {
		t.Fatal("expected rejection")
	}
	if incident.Status != StatusResolved || incident.RespondingAt != (time.Time{}) {
		t.Fatal("input incident mutated by rejected transition")
	}
}

func TestReopenRefreshesReportStamp(t *testing.T) {
	reported := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	incident := Incident{ID: "inc-1", Status: StatusClosed, ReportedAt: reported}

	updated, err := Transition(incident, StatusReported, "", now)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !updated.ReportedAt.Equal(now) {
		t.Fatal("reported_at not refreshed on reopen")
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusResolved.Terminal() || !StatusClosed.Terminal() {
		t.Fatal("resolved and closed are terminal")
	}
	if StatusCancelled.Terminal() {
		t.Fatal("cancelled can be reactivated, not terminal for roster reads")
	}
	if StatusPendingVerification.Joinable() || StatusPendingResolve.Joinable() {
		t.Fatal("pending states are not joinable")
	}
	if !StatusVerified.Joinable() || !StatusInProgress.Joinable() {
		t.Fatal("active response states are joinable")
	}
	if !StatusVerified.PreResponse() || StatusResponding.PreResponse() {
		t.Fatal("pre-response set wrong")
	}
}
