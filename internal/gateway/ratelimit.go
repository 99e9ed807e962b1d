package gateway

import "time"

// Budget caps one event kind for one connection.
type Budget struct {
	Limit  int
	Window time.Duration
}

// Budgets maps event kinds to their per-connection budgets.
type Budgets map[EventKind]Budget

// DefaultBudgets returns the stock per-connection budgets.
func DefaultBudgets() Budgets {
	return Budgets{
		KindLocationUpdate: {Limit: 30, Window: time.Minute},
		KindStatusUpdate:   {Limit: 10, Window: time.Minute},
		KindMarkerClicked:  {Limit: 60, Window: time.Minute},
		KindBroadcastSend:  {Limit: 5, Window: time.Minute},
	}
}

// slidingWindow tracks event timestamps for one (connection, kind)
// pair. It is owned by the session and never shared across
// connections, so no locking is needed.
type slidingWindow struct {
	budget Budget
	stamps []time.Time
}

func newSlidingWindow(budget Budget) *slidingWindow {
	return &slidingWindow{budget: budget}
}

// allow records the event at now when it fits the window, or rejects
// it without side effects when the budget is spent.
func (w *slidingWindow) allow(now time.Time) bool {
	if w.budget.Limit <= 0 || w.budget.Window <= 0 {
		return true
	}
	cutoff := now.Add(-w.budget.Window)
	kept := w.stamps[:0]
	for _, stamp := range w.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	w.stamps = kept
	if len(w.stamps) >= w.budget.Limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}
