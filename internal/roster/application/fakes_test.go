package application

import (
	"context"
	"sort"
	"sync"
	"time"

	incidents "incident-cloud/internal/incidents/domain"
	personnel "incident-cloud/internal/personnel/domain"
	roster "incident-cloud/internal/roster/domain"
)

// fakeStore emulates the Postgres repositories, including the atomic
// behavior of the unique assignment constraint and the conditional
// primary-election updates.
type fakeStore struct {
	mu          sync.Mutex
	incidents   map[string]incidents.Incident
	assignments map[string]map[string]roster.Assignment
	personnel   map[string]personnel.Personnel
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		incidents:   make(map[string]incidents.Incident),
		assignments: make(map[string]map[string]roster.Assignment),
		personnel:   make(map[string]personnel.Personnel),
	}
}

func (f *fakeStore) putIncident(inc incidents.Incident) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.incidents[inc.ID] = inc
}

func (f *fakeStore) putPersonnel(p personnel.Personnel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personnel[p.ID] = p
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*incidents.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[id]
	if !ok {
		return nil, incidents.ErrNotFound
	}
	out := inc
	return &out, nil
}

func (f *fakeStore) UpdateStatusCAS(_ context.Context, updated *incidents.Incident, from incidents.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.incidents[updated.ID]
	if !ok {
		return incidents.ErrNotFound
	}
	if current.Status != from {
		return incidents.ErrConflict
	}
	next := *updated
	next.PrimaryResponderID = current.PrimaryResponderID
	f.incidents[updated.ID] = next
	return nil
}

func (f *fakeStore) SetPrimaryIfNone(_ context.Context, incidentID, personnelID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[incidentID]
	if !ok {
		return false, incidents.ErrNotFound
	}
	if inc.PrimaryResponderID != "" {
		return false, nil
	}
	inc.PrimaryResponderID = personnelID
	f.incidents[incidentID] = inc
	return true, nil
}

func (f *fakeStore) ClearPrimary(_ context.Context, incidentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[incidentID]
	if !ok {
		return incidents.ErrNotFound
	}
	inc.PrimaryResponderID = ""
	f.incidents[incidentID] = inc
	return nil
}

func (f *fakeStore) ReassignPrimaryAfterLeave(_ context.Context, incidentID, leavingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[incidentID]
	if !ok {
		return incidents.ErrNotFound
	}
	if inc.PrimaryResponderID != leavingID {
		return nil
	}
	remaining := make([]roster.Assignment, 0, len(f.assignments[incidentID]))
	for _, a := range f.assignments[incidentID] {
		remaining = append(remaining, a)
	}
	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].AssignedAt.Equal(remaining[j].AssignedAt) {
			return remaining[i].PersonnelID < remaining[j].PersonnelID
		}
		return remaining[i].AssignedAt.Before(remaining[j].AssignedAt)
	})
	if len(remaining) == 0 {
		inc.PrimaryResponderID = ""
	} else {
		inc.PrimaryResponderID = remaining[0].PersonnelID
	}
	f.incidents[incidentID] = inc
	return nil
}

func (f *fakeStore) Insert(_ context.Context, assignment roster.Assignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byIncident := f.assignments[assignment.IncidentID]
	if byIncident == nil {
		byIncident = make(map[string]roster.Assignment)
		f.assignments[assignment.IncidentID] = byIncident
	}
	if _, exists := byIncident[assignment.PersonnelID]; exists {
		return roster.ErrAlreadyAssigned
	}
	byIncident[assignment.PersonnelID] = assignment
	return nil
}

func (f *fakeStore) Delete(_ context.Context, incidentID, personnelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	byIncident := f.assignments[incidentID]
	if _, exists := byIncident[personnelID]; !exists {
		return roster.ErrNotAssigned
	}
	delete(byIncident, personnelID)
	return nil
}

func (f *fakeStore) DeleteAllForIncident(_ context.Context, incidentID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id := range f.assignments[incidentID] {
		ids = append(ids, id)
	}
	delete(f.assignments, incidentID)
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) Get(_ context.Context, incidentID, personnelID string) (*roster.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[incidentID][personnelID]
	if !ok {
		return nil, roster.ErrNotAssigned
	}
	out := a
	return &out, nil
}

func (f *fakeStore) ListByIncident(_ context.Context, incidentID string) ([]roster.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]roster.Assignment, 0, len(f.assignments[incidentID]))
	for _, a := range f.assignments[incidentID] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].PersonnelID < out[j].PersonnelID
		}
		return out[i].AssignedAt.Before(out[j].AssignedAt)
	})
	return out, nil
}

func (f *fakeStore) Count(_ context.Context, incidentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assignments[incidentID]), nil
}

func (f *fakeStore) MarkArrived(_ context.Context, incidentID, personnelID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[incidentID][personnelID]
	if !ok {
		return roster.ErrNotAssigned
	}
	a.ArrivedAt = at
	f.assignments[incidentID][personnelID] = a
	return nil
}

func (f *fakeStore) GetPersonnel(_ context.Context, id string) (*personnel.Personnel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.personnel[id]
	if !ok {
		return nil, incidents.ErrNotFound
	}
	out := p
	return &out, nil
}

func (f *fakeStore) UpdateDutyStatus(_ context.Context, id string, status personnel.DutyStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.personnel[id]
	if !ok {
		return incidents.ErrNotFound
	}
	p.DutyStatus = status
	f.personnel[id] = p
	return nil
}

// personnelView adapts fakeStore to the PersonnelStore interface, since
// GetByID is taken by the incident methods.
type personnelView struct{ store *fakeStore }

func (v personnelView) GetByID(ctx context.Context, id string) (*personnel.Personnel, error) {
	return v.store.GetPersonnel(ctx, id)
}

func (v personnelView) UpdateDutyStatus(ctx context.Context, id string, status personnel.DutyStatus) error {
	return v.store.UpdateDutyStatus(ctx, id, status)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}
