// Package memory implements an in-process store. It backs tests and the
// "memory" store mode, where nothing survives the process.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
)

// MemoryStorage is a mutex-guarded map store.
type MemoryStorage struct {
	mu      sync.RWMutex
	plans   map[string]*types.FlightPlan
	folders map[string]*types.Folder
	events  []types.Event
	nextEvt int64
	closed  bool

	now func() time.Time
}

var _ storage.Storage = (*MemoryStorage)(nil)

// New returns an empty store.
func New() *MemoryStorage {
	return &MemoryStorage{
		plans:   make(map[string]*types.FlightPlan),
		folders: make(map[string]*types.Folder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func clonePlan(p *types.FlightPlan) *types.FlightPlan {
	c := *p
	c.AuthorizationDocument = p.AuthorizationDocument.Clone()
	if p.ScheduledAt != nil {
		t := *p.ScheduledAt
		c.ScheduledAt = &t
	}
	for _, ptr := range []**string{&c.AirspaceContext, &c.TrajectoryRef, &c.FolderID} {
		if *ptr != nil {
			s := **ptr
			*ptr = &s
		}
	}
	if p.AuthorizationMessage != nil {
		c.AuthorizationMessage = append(json.RawMessage(nil), p.AuthorizationMessage...)
	}
	return &c
}

func (m *MemoryStorage) checkOpen() error {
	if m.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

func (m *MemoryStorage) recordLocked(events ...types.Event) {
	now := m.now()
	for _, e := range events {
		m.nextEvt++
		e.ID = m.nextEvt
		e.CreatedAt = now
		m.events = append(m.events, e)
	}
}

// CreatePlan stores a new plan, assigning an ID and timestamps when unset.
func (m *MemoryStorage) CreatePlan(ctx context.Context, plan *types.FlightPlan) error {
	plan.SetDefaults()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.ScheduledAt != nil {
		t := plan.ScheduledAt.UTC()
		plan.ScheduledAt = &t
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, exists := m.plans[plan.ID]; exists {
		return fmt.Errorf("plan %s already exists", plan.ID)
	}
	if plan.FolderID != nil {
		if _, ok := m.folders[*plan.FolderID]; !ok {
			return fmt.Errorf("folder %s: %w", *plan.FolderID, storage.ErrNotFound)
		}
	}
	now := m.now()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	m.plans[plan.ID] = clonePlan(plan)
	m.recordLocked(types.Event{PlanID: plan.ID, EventType: types.EventCreated})
	return nil
}

// GetPlan returns a copy of the plan with id.
func (m *MemoryStorage) GetPlan(ctx context.Context, id string) (*types.FlightPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
	}
	return clonePlan(p), nil
}

// ListPlans returns matching plans ordered by creation time.
func (m *MemoryStorage) ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.FlightPlan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	out := make([]*types.FlightPlan, 0, len(m.plans))
	for _, p := range m.plans {
		if filter.Matches(p) {
			out = append(out, clonePlan(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// PatchPlan applies upd after checking the lifecycle rules.
func (m *MemoryStorage) PatchPlan(ctx context.Context, id string, upd types.PlanUpdate) (*types.FlightPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
	}
	if upd.FolderID != nil {
		if _, ok := m.folders[*upd.FolderID]; !ok {
			return nil, fmt.Errorf("folder %s: %w", *upd.FolderID, storage.ErrNotFound)
		}
	}
	next, err := storage.CheckPatch(cur, upd)
	if err != nil {
		return nil, err
	}
	return m.commitLocked(cur, &next), nil
}

func (m *MemoryStorage) commitLocked(cur, next *types.FlightPlan, extra ...types.Event) *types.FlightPlan {
	next.UpdatedAt = m.now()
	m.recordLocked(append(storage.PatchEvents(cur, next), extra...)...)
	m.plans[next.ID] = clonePlan(next)
	return clonePlan(next)
}

// ResetPlan returns the plan to unprocessed, clearing everything the
// workflow produced.
func (m *MemoryStorage) ResetPlan(ctx context.Context, id string) (*types.FlightPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
	}
	next := storage.ResetUpdate().Apply(*cur)
	return m.commitLocked(cur, &next, types.Event{PlanID: id, EventType: types.EventReset}), nil
}

// DeletePlan removes a plan and its history.
func (m *MemoryStorage) DeletePlan(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.plans[id]; !ok {
		return fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
	}
	m.deletePlanLocked(id)
	return nil
}

func (m *MemoryStorage) deletePlanLocked(id string) {
	delete(m.plans, id)
	kept := m.events[:0]
	for _, e := range m.events {
		if e.PlanID != id {
			kept = append(kept, e)
		}
	}
	m.events = kept
}

// ApplyDecision records a FAS decision on a pending plan.
func (m *MemoryStorage) ApplyDecision(ctx context.Context, id string, status types.AuthorizationStatus, message json.RawMessage) (*types.FlightPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
	}
	next, err := storage.CheckDecision(cur, status, message)
	if err != nil {
		return nil, err
	}
	return m.commitLocked(cur, &next), nil
}

// CreateFolder stores a new folder.
func (m *MemoryStorage) CreateFolder(ctx context.Context, folder *types.Folder) error {
	if folder.Name == "" {
		return fmt.Errorf("folder name is required")
	}
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	if _, exists := m.folders[folder.ID]; exists {
		return fmt.Errorf("folder %s already exists", folder.ID)
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = m.now()
	}
	f := *folder
	m.folders[f.ID] = &f
	return nil
}

// GetFolder returns the folder with id.
func (m *MemoryStorage) GetFolder(ctx context.Context, id string) (*types.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %s: %w", id, storage.ErrNotFound)
	}
	c := *f
	return &c, nil
}

// ListFolders returns all folders ordered by name.
func (m *MemoryStorage) ListFolders(ctx context.Context) ([]*types.Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.Folder, 0, len(m.folders))
	for _, f := range m.folders {
		c := *f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// RenameFolder changes a folder's name.
func (m *MemoryStorage) RenameFolder(ctx context.Context, id, name string) error {
	if name == "" {
		return fmt.Errorf("folder name is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.folders[id]
	if !ok {
		return fmt.Errorf("folder %s: %w", id, storage.ErrNotFound)
	}
	f.Name = name
	return nil
}

// DeleteFolder removes a folder and every plan in it.
func (m *MemoryStorage) DeleteFolder(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.folders[id]; !ok {
		return 0, fmt.Errorf("folder %s: %w", id, storage.ErrNotFound)
	}
	n := 0
	for pid, p := range m.plans {
		if p.FolderID != nil && *p.FolderID == id {
			m.deletePlanLocked(pid)
			n++
		}
	}
	delete(m.folders, id)
	return n, nil
}

// GetEvents returns a plan's history, newest first.
func (m *MemoryStorage) GetEvents(ctx context.Context, planID string, limit int) ([]*types.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*types.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].PlanID != planID {
			continue
		}
		e := m.events[i]
		out = append(out, &e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close marks the store closed. Reads keep working so that in-flight
// operations finish cleanly.
func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
