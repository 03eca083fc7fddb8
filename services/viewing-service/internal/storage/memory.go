package storage

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/conflict"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/events"
	"github.com/md-rashed-zaman/viewings/services/viewing-service/internal/model"
)

// Memory keeps appointments in process. Each agent has a one-slot semaphore
// so writers for one agent queue while other agents proceed.
type Memory struct {
	lockTimeout time.Duration

	mu      sync.RWMutex
	appts   map[string]model.Appointment
	byAgent map[string][]string
	emitted []events.Event

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewMemory(lockTimeout time.Duration) *Memory {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Memory{
		lockTimeout: lockTimeout,
		appts:       map[string]model.Appointment{},
		byAgent:     map[string][]string{},
		locks:       map[string]chan struct{}{},
	}
}

func (m *Memory) agentLock(agentID string) chan struct{} {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[agentID]
	if !ok {
		l = make(chan struct{}, 1)
		m.locks[agentID] = l
	}
	return l
}

func (m *Memory) WithAgent(ctx context.Context, agentID string, fn func(Tx) error) error {
	lock := m.agentLock(agentID)
	acquireCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	select {
	case lock <- struct{}{}:
	case <-acquireCtx.Done():
		return model.Unavailable("acquire agent lock", acquireCtx.Err())
	}
	defer func() { <-lock }()

	tx := &memTx{m: m, agentID: agentID, staged: map[string]model.Appointment{}}
	if err := fn(tx); err != nil {
		return err
	}
	m.commit(tx)
	return nil
}

func (m *Memory) commit(tx *memTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range tx.order {
		a := tx.staged[id]
		if _, exists := m.appts[id]; !exists {
			m.byAgent[a.AgentID] = append(m.byAgent[a.AgentID], id)
		}
		m.appts[id] = a
	}
	m.emitted = append(m.emitted, tx.events...)
}

func (m *Memory) Get(_ context.Context, id string) (model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.appts[id]
	if !ok {
		return model.Appointment{}, model.NotFound("appointment", id)
	}
	return a.Clone(), nil
}

func (m *Memory) ListActiveByAgent(_ context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked(agentID, model.Interval{Start: from, End: to}), nil
}

func (m *Memory) activeLocked(agentID string, rng model.Interval) []model.Appointment {
	var out []model.Appointment
	for _, id := range m.byAgent[agentID] {
		a := m.appts[id]
		if a.Status.Active() && conflict.Overlaps(a.Interval(), rng) {
			out = append(out, a.Clone())
		}
	}
	sortByStart(out)
	return out
}

func (m *Memory) ListByAgent(_ context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, id := range m.byAgent[agentID] {
		a := m.appts[id]
		if !a.ScheduledStart.Before(from) && a.ScheduledStart.Before(to) {
			out = append(out, a.Clone())
		}
	}
	sortByStart(out)
	return out, nil
}

func (m *Memory) ListByStatus(_ context.Context, status model.Status, limit int) ([]model.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.Status == status {
			out = append(out, a.Clone())
		}
	}
	sortByStart(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Emitted returns every event committed so far.
func (m *Memory) Emitted() []events.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.emitted)
}

func sortByStart(in []model.Appointment) {
	slices.SortFunc(in, func(a, b model.Appointment) int {
		if c := a.ScheduledStart.Compare(b.ScheduledStart); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

type memTx struct {
	m       *Memory
	agentID string
	staged  map[string]model.Appointment
	order   []string
	events  []events.Event
}

func (tx *memTx) Get(ctx context.Context, id string) (model.Appointment, error) {
	if a, ok := tx.staged[id]; ok {
		return a.Clone(), nil
	}
	return tx.m.Get(ctx, id)
}

func (tx *memTx) ListActiveByAgent(_ context.Context, agentID string, from, to time.Time) ([]model.Appointment, error) {
	rng := model.Interval{Start: from, End: to}
	tx.m.mu.RLock()
	committed := tx.m.activeLocked(agentID, rng)
	tx.m.mu.RUnlock()

	out := committed[:0]
	for _, a := range committed {
		if _, ok := tx.staged[a.ID]; !ok {
			out = append(out, a)
		}
	}
	for _, id := range tx.order {
		a := tx.staged[id]
		if a.AgentID == agentID && a.Status.Active() && conflict.Overlaps(a.Interval(), rng) {
			out = append(out, a.Clone())
		}
	}
	sortByStart(out)
	return out, nil
}

func (tx *memTx) FindByIdempotencyKey(_ context.Context, agentID, key string) (model.Appointment, bool, error) {
	if key == "" {
		return model.Appointment{}, false, nil
	}
	for _, id := range tx.order {
		if a := tx.staged[id]; a.AgentID == agentID && a.IdempotencyKey == key {
			return a.Clone(), true, nil
		}
	}
	tx.m.mu.RLock()
	defer tx.m.mu.RUnlock()
	for _, id := range tx.m.byAgent[agentID] {
		if a := tx.m.appts[id]; a.IdempotencyKey == key {
			return a.Clone(), true, nil
		}
	}
	return model.Appointment{}, false, nil
}

// checkOverlap mirrors the exclusion constraint of the Postgres schema.
func (tx *memTx) checkOverlap(ctx context.Context, a model.Appointment) error {
	if !a.Status.Active() {
		return nil
	}
	active, err := tx.ListActiveByAgent(ctx, a.AgentID, a.ScheduledStart, a.End())
	if err != nil {
		return err
	}
	if other, hit := conflict.FirstConflict(a.Interval(), active, a.ID); hit {
		return &model.SlotError{Reason: "overlaps an existing appointment", ConflictID: other.ID}
	}
	return nil
}

func (tx *memTx) Insert(ctx context.Context, a model.Appointment) error {
	if a.AgentID != tx.agentID {
		return fmt.Errorf("insert for agent %s inside unit of work for %s", a.AgentID, tx.agentID)
	}
	if _, err := tx.Get(ctx, a.ID); err == nil {
		return fmt.Errorf("appointment %s already exists", a.ID)
	}
	if err := tx.checkOverlap(ctx, a); err != nil {
		return err
	}
	tx.stage(a)
	return nil
}

func (tx *memTx) Update(ctx context.Context, a model.Appointment, expectedVersion int64) error {
	current, err := tx.Get(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.AgentID != tx.agentID || a.AgentID != current.AgentID {
		return fmt.Errorf("update of appointment %s outside its agent's unit of work", a.ID)
	}
	if current.Version != expectedVersion {
		return &model.StaleVersionError{Expected: expectedVersion, Actual: current.Version}
	}
	if err := tx.checkOverlap(ctx, a); err != nil {
		return err
	}
	tx.stage(a)
	return nil
}

func (tx *memTx) stage(a model.Appointment) {
	if _, ok := tx.staged[a.ID]; !ok {
		tx.order = append(tx.order, a.ID)
	}
	tx.staged[a.ID] = a.Clone()
}

func (tx *memTx) Emit(_ context.Context, evts ...events.Event) error {
	tx.events = append(tx.events, evts...)
	return nil
}
