package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// memState is the data behind a MemoryStore.
type memState struct {
	rows   map[int64]Event
	keys   map[Key]int64
	nextID int64
}

func newMemState() *memState {
	return &memState{rows: make(map[int64]Event), keys: make(map[Key]int64), nextID: 1}
}

func (s *memState) clone() *memState {
	c := &memState{
		rows:   make(map[int64]Event, len(s.rows)),
		keys:   make(map[Key]int64, len(s.keys)),
		nextID: s.nextID,
	}
	for id, e := range s.rows {
		c.rows[id] = e
	}
	for k, id := range s.keys {
		c.keys[k] = id
	}
	return c
}

func (s *memState) upsert(e Event) Event {
	k := e.Key()
	if id, ok := s.keys[k]; ok {
		merged := Merge(s.rows[id], e)
		s.rows[id] = merged
		return merged
	}
	e.ID = s.nextID
	e.TCA = k.TCA
	s.nextID++
	s.rows[e.ID] = e
	s.keys[k] = e.ID
	return e
}

func (s *memState) list(f Filter) []Event {
	out := make([]Event, 0)
	for _, e := range s.rows {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out
}

func (s *memState) deleteLocal(sw Sweep) int64 {
	keepSet := make(map[int64]bool, len(sw.Keep))
	for _, id := range sw.Keep {
		keepSet[id] = true
	}
	protectedSet := make(map[int]bool, len(sw.Protected))
	for _, id := range sw.Protected {
		protectedSet[id] = true
	}

	var n int64
	for id, e := range s.rows {
		if e.PrimaryID != sw.PrimaryID || e.Provenance != ProvenanceLocal || !sw.InSpan(e.TCA) {
			continue
		}
		if keepSet[id] || protectedSet[e.SecondaryID] {
			continue
		}
		delete(s.rows, id)
		delete(s.keys, e.Key())
		n++
	}
	return n
}

func (s *memState) setManeuver(id int64, status ManeuverStatus, sol *ManeuverSolution, at time.Time) error {
	e, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	e.ManeuverStatus = status
	if sol != nil {
		cp := *sol
		e.Maneuver = &cp
	} else {
		e.Maneuver = nil
	}
	e.UpdatedAt = at
	s.rows[id] = e
	return nil
}

// MemoryStore is an in-process Store. Transactions work on a copy that
// replaces the live state on commit.
type MemoryStore struct {
	mu     sync.Mutex
	state  *memState
	closed bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) checkOpen() error {
	if m.closed {
		return fmt.Errorf("%w: store closed", ErrStoreUnavailable)
	}
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, e Event) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return Event{}, err
	}
	return m.state.upsert(e), nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return Event{}, err
	}
	e, ok := m.state.rows[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e, nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return nil, err
	}
	return m.state.list(f), nil
}

func (m *MemoryStore) DeleteLocal(_ context.Context, sw Sweep) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	return m.state.deleteLocal(sw), nil
}

func (m *MemoryStore) SetManeuver(_ context.Context, id int64, status ManeuverStatus, sol *ManeuverSolution, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}
	return m.state.setManeuver(id, status, sol, at)
}

// InTx holds the store lock for the duration of fn.
func (m *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkOpen(); err != nil {
		return err
	}

	tx := &memTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkOpen()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// memTx is the Store handed to an InTx callback. It is confined to that
// callback's goroutine.
type memTx struct {
	state *memState
}

func (t *memTx) Upsert(_ context.Context, e Event) (Event, error) {
	return t.state.upsert(e), nil
}

func (t *memTx) Get(_ context.Context, id int64) (Event, error) {
	e, ok := t.state.rows[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return e, nil
}

func (t *memTx) List(_ context.Context, f Filter) ([]Event, error) {
	return t.state.list(f), nil
}

func (t *memTx) DeleteLocal(_ context.Context, sw Sweep) (int64, error) {
	return t.state.deleteLocal(sw), nil
}

func (t *memTx) SetManeuver(_ context.Context, id int64, status ManeuverStatus, sol *ManeuverSolution, at time.Time) error {
	return t.state.setManeuver(id, status, sol, at)
}

// InTx joins the enclosing transaction.
func (t *memTx) InTx(_ context.Context, fn func(Store) error) error {
	return fn(t)
}

func (t *memTx) Ping(context.Context) error { return nil }

func (t *memTx) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*memTx)(nil)
)
