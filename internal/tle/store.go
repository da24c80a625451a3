package tle

import (
	"sync/atomic"
	"time"
)

// snapshot pairs a dataset with its NORAD index. Immutable after Set.
type snapshot struct {
	ds    *Dataset
	index map[int]int
}

// Store provides thread-safe, read-only access to the current object catalog.
type Store struct {
	current atomic.Pointer[snapshot]
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	if snap := s.current.Load(); snap != nil {
		return snap.ds
	}
	return nil
}

// Set atomically replaces the current dataset. Later duplicates of a NORAD
// ID win, so a custom-assets file merged after the public catalog overrides it.
func (s *Store) Set(ds *Dataset) {
	index := make(map[int]int, len(ds.Objects))
	for i, o := range ds.Objects {
		index[o.NORADID] = i
	}
	s.current.Store(&snapshot{ds: ds, index: index})
}

// Lookup returns the object with the given NORAD ID.
func (s *Store) Lookup(id int) (TrackedObject, bool) {
	snap := s.current.Load()
	if snap == nil {
		return TrackedObject{}, false
	}
	i, ok := snap.index[id]
	if !ok {
		return TrackedObject{}, false
	}
	return snap.ds.Objects[i], true
}

// Objects returns one object per NORAD ID from the current dataset.
func (s *Store) Objects() []TrackedObject {
	snap := s.current.Load()
	if snap == nil {
		return nil
	}
	out := make([]TrackedObject, 0, len(snap.index))
	for i, o := range snap.ds.Objects {
		if snap.index[o.NORADID] == i {
			out = append(out, o)
		}
	}
	return out
}

// UserDefinedIDs returns the NORAD IDs of user-defined assets.
func (s *Store) UserDefinedIDs() []int {
	var ids []int
	for _, o := range s.Objects() {
		if o.UserDefined {
			ids = append(ids, o.NORADID)
		}
	}
	return ids
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.Get()
	if ds == nil {
		return -1
	}
	return time.Since(ds.LoadedAt).Seconds()
}

// Len returns the number of distinct objects in the current dataset.
func (s *Store) Len() int {
	snap := s.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.index)
}
