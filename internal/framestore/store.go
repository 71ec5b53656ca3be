// Package framestore keeps the most recent processed frames addressable by
// sequence number. Eviction is strictly by insertion order.
package framestore

import (
	"container/list"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/framecast/internal/frame"
	"github.com/zsiec/framecast/internal/metrics"
)

// DefaultCapacity holds ten seconds of 25 fps video.
const DefaultCapacity = 250

// CapacityFor derives a capacity from a frame rate and a retention window.
func CapacityFor(fps float64, retention time.Duration) int {
	if fps <= 0 || retention <= 0 {
		return DefaultCapacity
	}
	n := int(math.Ceil(fps * retention.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}

// Stats is a point-in-time view of the store.
type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	OldestSeq uint64 `json:"oldest_seq"`
	NewestSeq uint64 `json:"newest_seq"`
	Puts      uint64 `json:"puts"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Store is a bounded map from sequence number to frame record. It is safe for
// one writer and any number of concurrent readers.
type Store struct {
	capacity int

	mu    sync.RWMutex
	order *list.List // of uint64, oldest at front
	index map[uint64]*list.Element
	recs  map[uint64]*frame.Record

	puts      uint64
	evictions uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New creates a store holding at most capacity records. A non-positive
// capacity selects DefaultCapacity.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[uint64]*list.Element, capacity+1),
		recs:     make(map[uint64]*frame.Record, capacity+1),
	}
}

// Put inserts rec. If that pushes the store over capacity the single oldest
// entry is removed and returned. Re-putting a known sequence replaces the
// record in place without moving it in the eviction order.
func (s *Store) Put(rec *frame.Record) (evicted *frame.Record) {
	if rec == nil {
		return nil
	}

	s.mu.Lock()
	s.puts++
	if _, ok := s.index[rec.Seq]; ok {
		s.recs[rec.Seq] = rec
		s.mu.Unlock()
		return nil
	}

	s.index[rec.Seq] = s.order.PushBack(rec.Seq)
	s.recs[rec.Seq] = rec

	if s.order.Len() > s.capacity {
		front := s.order.Front()
		seq := front.Value.(uint64)
		s.order.Remove(front)
		evicted = s.recs[seq]
		delete(s.index, seq)
		delete(s.recs, seq)
		s.evictions++
	}
	size := s.order.Len()
	s.mu.Unlock()

	metrics.SetCacheFrames(size)
	if evicted != nil {
		metrics.IncrementCacheEvictions()
	}
	return evicted
}

// Get returns the record for seq, if still held.
func (s *Store) Get(seq uint64) (*frame.Record, bool) {
	s.mu.RLock()
	rec, ok := s.recs[seq]
	s.mu.RUnlock()

	if ok {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}

	metrics.RecordCacheLookup(ok)
	return rec, ok
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Capacity returns the maximum number of records held.
func (s *Store) Capacity() int {
	return s.capacity
}

// Stats returns counters and the current sequence window.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Size:      s.order.Len(),
		Capacity:  s.capacity,
		Puts:      s.puts,
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Evictions: s.evictions,
	}
	if front := s.order.Front(); front != nil {
		st.OldestSeq = front.Value.(uint64)
		st.NewestSeq = s.order.Back().Value.(uint64)
	}
	return st
}
