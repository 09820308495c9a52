package common

import (
	"github.com/google/btree"
)

const sequenceMapDegree = 32

// sequenceBucket groups the keys sharing one sequence number.
type sequenceBucket[K comparable] struct {
	seq  uint64
	keys []K
}

func lessBucket[K comparable](a, b *sequenceBucket[K]) bool {
	return a.seq < b.seq
}

// SequenceMap is a map whose keys each carry a sequence number (a generation or
// a birth round). It only accepts keys at or above a lower bound, and raising
// that bound evicts everything below it in O(evicted) using an ordered index.
//
// SequenceMap is not safe for concurrent use.
type SequenceMap[K comparable, V any] struct {
	lowest  uint64
	items   map[K]V
	seqs    map[K]uint64
	buckets *btree.BTreeG[*sequenceBucket[K]]
}

// NewSequenceMap creates an empty SequenceMap accepting sequence numbers from
// lowest upwards.
func NewSequenceMap[K comparable, V any](lowest uint64, capacity int) *SequenceMap[K, V] {
	return &SequenceMap[K, V]{
		lowest:  lowest,
		items:   make(map[K]V, capacity),
		seqs:    make(map[K]uint64, capacity),
		buckets: btree.NewG(sequenceMapDegree, lessBucket[K]),
	}
}

// Put stores value under key. It returns false, and stores nothing, when seq is
// below the lowest allowed sequence number.
func (m *SequenceMap[K, V]) Put(key K, seq uint64, value V) bool {
	if seq < m.lowest {
		return false
	}

	if old, ok := m.seqs[key]; ok {
		if old == seq {
			m.items[key] = value
			return true
		}
		m.removeFromBucket(key, old)
	}

	b, found := m.buckets.Get(&sequenceBucket[K]{seq: seq})
	if !found {
		b = &sequenceBucket[K]{seq: seq}
		m.buckets.ReplaceOrInsert(b)
	}
	b.keys = append(b.keys, key)

	m.items[key] = value
	m.seqs[key] = seq
	return true
}

// Get returns the value stored under key.
func (m *SequenceMap[K, V]) Get(key K) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Contains reports whether key is present.
func (m *SequenceMap[K, V]) Contains(key K) bool {
	_, ok := m.items[key]
	return ok
}

// Remove deletes key if present.
func (m *SequenceMap[K, V]) Remove(key K) {
	seq, ok := m.seqs[key]
	if !ok {
		return
	}
	m.removeFromBucket(key, seq)
	delete(m.items, key)
	delete(m.seqs, key)
}

// LowestAllowed returns the current lower bound.
func (m *SequenceMap[K, V]) LowestAllowed() uint64 {
	return m.lowest
}

// ShiftWindow raises the lower bound and evicts every key below it, returning
// the evicted keys in ascending sequence order. A bound lower than or equal to
// the current one changes nothing.
func (m *SequenceMap[K, V]) ShiftWindow(lowest uint64) []K {
	if lowest <= m.lowest {
		return nil
	}
	m.lowest = lowest

	var evicted []K
	for {
		b, ok := m.buckets.Min()
		if !ok || b.seq >= lowest {
			break
		}
		m.buckets.DeleteMin()
		for _, k := range b.keys {
			delete(m.items, k)
			delete(m.seqs, k)
		}
		evicted = append(evicted, b.keys...)
	}
	return evicted
}

// Ascend calls fn for every entry in ascending sequence order until fn
// returns false. Keys sharing a sequence number are visited in insertion
// order.
func (m *SequenceMap[K, V]) Ascend(fn func(key K, seq uint64, value V) bool) {
	m.buckets.Ascend(func(b *sequenceBucket[K]) bool {
		for _, k := range b.keys {
			if !fn(k, b.seq, m.items[k]) {
				return false
			}
		}
		return true
	})
}

// Size returns the number of entries.
func (m *SequenceMap[K, V]) Size() int {
	return len(m.items)
}

// Clear removes every entry and resets the lower bound.
func (m *SequenceMap[K, V]) Clear(lowest uint64) {
	m.lowest = lowest
	m.items = make(map[K]V, len(m.items))
	m.seqs = make(map[K]uint64, len(m.seqs))
	m.buckets.Clear(false)
}

func (m *SequenceMap[K, V]) removeFromBucket(key K, seq uint64) {
	b, found := m.buckets.Get(&sequenceBucket[K]{seq: seq})
	if !found {
		return
	}
	for i, k := range b.keys {
		if k == key {
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			break
		}
	}
	if len(b.keys) == 0 {
		m.buckets.Delete(b)
	}
}
