package hashgraph

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
)

// InmemStore implements the Store interface with inmemory caches. When the
// caches are full, older items are evicted, so InmemStore cannot replay a
// long history.
type InmemStore struct {
	cacheSize      int
	eventCache     *lru.Cache //hash => Event
	roundCache     *lru.Cache //round number => RoundInfo
	consensusCache *lru.Cache //consensus index => ConsensusEvent
	topo           []string   //hashes of the last admitted events, at most 2*cacheSize
	topoOffset     int        //admission index of topo[0]
	totConsensus   uint64
	lastRound      int
	window         *event.Window
}

// NewInmemStore creates a new InmemStore where all caches are limited by
// cacheSize items.
func NewInmemStore(cacheSize int) *InmemStore {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &InmemStore{
		cacheSize:      cacheSize,
		eventCache:     newCache(cacheSize),
		roundCache:     newCache(cacheSize),
		consensusCache: newCache(cacheSize),
		topo:           []string{},
		lastRound:      -1,
	}
}

func newCache(size int) *lru.Cache {
	c, err := lru.New(size)
	if err != nil {
		// only returned for a non-positive size
		c, _ = lru.New(DefaultCacheSize)
	}
	return c
}

// CacheSize returns the size limit of the caches.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// SetEvent implements the Store interface.
func (s *InmemStore) SetEvent(ev *event.Event) error {
	hash := ev.Hex()
	if s.eventCache.Contains(hash) {
		return common.NewStoreErr("EventCache", common.KeyAlreadyExists, hash)
	}
	s.eventCache.Add(hash, ev)
	s.topo = append(s.topo, hash)
	if len(s.topo) >= 2*s.cacheSize {
		over := len(s.topo) - s.cacheSize
		s.topo = append(make([]string, 0, 2*s.cacheSize), s.topo[over:]...)
		s.topoOffset += over
	}
	return nil
}

// GetEvent implements the Store interface.
func (s *InmemStore) GetEvent(hash string) (*event.Event, error) {
	res, ok := s.eventCache.Get(hash)
	if !ok {
		return nil, common.NewStoreErr("EventCache", common.KeyNotFound, hash)
	}
	return res.(*event.Event), nil
}

// TopologicalEvents implements the Store interface. Events that left the
// topological index or the cache fail with TooLate.
func (s *InmemStore) TopologicalEvents(start int, limit int) ([]*event.Event, error) {
	if start < s.topoOffset {
		return nil, common.NewStoreErr("EventCache", common.TooLate, strconv.Itoa(start))
	}
	res := []*event.Event{}
	for i := start - s.topoOffset; i < len(s.topo) && len(res) < limit; i++ {
		ev, err := s.GetEvent(s.topo[i])
		if err != nil {
			return nil, common.NewStoreErr("EventCache", common.TooLate, strconv.Itoa(s.topoOffset+i))
		}
		res = append(res, ev)
	}
	return res, nil
}

// EventCount implements the Store interface.
func (s *InmemStore) EventCount() int {
	return s.topoOffset + len(s.topo)
}

// AddConsensusEvent implements the Store interface.
func (s *InmemStore) AddConsensusEvent(ce *ConsensusEvent) error {
	if ce.Index != s.totConsensus {
		return common.NewStoreErr("ConsensusCache", common.SkippedIndex, strconv.FormatUint(ce.Index, 10))
	}
	s.consensusCache.Add(ce.Index, ce)
	s.totConsensus++
	return nil
}

// GetConsensusEvent implements the Store interface.
func (s *InmemStore) GetConsensusEvent(index uint64) (*ConsensusEvent, error) {
	key := strconv.FormatUint(index, 10)
	if index >= s.totConsensus {
		return nil, common.NewStoreErr("ConsensusCache", common.KeyNotFound, key)
	}
	res, ok := s.consensusCache.Get(index)
	if !ok {
		return nil, common.NewStoreErr("ConsensusCache", common.TooLate, key)
	}
	return res.(*ConsensusEvent), nil
}

// ConsensusEventCount implements the Store interface.
func (s *InmemStore) ConsensusEventCount() uint64 {
	return s.totConsensus
}

// SetRound implements the Store interface. The store keeps a copy of ri.
func (s *InmemStore) SetRound(r int, ri *RoundInfo) error {
	s.roundCache.Add(r, ri.Copy())
	if r > s.lastRound {
		s.lastRound = r
	}
	return nil
}

// GetRound implements the Store interface.
func (s *InmemStore) GetRound(r int) (*RoundInfo, error) {
	res, ok := s.roundCache.Get(r)
	if !ok {
		return nil, common.NewStoreErr("RoundCache", common.KeyNotFound, strconv.Itoa(r))
	}
	return res.(*RoundInfo), nil
}

// LastRound implements the Store interface.
func (s *InmemStore) LastRound() int {
	return s.lastRound
}

// SetWindow implements the Store interface.
func (s *InmemStore) SetWindow(w event.Window) error {
	s.window = &w
	return nil
}

// GetWindow implements the Store interface.
func (s *InmemStore) GetWindow() (event.Window, error) {
	if s.window == nil {
		return event.Window{}, common.NewStoreErr("Window", common.Empty, "")
	}
	return *s.window, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}
