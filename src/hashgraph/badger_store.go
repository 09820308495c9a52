package hashgraph

import (
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	eventPrefix     = "event"
	topoPrefix      = "topo"
	consensusPrefix = "cons"
	roundPrefix     = "round"
	windowKey       = "window"
	topoCountKey    = "topo_count"
	consCountKey    = "cons_count"
	lastRoundKey    = "last_round"
)

// BadgerStore writes everything through to a Badger database and keeps the
// recent items in an InmemStore cache. If maintenanceMode is activated, data
// is not written to the database, only to the caches.
type BadgerStore struct {
	inmemStore      *InmemStore
	db              *badger.DB
	path            string
	maintenanceMode bool

	eventCount     int
	consensusCount uint64
	lastRound      int
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path. Counters are read back from an existing database so that
// Bootstrap can replay it.
func NewBadgerStore(cacheSize int, path string, maintenanceMode bool, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore:      NewInmemStore(cacheSize),
		db:              handle,
		path:            path,
		maintenanceMode: maintenanceMode,
		lastRound:       -1,
	}

	if err := store.loadCounters(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func eventKey(hash string) []byte {
	return []byte(fmt.Sprintf("%s_%s", eventPrefix, hash))
}

func topologicalEventKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", topoPrefix, index))
}

func consensusEventKey(index uint64) []byte {
	return []byte(fmt.Sprintf("%s_%09d", consensusPrefix, index))
}

func roundKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", roundPrefix, index))
}

/*******************************************************************************
Store interface
*******************************************************************************/

// CacheSize returns the size of the inmem caches.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// SetEvent implements the Store interface.
func (s *BadgerStore) SetEvent(ev *event.Event) error {
	hash := ev.Hex()
	if s.inmemStore.eventCache.Contains(hash) {
		return common.NewStoreErr("Event", common.KeyAlreadyExists, hash)
	}
	if !s.maintenanceMode {
		if err := s.dbSetEvent(ev, s.eventCount); err != nil {
			return err
		}
	}
	s.inmemStore.eventCache.Add(hash, ev)
	s.eventCount++
	return nil
}

// GetEvent implements the Store interface.
func (s *BadgerStore) GetEvent(hash string) (*event.Event, error) {
	if ev, err := s.inmemStore.GetEvent(hash); err == nil {
		return ev, nil
	}
	ev, err := s.dbGetEvent(hash)
	return ev, mapError(err, "Event", hash)
}

// TopologicalEvents implements the Store interface.
func (s *BadgerStore) TopologicalEvents(start int, limit int) ([]*event.Event, error) {
	return s.dbTopologicalEvents(start, limit)
}

// EventCount implements the Store interface.
func (s *BadgerStore) EventCount() int {
	return s.eventCount
}

// AddConsensusEvent implements the Store interface.
func (s *BadgerStore) AddConsensusEvent(ce *ConsensusEvent) error {
	if ce.Index != s.consensusCount {
		return common.NewStoreErr("ConsensusEvent", common.SkippedIndex, strconv.FormatUint(ce.Index, 10))
	}
	if !s.maintenanceMode {
		if err := s.dbAddConsensusEvent(ce); err != nil {
			return err
		}
	}
	s.inmemStore.consensusCache.Add(ce.Index, ce)
	s.consensusCount++
	return nil
}

// GetConsensusEvent implements the Store interface.
func (s *BadgerStore) GetConsensusEvent(index uint64) (*ConsensusEvent, error) {
	key := strconv.FormatUint(index, 10)
	if index >= s.consensusCount {
		return nil, common.NewStoreErr("ConsensusEvent", common.KeyNotFound, key)
	}
	if res, ok := s.inmemStore.consensusCache.Get(index); ok {
		return res.(*ConsensusEvent), nil
	}
	ce, err := s.dbGetConsensusEvent(index)
	return ce, mapError(err, "ConsensusEvent", key)
}

// ConsensusEventCount implements the Store interface.
func (s *BadgerStore) ConsensusEventCount() uint64 {
	return s.consensusCount
}

// SetRound implements the Store interface.
func (s *BadgerStore) SetRound(r int, ri *RoundInfo) error {
	if !s.maintenanceMode {
		if err := s.dbSetRound(r, ri); err != nil {
			return err
		}
	}
	s.inmemStore.roundCache.Add(r, ri.Copy())
	if r > s.lastRound {
		s.lastRound = r
	}
	return nil
}

// GetRound implements the Store interface.
func (s *BadgerStore) GetRound(r int) (*RoundInfo, error) {
	if ri, err := s.inmemStore.GetRound(r); err == nil {
		return ri, nil
	}
	ri, err := s.dbGetRound(r)
	return ri, mapError(err, "Round", strconv.Itoa(r))
}

// LastRound implements the Store interface.
func (s *BadgerStore) LastRound() int {
	return s.lastRound
}

// SetWindow implements the Store interface.
func (s *BadgerStore) SetWindow(w event.Window) error {
	if !s.maintenanceMode {
		if err := s.dbSetWindow(w); err != nil {
			return err
		}
	}
	return s.inmemStore.SetWindow(w)
}

// GetWindow implements the Store interface.
func (s *BadgerStore) GetWindow() (event.Window, error) {
	if w, err := s.inmemStore.GetWindow(); err == nil {
		return w, nil
	}
	w, err := s.dbGetWindow()
	if isDBKeyNotFound(err) {
		return w, common.NewStoreErr("Window", common.Empty, "")
	}
	return w, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath returns the path of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) loadCounters() error {
	return s.db.View(func(txn *badger.Txn) error {
		topo, err := getInt(txn, topoCountKey)
		if err != nil {
			return err
		}
		cons, err := getInt(txn, consCountKey)
		if err != nil {
			return err
		}
		last, err := getInt(txn, lastRoundKey)
		if err != nil {
			return err
		}

		s.eventCount = int(topo)
		s.consensusCount = uint64(cons)
		if last > 0 {
			s.lastRound = int(last) - 1
		}
		return nil
	})
}

// getInt returns 0 when the key does not exist.
func getInt(txn *badger.Txn, key string) (int64, error) {
	item, err := txn.Get([]byte(key))
	if isDBKeyNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(string(val), 10, 64)
}

func setInt(tx *badger.Txn, key string, value int64) error {
	return tx.Set([]byte(key), []byte(strconv.FormatInt(value, 10)))
}

func (s *BadgerStore) dbGetEvent(hash string) (*event.Event, error) {
	var eventBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(hash))
		if err != nil {
			return err
		}
		eventBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	ev := new(event.Event)
	if err := ev.Unmarshal(eventBytes); err != nil {
		return nil, err
	}

	return ev, nil
}

func (s *BadgerStore) dbSetEvent(ev *event.Event, topoIndex int) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	hash := ev.Hex()
	val, err := ev.Marshal()
	if err != nil {
		return err
	}

	//insert [event_hash] => [event bytes]
	if err := tx.Set(eventKey(hash), val); err != nil {
		return err
	}

	//insert [topo_index] => [event hash]
	if err := tx.Set(topologicalEventKey(topoIndex), []byte(hash)); err != nil {
		return err
	}

	if err := setInt(tx, topoCountKey, int64(topoIndex+1)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbTopologicalEvents(start int, limit int) ([]*event.Event, error) {
	res := []*event.Event{}
	err := s.db.View(func(txn *badger.Txn) error {
		for t := start; t < s.eventCount && len(res) < limit; t++ {
			item, err := txn.Get(topologicalEventKey(t))
			if err != nil {
				return err
			}
			hash, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			eventItem, err := txn.Get(eventKey(string(hash)))
			if err != nil {
				return err
			}
			eventBytes, err := eventItem.ValueCopy(nil)
			if err != nil {
				return err
			}

			ev := new(event.Event)
			if err := ev.Unmarshal(eventBytes); err != nil {
				return err
			}
			res = append(res, ev)
		}
		return nil
	})

	return res, err
}

func (s *BadgerStore) dbAddConsensusEvent(ce *ConsensusEvent) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := ce.Marshal()
	if err != nil {
		return err
	}

	//insert [cons_index] => [consensus event bytes]
	if err := tx.Set(consensusEventKey(ce.Index), val); err != nil {
		return err
	}

	if err := setInt(tx, consCountKey, int64(ce.Index+1)); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetConsensusEvent(index uint64) (*ConsensusEvent, error) {
	var ceBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(consensusEventKey(index))
		if err != nil {
			return err
		}
		ceBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	ce := new(ConsensusEvent)
	if err := ce.Unmarshal(ceBytes); err != nil {
		return nil, err
	}

	return ce, nil
}

func (s *BadgerStore) dbGetRound(index int) (*RoundInfo, error) {
	var roundBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roundKey(index))
		if err != nil {
			return err
		}
		roundBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return nil, err
	}

	roundInfo := NewRoundInfo()
	if err := roundInfo.Unmarshal(roundBytes); err != nil {
		return nil, err
	}

	return roundInfo, nil
}

func (s *BadgerStore) dbSetRound(index int, round *RoundInfo) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	val, err := round.Marshal()
	if err != nil {
		return err
	}

	//insert [round_index] => [round bytes]
	if err := tx.Set(roundKey(index), val); err != nil {
		return err
	}

	if index > s.lastRound {
		//stored off by one so that 0 means no round
		if err := setInt(tx, lastRoundKey, int64(index+1)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *BadgerStore) dbSetWindow(w event.Window) error {
	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	var val []byte
	enc := codec.NewEncoderBytes(&val, jsonHandle())
	if err := enc.Encode(w); err != nil {
		return err
	}

	if err := tx.Set([]byte(windowKey), val); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *BadgerStore) dbGetWindow() (event.Window, error) {
	var w event.Window
	var windowBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(windowKey))
		if err != nil {
			return err
		}
		windowBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		return w, err
	}

	dec := codec.NewDecoderBytes(windowBytes, jsonHandle())
	err = dec.Decode(&w)
	return w, err
}

/*******************************************************************************
Helpers
*******************************************************************************/

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return common.NewStoreErr(name, common.KeyNotFound, key)
		}
	}
	return err
}
