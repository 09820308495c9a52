package hashgraph

import (
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/observer"
	"github.com/mosaicnetworks/swirl/src/tipset"
	"github.com/sirupsen/logrus"
)

const initialArenaCapacity = 256

// bootstrapBatchSize is the number of events read from the store at a time
// during Bootstrap.
const bootstrapBatchSize = 100

// coordinates locate the most recent ancestor of an event by some creator.
type coordinates struct {
	hash       string
	generation uint64
}

// eventMeta is the consensus metadata of an admitted event. It lives next to
// the arena and is evicted with it.
type eventMeta struct {
	round            int
	witness          bool
	roundReceived    int
	topologicalIndex int
	lastAncestors    map[addressbook.NodeID]coordinates
}

// Stats is a snapshot of the internal counters of a Hashgraph.
type Stats struct {
	LastConsensusRound  int
	LastRound           int
	ConsensusEvents     uint64
	UndeterminedEvents  int
	ArenaEvents         int
	TrackedTipsets      int
	PendingRounds       int
	OpenElections       int
	AncientThreshold    uint64
	AncientMode         string
	LastConsensusTimeNs int64
}

// Hashgraph is a DAG of Events. It assigns rounds, decides the fame of
// witnesses, and extracts a consensus order of Events.
type Hashgraph struct {
	Store Store //store of Events, ConsensusEvents, Rounds and the Window

	conf           Config
	book           *addressbook.AddressBook
	tracker        *tipset.Tracker
	observer       observer.Observer
	commitCallback CommitCallback

	arena     *common.SequenceMap[string, *event.Event] //hash => non-ancient Event
	meta      map[string]*eventMeta                     //hash => consensus metadata
	latest    map[addressbook.NodeID]event.Descriptor   //creator => highest admitted event
	rounds    map[int]*RoundInfo                        //round => RoundInfo, non-ancient rounds only
	lastRound int                                       //highest round assigned to an event

	elections     *elections
	pendingRounds *PendingRoundsCache //rounds with witnesses that are not finalized
	undecided     map[int]int         //round => number of candidates with undecided fame

	undeterminedEvents []string //FIFO queue of Events without a round received
	topologicalIndex   int      //counter used to order events in topological order

	window            event.Window
	consensusIndex    uint64 //index of the next consensus event
	lastConsensusTime int64  //UnixNano timestamp of the last consensus event
	replayed          uint64 //consensus events already in the Store before Bootstrap
	bootstrapping     bool

	ancestorCache    *lru.Cache
	stronglySeeCache *lru.Cache

	logger *logrus.Entry
}

// NewHashgraph instantiates a Hashgraph for the given address book, with an
// underlying data store and a commit callback. The observer may be nil.
func NewHashgraph(conf Config,
	book *addressbook.AddressBook,
	store Store,
	obs observer.Observer,
	commitCallback CommitCallback,
	logger *logrus.Entry) *Hashgraph {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if obs == nil {
		obs = observer.Nop{}
	}

	conf = conf.withDefaults()
	window := event.GenesisWindow(conf.AncientMode)

	return &Hashgraph{
		Store:            store,
		conf:             conf,
		book:             book,
		tracker:          tipset.NewTracker(book, conf.AncientMode, obs, logger),
		observer:         obs,
		commitCallback:   commitCallback,
		arena:            common.NewSequenceMap[string, *event.Event](window.AncientThreshold, initialArenaCapacity),
		meta:             make(map[string]*eventMeta),
		latest:           make(map[addressbook.NodeID]event.Descriptor),
		rounds:           make(map[int]*RoundInfo),
		lastRound:        event.NoConsensusRound,
		elections:        newElections(),
		pendingRounds:    NewPendingRoundsCache(),
		undecided:        make(map[int]int),
		window:           window,
		ancestorCache:    newCache(conf.CacheSize),
		stronglySeeCache: newCache(conf.CacheSize),
		logger:           logger,
	}
}

/*******************************************************************************
Private Methods
*******************************************************************************/

// true if y is an ancestor of x. Without forks, y is an ancestor of x if x has
// an ancestor by y's creator with a generation at least as high as y's.
func (h *Hashgraph) ancestor(x, y string) bool {
	if x == y {
		return true
	}
	if c, ok := h.ancestorCache.Get(Key{x, y}); ok {
		return c.(bool)
	}

	mx, ok := h.meta[x]
	if !ok {
		return false
	}
	ey, ok := h.arena.Get(y)
	if !ok {
		return false
	}

	c, ok := mx.lastAncestors[ey.Creator()]
	a := ok && c.generation >= ey.Generation()

	h.ancestorCache.Add(Key{x, y}, a)
	return a
}

// true if x sees y through ancestors created by a supermajority of the stake.
func (h *Hashgraph) stronglySee(x, y string) bool {
	if c, ok := h.stronglySeeCache.Get(Key{x, y}); ok {
		return c.(bool)
	}

	mx, ok := h.meta[x]
	if !ok {
		return false
	}
	if !h.arena.Contains(y) {
		return false
	}

	var weight uint64
	for creator, c := range mx.lastAncestors {
		if h.ancestor(c.hash, y) {
			weight += h.book.Weight(creator)
		}
	}
	ss := h.book.IsSuperMajority(weight)

	h.stronglySeeCache.Add(Key{x, y}, ss)
	return ss
}

// round computes the round of an event whose parents are already admitted.
func (h *Hashgraph) round(ev *event.Event) int {
	parents := ev.Parents()
	if len(parents) == 0 {
		return event.GenesisRound
	}

	parentRound := -1
	for _, p := range parents {
		if m, ok := h.meta[p.Hash]; ok && m.round > parentRound {
			parentRound = m.round
		}
	}

	//none of the parents are known, they must be ancient
	if parentRound < 0 {
		return h.window.PendingRound()
	}

	ri, ok := h.rounds[parentRound]
	if !ok {
		return parentRound + 1
	}

	x := ev.Hex()
	var weight uint64
	seen := make(map[addressbook.NodeID]bool)
	for _, w := range ri.Witnesses() {
		ew, ok := h.arena.Get(w)
		if !ok || seen[ew.Creator()] {
			continue
		}
		if h.stronglySee(x, w) {
			seen[ew.Creator()] = true
			weight += h.book.Weight(ew.Creator())
		}
	}

	if h.book.IsSuperMajority(weight) {
		return parentRound + 1
	}
	return parentRound
}

// witness is true for the first event of a creator in a round.
func (h *Hashgraph) witness(ev *event.Event, round int) bool {
	if !h.book.Contains(ev.Creator()) {
		return false
	}
	sp := ev.SelfParent()
	if sp == nil {
		return true
	}
	m, ok := h.meta[sp.Hash]
	if !ok {
		return true
	}
	return round > m.round
}

func (h *Hashgraph) lastAncestors(ev *event.Event) map[addressbook.NodeID]coordinates {
	la := make(map[addressbook.NodeID]coordinates)
	for _, p := range ev.Parents() {
		m, ok := h.meta[p.Hash]
		if !ok {
			continue
		}
		for creator, c := range m.lastAncestors {
			if cur, ok := la[creator]; !ok || c.generation > cur.generation {
				la[creator] = c
			}
		}
	}
	la[ev.Creator()] = coordinates{hash: ev.Hex(), generation: ev.Generation()}
	return la
}

func (h *Hashgraph) checkSelfParent(ev *event.Event) error {
	sp := ev.SelfParent()
	if sp == nil {
		return nil
	}
	if sp.Creator != ev.Creator() {
		return fmt.Errorf("%w: self-parent %s of %s has another creator", ErrMalformedEvent, sp, ev)
	}
	if sp.Generation >= ev.Generation() {
		return fmt.Errorf("%w: self-parent %s of %s is not older", ErrMalformedEvent, sp, ev)
	}
	return nil
}

func (h *Hashgraph) roundInfo(round int) *RoundInfo {
	ri, ok := h.rounds[round]
	if !ok {
		ri = NewRoundInfo()
		h.rounds[round] = ri
	}
	return ri
}

// roundDecided is true for rounds whose elections are over: finalized rounds
// and queued rounds with no undecided candidate left.
func (h *Hashgraph) roundDecided(round int) bool {
	if round <= h.window.LatestConsensusRound {
		return true
	}
	pr, ok := h.pendingRounds.Get(round)
	return ok && pr.Decided
}

// divideRounds assigns a round to a newly admitted event and opens an
// election if it is a witness.
func (h *Hashgraph) divideRounds(ev *event.Event, m *eventMeta) {
	x := ev.Hex()
	m.round = h.round(ev)
	m.witness = h.witness(ev, m.round)

	ri := h.roundInfo(m.round)
	ri.AddCreatedEvent(x, m.witness)

	if m.round > h.lastRound {
		h.lastRound = m.round
	}

	if !m.witness {
		return
	}

	if h.roundDecided(m.round) {
		ri.SetFame(x, false)
		h.logger.WithFields(logrus.Fields{
			"event": ev.String(),
			"round": m.round,
		}).Debug("Late witness, not famous")
		return
	}

	h.elections.add(m.round, ev.Descriptor())
	h.undecided[m.round]++
	h.pendingRounds.Push(m.round)
}

func (h *Hashgraph) updateLatest(d event.Descriptor) {
	if cur, ok := h.latest[d.Creator]; !ok || d.Generation > cur.Generation {
		h.latest[d.Creator] = d
	}
}

func (h *Hashgraph) witnessWeight(x string) uint64 {
	ex, ok := h.arena.Get(x)
	if !ok {
		return 0
	}
	return h.book.Weight(ex.Creator())
}

/*******************************************************************************
Public Methods
*******************************************************************************/

// InsertEventAndRunConsensus inserts an Event and runs the consensus methods.
func (h *Hashgraph) InsertEventAndRunConsensus(ev *event.Event) error {
	if err := h.InsertEvent(ev); err != nil {
		return err
	}
	return h.RunConsensus()
}

// RunConsensus decides fame where possible and finalizes the decided rounds.
func (h *Hashgraph) RunConsensus() error {
	if err := h.DecideFame(); err != nil {
		return err
	}
	return h.ProcessDecidedRounds()
}

// InsertEvent admits an Event in the DAG. Parents must have been inserted
// first. An ancient Event only goes through the tipset tracker and is then
// dropped. Inserting the same Event twice returns a KeyAlreadyExists StoreErr.
func (h *Hashgraph) InsertEvent(ev *event.Event) error {
	x := ev.Hex()
	if h.arena.Contains(x) {
		return common.NewStoreErr("Event", common.KeyAlreadyExists, x)
	}

	d := ev.Descriptor()
	if h.window.IsAncient(d) {
		h.tracker.AddEvent(d, ev.Parents())
		return nil
	}

	if err := h.checkSelfParent(ev); err != nil {
		h.logger.WithFields(logrus.Fields{
			"event":       ev.String(),
			"self_parent": ev.SelfParent(),
		}).WithError(err).Error("CheckSelfParent")
		return err
	}

	m := &eventMeta{
		roundReceived:    event.NoConsensusRound,
		topologicalIndex: h.topologicalIndex,
		lastAncestors:    h.lastAncestors(ev),
	}

	if !h.bootstrapping {
		if err := h.Store.SetEvent(ev); err != nil {
			return fmt.Errorf("SetEvent: %w", err)
		}
	}

	h.topologicalIndex++
	h.arena.Put(x, h.conf.AncientMode.SequenceKey(d), ev)
	h.meta[x] = m
	h.updateLatest(d)
	h.tracker.AddEvent(d, ev.Parents())

	h.divideRounds(ev, m)

	h.undeterminedEvents = append(h.undeterminedEvents, x)

	return nil
}

// DecideFame runs the elections of every undecided round.
func (h *Hashgraph) DecideFame() error {
	for _, pr := range h.pendingRounds.Ordered() {
		if pr.Decided {
			continue
		}
		for _, c := range h.elections.candidates(pr.Index) {
			if c.IsDecided() {
				continue
			}
			famous, votingRounds, ok := h.vote(c)
			if !ok {
				continue
			}
			if err := h.decideFame(c, famous, votingRounds); err != nil {
				return err
			}
		}
	}
	return nil
}

// vote runs the virtual election of a candidate through the rounds known so
// far. It returns the fame and the number of rounds it took, or false if the
// election is still open.
func (h *Hashgraph) vote(c *CandidateWitness) (bool, int, bool) {
	x := c.Witness.Hash
	votes := make(map[string]bool)

	for j := c.Round + 1; j <= h.lastRound; j++ {
		rj, ok := h.rounds[j]
		if !ok {
			break
		}
		d := j - c.Round

		//direct votes: does y strongly see x
		if d == 1 {
			var yays, nays uint64
			for _, y := range rj.Witnesses() {
				v := h.stronglySee(y, x)
				votes[y] = v
				if v {
					yays += h.witnessWeight(y)
				} else {
					nays += h.witnessWeight(y)
				}
			}
			if h.book.IsSuperMajority(yays) {
				return true, d, true
			}
			if h.book.IsSuperMajority(nays) {
				return false, d, true
			}
			continue
		}

		prev, ok := h.rounds[j-1]
		if !ok {
			break
		}
		prevWitnesses := prev.Witnesses()

		for _, y := range rj.Witnesses() {
			//count votes of the witnesses y strongly sees, once per creator
			var yays, nays uint64
			counted := make(map[addressbook.NodeID]bool)
			for _, w := range prevWitnesses {
				vote, ok := votes[w]
				if !ok || !h.stronglySee(y, w) {
					continue
				}
				ew, ok := h.arena.Get(w)
				if !ok || counted[ew.Creator()] {
					continue
				}
				counted[ew.Creator()] = true
				if vote {
					yays += h.book.Weight(ew.Creator())
				} else {
					nays += h.book.Weight(ew.Creator())
				}
			}

			v := yays >= nays
			t := nays
			if v {
				t = yays
			}

			if d%h.conf.CoinRoundFreq != 0 {
				//normal round
				if h.book.IsSuperMajority(t) {
					return v, d, true
				}
				votes[y] = v
			} else {
				//coin round
				if h.book.IsSuperMajority(t) {
					votes[y] = v
				} else {
					votes[y] = middleBit(y)
				}
			}
		}
	}

	return false, 0, false
}

func (h *Hashgraph) decideFame(c *CandidateWitness, famous bool, votingRounds int) error {
	changed, err := c.decide(famous)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	h.roundInfo(c.Round).SetFame(c.Witness.Hash, famous)
	h.observer.WitnessFameDecided(c.Round, c.Witness, famous, votingRounds)

	h.undecided[c.Round]--
	remaining := h.undecided[c.Round]
	if remaining < 0 {
		return newInvariantError("round %d has a negative number of undecided witnesses", c.Round)
	}

	h.logger.WithFields(logrus.Fields{
		"round":         c.Round,
		"witness":       c.Witness.String(),
		"famous":        famous,
		"voting_rounds": votingRounds,
		"remaining":     remaining,
	}).Debug("Fame decided")

	if remaining == 0 {
		h.pendingRounds.MarkDecided(c.Round)
		h.logger.WithField("round", c.Round).Debug("All witnesses decided")
	}

	return nil
}

// Bootstrap rebuilds the consensus state by replaying the events of the Store
// in topological order. Consensus events that are already stored are neither
// written again nor passed to the commit callback.
func (h *Hashgraph) Bootstrap() error {
	h.bootstrapping = true
	defer func() { h.bootstrapping = false }()

	h.replayed = h.Store.ConsensusEventCount()
	total := h.Store.EventCount()

	h.logger.WithFields(logrus.Fields{
		"events":           total,
		"consensus_events": h.replayed,
	}).Debug("Bootstrap")

	for start := 0; start < total; start += bootstrapBatchSize {
		events, err := h.Store.TopologicalEvents(start, bootstrapBatchSize)
		if err != nil {
			return fmt.Errorf("reading events from %d: %w", start, err)
		}
		for _, ev := range events {
			if err := h.InsertEventAndRunConsensus(ev); err != nil {
				return err
			}
		}
	}

	return nil
}

// GetEvent returns a non-ancient Event.
func (h *Hashgraph) GetEvent(hash string) (*event.Event, bool) {
	return h.arena.Get(hash)
}

// Round returns the round of a non-ancient Event.
func (h *Hashgraph) Round(hash string) (int, bool) {
	m, ok := h.meta[hash]
	if !ok {
		return 0, false
	}
	return m.round, true
}

// IsWitness returns true if a non-ancient Event is a witness.
func (h *Hashgraph) IsWitness(hash string) bool {
	m, ok := h.meta[hash]
	return ok && m.witness
}

// RoundReceived returns the round received of a non-ancient Event, or
// NoConsensusRound.
func (h *Hashgraph) RoundReceived(hash string) int {
	m, ok := h.meta[hash]
	if !ok {
		return event.NoConsensusRound
	}
	return m.roundReceived
}

// GetRoundInfo returns a non-ancient round.
func (h *Hashgraph) GetRoundInfo(round int) (*RoundInfo, bool) {
	ri, ok := h.rounds[round]
	return ri, ok
}

// LatestEvents returns the highest admitted event of every creator, sorted by
// creator.
func (h *Hashgraph) LatestEvents() []event.Descriptor {
	res := make([]event.Descriptor, 0, len(h.latest))
	for _, d := range h.latest {
		if h.arena.Contains(d.Hash) {
			res = append(res, d)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Creator < res[j].Creator })
	return res
}

// LatestEventFrom returns the highest admitted event of a creator.
func (h *Hashgraph) LatestEventFrom(creator addressbook.NodeID) (event.Descriptor, bool) {
	d, ok := h.latest[creator]
	if !ok || !h.arena.Contains(d.Hash) {
		return event.Descriptor{}, false
	}
	return d, true
}

// Tracker returns the tipset tracker fed by InsertEvent.
func (h *Hashgraph) Tracker() *tipset.Tracker {
	return h.tracker
}

// AddressBook returns the address book.
func (h *Hashgraph) AddressBook() *addressbook.AddressBook {
	return h.book
}

// Window returns the current non-ancient window.
func (h *Hashgraph) Window() event.Window {
	return h.window
}

// Config returns the protocol parameters.
func (h *Hashgraph) Config() Config {
	return h.conf
}

// Stats returns a snapshot of the internal counters.
func (h *Hashgraph) Stats() Stats {
	return Stats{
		LastConsensusRound:  h.window.LatestConsensusRound,
		LastRound:           h.lastRound,
		ConsensusEvents:     h.consensusIndex,
		UndeterminedEvents:  len(h.undeterminedEvents),
		ArenaEvents:         h.arena.Size(),
		TrackedTipsets:      h.tracker.Size(),
		PendingRounds:       h.pendingRounds.Len(),
		OpenElections:       h.elections.len(),
		AncientThreshold:    h.window.AncientThreshold,
		AncientMode:         h.window.Mode.String(),
		LastConsensusTimeNs: h.lastConsensusTime,
	}
}

// middleBit is false if the middle byte of the hash is zero.
func middleBit(ehex string) bool {
	hash, err := common.DecodeFromString(ehex)
	if err != nil {
		return true
	}
	if len(hash) > 0 && hash[len(hash)/2] == 0 {
		return false
	}
	return true
}
