package node

import (
	"time"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/mosaicnetworks/swirl/src/observer"
	"github.com/mosaicnetworks/swirl/src/tipset"
	"github.com/sirupsen/logrus"
)

// Core is the single consensus context of a node. It is not safe for
// concurrent use; Node serialises every call.
type Core struct {

	// validator is a wrapper around the private-key controlling this node.
	validator *Validator

	// hg is the underlying hashgraph where all the consensus computation and
	// data reside.
	hg *hashgraph.Hashgraph

	// advisor picks the other-parents of self-events from the tipsets of the
	// latest event of every other creator.
	advisor         *tipset.Advisor
	maxOtherParents int

	// head is this node's latest event, nil before the first one.
	head *event.Descriptor

	// The transaction pool contains transactions submitted from the app that
	// still haven't made it into the hashgraph.
	transactionPool [][]byte

	logger *logrus.Entry
}

// NewCore is a factory method that returns a new Core object
func NewCore(validator *Validator,
	book *addressbook.AddressBook,
	store hashgraph.Store,
	conf *Config,
	obs observer.Observer,
	commitCallback hashgraph.CommitCallback,
	logger *logrus.Entry) *Core {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	maxOtherParents := conf.MaxOtherParents
	if maxOtherParents < 1 {
		maxOtherParents = 1
	}

	return &Core{
		validator:       validator,
		hg:              hashgraph.NewHashgraph(conf.Hashgraph, book, store, obs, commitCallback, logger),
		advisor:         tipset.NewAdvisor(book, validator.ID(), conf.Hashgraph.AncientMode, conf.WeightedAdvisor),
		maxOtherParents: maxOtherParents,
		transactionPool: [][]byte{},
		logger:          logger,
	}
}

// Bootstrap replays the store and recovers the head of this node.
func (c *Core) Bootstrap() error {
	if err := c.hg.Bootstrap(); err != nil {
		return err
	}
	c.SetHead()
	return nil
}

// SetHead sets the head to the latest admitted event created by this node.
func (c *Core) SetHead() {
	if d, ok := c.hg.LatestEventFrom(c.validator.ID()); ok {
		c.head = &d
		c.logger.WithField("head", d.String()).Debug("SetHead")
	}
}

// Head returns the latest event of this node.
func (c *Core) Head() (event.Descriptor, bool) {
	if c.head == nil {
		return event.Descriptor{}, false
	}
	return *c.head, true
}

// Busy returns true if there are transactions waiting or events without a
// round received.
func (c *Core) Busy() bool {
	return len(c.transactionPool) > 0 || c.hg.Stats().UndeterminedEvents > 0
}

// InsertEventAndRunConsensus admits an event created by another node.
func (c *Core) InsertEventAndRunConsensus(ev *event.Event) error {
	return c.hg.InsertEventAndRunConsensus(ev)
}

// AddTransactions appends transactions to the pool.
func (c *Core) AddTransactions(txs [][]byte) {
	c.transactionPool = append(c.transactionPool, txs...)
}

// selectOtherParents asks the advisor for the most useful latest events of
// the other creators.
func (c *Core) selectOtherParents() []tipset.Candidate {
	tracker := c.hg.Tracker()

	self := tipset.New(c.hg.AddressBook())
	if c.head != nil {
		if ts, ok := tracker.GetTipset(*c.head); ok {
			self = ts
		}
	}

	candidates := []tipset.Candidate{}
	for _, d := range c.hg.LatestEvents() {
		if d.Creator == c.validator.ID() {
			continue
		}
		ts, ok := tracker.GetTipset(d)
		if !ok {
			continue
		}
		candidates = append(candidates, tipset.Candidate{Descriptor: d, Tipset: ts})
	}

	return c.advisor.SelectOtherParents(self, candidates, c.maxOtherParents)
}

// CreateSelfEvent creates, signs and inserts the next event of this node. The
// first event has no parents. Later events are only created when they would
// cite a useful other-parent or carry transactions; otherwise it returns nil.
func (c *Core) CreateSelfEvent(now time.Time) (*event.Event, error) {
	otherParents := []event.Descriptor{}
	if c.head != nil {
		for _, cand := range c.selectOtherParents() {
			otherParents = append(otherParents, cand.Descriptor)
		}
		if len(otherParents) == 0 && len(c.transactionPool) == 0 {
			return nil, nil
		}
	}

	ev := event.New(c.validator.ID(),
		c.head,
		otherParents,
		uint64(c.hg.Window().PendingRound()),
		now,
		c.transactionPool)

	if err := ev.Sign(c.validator.Key); err != nil {
		return nil, err
	}

	if err := c.hg.InsertEventAndRunConsensus(ev); err != nil {
		return nil, err
	}

	d := ev.Descriptor()
	c.head = &d
	c.transactionPool = [][]byte{}

	c.logger.WithFields(logrus.Fields{
		"event":         d.String(),
		"other_parents": len(otherParents),
		"transactions":  len(ev.Transactions()),
	}).Debug("Created self-event")

	return ev, nil
}

// GetConsensusEvent returns a consensus event from the store.
func (c *Core) GetConsensusEvent(index uint64) (*hashgraph.ConsensusEvent, error) {
	return c.hg.Store.GetConsensusEvent(index)
}

// GetRound returns a finalized round from the store.
func (c *Core) GetRound(round int) (*hashgraph.RoundInfo, error) {
	return c.hg.Store.GetRound(round)
}

// Stats returns the counters of the hashgraph.
func (c *Core) Stats() hashgraph.Stats {
	return c.hg.Stats()
}

// TransactionPoolSize returns the number of pending transactions.
func (c *Core) TransactionPoolSize() int {
	return len(c.transactionPool)
}

// Close closes the store.
func (c *Core) Close() error {
	return c.hg.Store.Close()
}
