package node

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/mosaicnetworks/swirl/src/node/state"
	"github.com/mosaicnetworks/swirl/src/observer"
	"github.com/mosaicnetworks/swirl/src/version"
	"github.com/sirupsen/logrus"
)

var (
	// ErrHalted is returned by Submit after the node stopped on a consensus
	// invariant violation.
	ErrHalted = errors.New("node halted")

	// ErrShutdown is returned by Submit after Shutdown.
	ErrShutdown = errors.New("node shut down")
)

// Publisher receives the events created by a node, to be delivered to the
// other nodes.
type Publisher interface {
	Publish(ev *event.Event)
}

// Node runs a Core in a single goroutine. Events from other nodes go through
// a bounded intake queue; the node creates its own events on a heartbeat.
type Node struct {
	// The node's state is Running, Halted or Shutdown.
	state.Manager

	conf   *Config
	logger *logrus.Entry

	validator *Validator

	core     *Core
	coreLock sync.Mutex

	publisher Publisher

	intakeCh    chan *event.Event
	submitCh    chan [][]byte
	consensusCh chan *hashgraph.ConsensusEvent

	haltCh       chan struct{}
	haltOnce     sync.Once
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	runOnce      sync.Once

	controlTimer *ControlTimer

	start          time.Time
	eventsReceived uint64
	eventsCreated  uint64
	eventsRejected uint64

	fatalLock sync.Mutex
	fatal     error
}

// NewNode is a factory method that returns a Node instance. publisher and obs
// may be nil.
func NewNode(conf *Config,
	validator *Validator,
	book *addressbook.AddressBook,
	store hashgraph.Store,
	obs observer.Observer,
	publisher Publisher,
) *Node {

	intakeQueue := conf.IntakeQueue
	if intakeQueue < 1 {
		intakeQueue = 1
	}

	if conf.Logger == nil {
		conf.Logger = logrus.New()
		conf.Logger.Level = logrus.DebugLevel
	}

	node := &Node{
		conf:         conf,
		logger:       conf.Logger.WithField("this_id", validator.ID()),
		validator:    validator,
		publisher:    publisher,
		intakeCh:     make(chan *event.Event, intakeQueue),
		submitCh:     make(chan [][]byte, intakeQueue),
		consensusCh:  make(chan *hashgraph.ConsensusEvent, intakeQueue),
		haltCh:       make(chan struct{}),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
		start:        time.Now(),
	}

	node.core = NewCore(validator, book, store, conf, obs, node.commit, node.logger)

	return node
}

// Init bootstraps the node from its store when configured to.
func (n *Node) Init() error {
	if n.conf.Bootstrap {
		n.logger.Debug("Bootstrap")
		n.coreLock.Lock()
		defer n.coreLock.Unlock()
		if err := n.core.Bootstrap(); err != nil {
			return err
		}
	}

	n.SetState(state.Running)
	return nil
}

// RunAsync calls Run in a separate goroutine. Shutdown waits for it.
func (n *Node) RunAsync() {
	n.logger.Debug("RunAsync")
	n.GoFunc(n.Run)
}

// Run invokes the main loop of the node. It returns after Shutdown, or after
// the node halted.
func (n *Node) Run() {
	n.runOnce.Do(func() {
		n.GoFunc(func() { n.controlTimer.Run(n.conf.HeartbeatTimeout) })

		for {
			select {
			case ev := <-n.intakeCh:
				n.processEvent(ev)
			case txs := <-n.submitCh:
				n.coreLock.Lock()
				n.core.AddTransactions(txs)
				n.coreLock.Unlock()
			case <-n.controlTimer.tickCh:
				n.heartbeat()
				n.resetTimer()
			case <-n.haltCh:
				return
			case <-n.shutdownCh:
				return
			}

			if n.GetState() != state.Running {
				n.logger.WithField("state", n.GetState().String()).Debug("Run loop exit")
				return
			}
		}
	})
}

// resetTimer restarts the heartbeat, slowly if there is nothing to do.
func (n *Node) resetTimer() {
	n.coreLock.Lock()
	busy := n.core.Busy()
	n.coreLock.Unlock()

	ts := n.conf.HeartbeatTimeout
	if !busy {
		ts = n.conf.SlowHeartbeatTimeout
	}

	n.controlTimer.Reset(ts)
}

// heartbeat creates a self-event, if there is anything worth creating, and
// hands it to the publisher.
func (n *Node) heartbeat() {
	n.coreLock.Lock()
	ev, err := n.core.CreateSelfEvent(time.Now().UTC())
	n.coreLock.Unlock()

	if err != nil {
		n.handleError(err, "Creating self-event")
		return
	}
	if ev == nil {
		return
	}

	atomic.AddUint64(&n.eventsCreated, 1)

	if n.publisher != nil {
		n.publisher.Publish(ev)
	}
}

func (n *Node) processEvent(ev *event.Event) {
	n.coreLock.Lock()
	err := n.core.InsertEventAndRunConsensus(ev)
	n.coreLock.Unlock()

	if err != nil {
		n.handleError(err, fmt.Sprintf("Inserting event %s", ev))
		return
	}

	atomic.AddUint64(&n.eventsReceived, 1)
}

// handleError halts the node on invariant violations, unless the node is
// shutting down anyway. Any other error only rejects the offending event.
func (n *Node) handleError(err error, msg string) {
	switch {
	case errors.Is(err, ErrShutdown):
		n.logger.WithError(err).Debug(msg)
	case common.IsStore(err, common.KeyAlreadyExists):
		n.logger.WithError(err).Debug(msg)
	case hashgraph.IsInvariantViolation(err):
		n.logger.WithError(err).Error(msg)
		n.halt(err)
	default:
		atomic.AddUint64(&n.eventsRejected, 1)
		n.logger.WithError(err).Warn(msg)
	}
}

func (n *Node) halt(err error) {
	n.haltOnce.Do(func() {
		n.fatalLock.Lock()
		n.fatal = err
		n.fatalLock.Unlock()

		if n.CompareAndSetState(state.Running, state.Halted) {
			n.logger.Error("Node halted")
		}
		close(n.haltCh)
		n.controlTimer.Shutdown()
	})
}

// commit is the hashgraph's commit callback. It runs on the Run goroutine.
func (n *Node) commit(round int, events []*hashgraph.ConsensusEvent) error {
	for _, ce := range events {
		select {
		case n.consensusCh <- ce:
		case <-n.shutdownCh:
			return ErrShutdown
		}
	}
	return nil
}

// Submit queues an event created by another node. It blocks while the intake
// queue is full, until ctx is done.
func (n *Node) Submit(ctx context.Context, ev *event.Event) error {
	switch n.GetState() {
	case state.Halted:
		return ErrHalted
	case state.Shutdown:
		return ErrShutdown
	}

	select {
	case n.intakeCh <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.haltCh:
		return ErrHalted
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

// SubmitTx queues a transaction for the next self-event.
func (n *Node) SubmitTx(ctx context.Context, tx []byte) error {
	select {
	case n.submitCh <- [][]byte{tx}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.haltCh:
		return ErrHalted
	case <-n.shutdownCh:
		return ErrShutdown
	}
}

// ConsensusEvents returns the channel on which the node emits events in
// consensus order. It must be drained for the node to make progress.
func (n *Node) ConsensusEvents() <-chan *hashgraph.ConsensusEvent {
	return n.consensusCh
}

// Err returns the error that halted the node, if any.
func (n *Node) Err() error {
	n.fatalLock.Lock()
	defer n.fatalLock.Unlock()
	return n.fatal
}

// ID returns the NodeID of the validator.
func (n *Node) ID() addressbook.NodeID {
	return n.validator.ID()
}

// Validator returns the validator of this node.
func (n *Node) Validator() *Validator {
	return n.validator
}

// GetConsensusEvent returns the consensus event at index.
func (n *Node) GetConsensusEvent(index uint64) (*hashgraph.ConsensusEvent, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.GetConsensusEvent(index)
}

// GetRound returns a finalized round.
func (n *Node) GetRound(round int) (*hashgraph.RoundInfo, error) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.GetRound(round)
}

// Stats returns a snapshot of the node's counters.
func (n *Node) Stats() map[string]string {
	n.coreLock.Lock()
	hgStats := n.core.Stats()
	txPool := n.core.TransactionPoolSize()
	n.coreLock.Unlock()

	elapsed := time.Since(n.start).Seconds()
	eventsPerSecond := float64(hgStats.ConsensusEvents) / elapsed
	roundsPerSecond := float64(hgStats.LastConsensusRound+1) / elapsed

	s := map[string]string{
		"last_consensus_round": strconv.Itoa(hgStats.LastConsensusRound),
		"last_round":           strconv.Itoa(hgStats.LastRound),
		"consensus_events":     strconv.FormatUint(hgStats.ConsensusEvents, 10),
		"undetermined_events":  strconv.Itoa(hgStats.UndeterminedEvents),
		"arena_events":         strconv.Itoa(hgStats.ArenaEvents),
		"tracked_tipsets":      strconv.Itoa(hgStats.TrackedTipsets),
		"pending_rounds":       strconv.Itoa(hgStats.PendingRounds),
		"open_elections":       strconv.Itoa(hgStats.OpenElections),
		"ancient_threshold":    strconv.FormatUint(hgStats.AncientThreshold, 10),
		"ancient_mode":         hgStats.AncientMode,
		"transaction_pool":     strconv.Itoa(txPool),
		"events_received":      strconv.FormatUint(atomic.LoadUint64(&n.eventsReceived), 10),
		"events_created":       strconv.FormatUint(atomic.LoadUint64(&n.eventsCreated), 10),
		"events_rejected":      strconv.FormatUint(atomic.LoadUint64(&n.eventsRejected), 10),
		"events_per_second":    strconv.FormatFloat(eventsPerSecond, 'f', 2, 64),
		"rounds_per_second":    strconv.FormatFloat(roundsPerSecond, 'f', 2, 64),
		"id":                   fmt.Sprint(n.validator.ID()),
		"state":                n.GetState().String(),
		"moniker":              n.validator.Moniker,
		"protocol":             strconv.Itoa(version.Protocol),
	}
	return s
}

func (n *Node) logStats() {
	stats := n.Stats()

	n.logger.WithFields(logrus.Fields{
		"last_consensus_round": stats["last_consensus_round"],
		"consensus_events":     stats["consensus_events"],
		"undetermined_events":  stats["undetermined_events"],
		"arena_events":         stats["arena_events"],
		"ancient_threshold":    stats["ancient_threshold"],
		"events/s":             stats["events_per_second"],
		"rounds/s":             stats["rounds_per_second"],
		"state":                stats["state"],
	}).Debug("Stats")
}

// Shutdown stops the node and closes its store. It can be called more than
// once.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.SetState(state.Shutdown)
		close(n.shutdownCh)
		n.controlTimer.Shutdown()

		n.WaitRoutines()

		n.logStats()

		n.coreLock.Lock()
		defer n.coreLock.Unlock()
		if err := n.core.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	})
}
