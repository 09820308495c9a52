package simulation

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/crypto/keys"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/mosaicnetworks/swirl/src/node"
	"github.com/mosaicnetworks/swirl/src/observer"
	"github.com/sirupsen/logrus"
)

// Config describes a simulated network.
type Config struct {
	// Nodes is the number of nodes.
	Nodes int

	// Weight is the voting weight of every node.
	Weight uint64

	// VerifySignatures makes the network drop events whose signature does not
	// match the public key of their creator.
	VerifySignatures bool

	// Moniker prefixes the names of the nodes.
	Moniker string

	// Store selects a Badger store per node, under DatabaseDir/node<i>.
	// Otherwise nodes use in-memory stores. MaintenanceMode keeps the
	// databases untouched.
	Store           bool
	MaintenanceMode bool
	DatabaseDir     string

	// Keys are used for the first nodes. Missing keys are generated.
	Keys []*ecdsa.PrivateKey

	// Node is shared by all the nodes.
	Node *node.Config

	// Observer is attached to every node. It may be nil.
	Observer observer.Observer
}

type publication struct {
	from addressbook.NodeID
	ev   *event.Event
}

// nodePublisher hands the events created by one node to the network.
type nodePublisher struct {
	network *Network
	id      addressbook.NodeID
}

func (p *nodePublisher) Publish(ev *event.Event) {
	p.network.enqueue(publication{from: p.id, ev: ev})
}

// Network runs several nodes in one process. Every event a node creates is
// delivered to all the other nodes by a single dispatcher, in global
// publication order. A node only cites events it has already received, so
// this order is causal.
type Network struct {
	conf   Config
	logger *logrus.Entry
	warn   *common.RateLimitedLogger

	book    *addressbook.AddressBook
	nodes   []*node.Node
	pubKeys map[addressbook.NodeID]*ecdsa.PublicKey

	queueLock sync.Mutex
	queue     []publication
	notifyCh  chan struct{}

	consensusLock sync.Mutex
	consensus     map[addressbook.NodeID][]*hashgraph.ConsensusEvent

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	delivered int
	dropped   int
}

// NewNetwork generates a key per node, builds the address book and creates the
// nodes. Nothing runs until Start.
func NewNetwork(conf Config) (*Network, error) {
	if conf.Nodes < 1 {
		return nil, fmt.Errorf("a network needs at least one node, not %d", conf.Nodes)
	}
	if conf.Weight == 0 {
		conf.Weight = 1
	}
	if conf.Node == nil {
		conf.Node = node.DefaultConfig()
	}
	if conf.Moniker == "" {
		conf.Moniker = "node"
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := &Network{
		conf:      conf,
		logger:    conf.Node.Logger.WithField("prefix", "simulation"),
		pubKeys:   make(map[addressbook.NodeID]*ecdsa.PublicKey),
		notifyCh:  make(chan struct{}, 1),
		consensus: make(map[addressbook.NodeID][]*hashgraph.ConsensusEvent),
		ctx:       ctx,
		cancel:    cancel,
	}
	n.warn = common.NewRateLimitedLogger(n.logger, time.Second)

	validators := []*node.Validator{}
	addresses := []*addressbook.Address{}
	for i := 0; i < conf.Nodes; i++ {
		var key *ecdsa.PrivateKey
		if i < len(conf.Keys) {
			key = conf.Keys[i]
		} else {
			var err error
			if key, err = keys.GenerateECDSAKey(); err != nil {
				return nil, err
			}
		}
		v := node.NewValidator(key, fmt.Sprintf("%s%d", conf.Moniker, i))
		validators = append(validators, v)
		addresses = append(addresses, v.Address(fmt.Sprintf("inmem://node%d", i), conf.Weight))
		n.pubKeys[v.ID()] = &key.PublicKey
	}

	book, err := addressbook.New(addresses)
	if err != nil {
		return nil, err
	}
	n.book = book

	for i, v := range validators {
		store, err := n.newStore(i)
		if err != nil {
			n.closeNodes()
			return nil, err
		}

		nd := node.NewNode(conf.Node,
			v,
			book,
			store,
			conf.Observer,
			&nodePublisher{network: n, id: v.ID()})

		if err := nd.Init(); err != nil {
			n.closeNodes()
			return nil, err
		}

		n.nodes = append(n.nodes, nd)
	}

	n.logger.WithFields(logrus.Fields{
		"nodes":        len(n.nodes),
		"total_weight": book.TotalWeight(),
		"ancient_mode": conf.Node.Hashgraph.AncientMode.String(),
	}).Debug("Network created")

	return n, nil
}

func (n *Network) newStore(i int) (hashgraph.Store, error) {
	cacheSize := n.conf.Node.Hashgraph.CacheSize
	if !n.conf.Store {
		return hashgraph.NewInmemStore(cacheSize), nil
	}

	path := filepath.Join(n.conf.DatabaseDir, fmt.Sprintf("node%d", i))
	n.logger.WithField("path", path).Debug("Opening badger store")
	return hashgraph.NewBadgerStore(cacheSize, path, n.conf.MaintenanceMode, n.logger)
}

// closeNodes is used when NewNetwork fails halfway.
func (n *Network) closeNodes() {
	for _, nd := range n.nodes {
		nd.Shutdown()
	}
}

// Start runs the dispatcher and all the nodes.
func (n *Network) Start() {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.dispatch()
	}()

	for _, nd := range n.nodes {
		nd := nd
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.collect(nd)
		}()
		nd.RunAsync()
	}
}

// Stop shuts the network and every node down. It can be called more than
// once.
func (n *Network) Stop() {
	n.stopOnce.Do(func() {
		n.cancel()
		for _, nd := range n.nodes {
			nd.Shutdown()
		}
		n.wg.Wait()

		n.logger.WithFields(logrus.Fields{
			"delivered": n.delivered,
			"dropped":   n.dropped,
		}).Debug("Network stopped")
	})
}

func (n *Network) enqueue(p publication) {
	n.queueLock.Lock()
	n.queue = append(n.queue, p)
	n.queueLock.Unlock()

	select {
	case n.notifyCh <- struct{}{}:
	default:
	}
}

func (n *Network) dequeue() (publication, bool) {
	n.queueLock.Lock()
	defer n.queueLock.Unlock()

	if len(n.queue) == 0 {
		return publication{}, false
	}
	p := n.queue[0]
	n.queue[0] = publication{}
	n.queue = n.queue[1:]
	return p, true
}

func (n *Network) dispatch() {
	for {
		select {
		case <-n.notifyCh:
		case <-n.ctx.Done():
			return
		}

		for {
			p, ok := n.dequeue()
			if !ok {
				break
			}
			if err := n.deliver(p); err != nil {
				return
			}
		}
	}
}

// deliver hands an event to every node but its creator. It only returns an
// error when the network is stopping.
func (n *Network) deliver(p publication) error {
	if n.conf.VerifySignatures {
		if err := n.verify(p.ev); err != nil {
			n.dropped++
			n.warn.Warn(logrus.Fields{"event": p.ev.String(), "error": err}, "Dropping event")
			return nil
		}
	}

	for _, nd := range n.nodes {
		if nd.ID() == p.from {
			continue
		}
		err := nd.Submit(n.ctx, p.ev)
		switch err {
		case nil:
		case node.ErrHalted:
			n.warn.Warn(logrus.Fields{"node": nd.ID()}, "Node halted")
		default:
			if n.ctx.Err() != nil {
				return n.ctx.Err()
			}
			n.logger.WithError(err).WithField("node", nd.ID()).Error("Submitting event")
		}
	}

	n.delivered++
	return nil
}

func (n *Network) verify(ev *event.Event) error {
	pub, ok := n.pubKeys[ev.Creator()]
	if !ok {
		return fmt.Errorf("unknown creator %d", ev.Creator())
	}
	valid, err := ev.Verify(pub)
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("invalid signature")
	}
	return nil
}

// collect drains the consensus events of a node until the network stops.
func (n *Network) collect(nd *node.Node) {
	for {
		select {
		case ce := <-nd.ConsensusEvents():
			n.consensusLock.Lock()
			n.consensus[nd.ID()] = append(n.consensus[nd.ID()], ce)
			n.consensusLock.Unlock()
		case <-n.ctx.Done():
			return
		}
	}
}

// Nodes returns the nodes of the network.
func (n *Network) Nodes() []*node.Node {
	return n.nodes
}

// AddressBook returns the address book shared by the nodes.
func (n *Network) AddressBook() *addressbook.AddressBook {
	return n.book
}

// SubmitTx submits a transaction to the node at index i.
func (n *Network) SubmitTx(ctx context.Context, i int, tx []byte) error {
	if i < 0 || i >= len(n.nodes) {
		return fmt.Errorf("no node at index %d", i)
	}
	return n.nodes[i].SubmitTx(ctx, tx)
}

// ConsensusEvents returns a copy of the consensus events collected from a
// node so far.
func (n *Network) ConsensusEvents(id addressbook.NodeID) []*hashgraph.ConsensusEvent {
	n.consensusLock.Lock()
	defer n.consensusLock.Unlock()

	res := make([]*hashgraph.ConsensusEvent, len(n.consensus[id]))
	copy(res, n.consensus[id])
	return res
}

// MinConsensusEvents returns the smallest number of consensus events collected
// from any node.
func (n *Network) MinConsensusEvents() int {
	n.consensusLock.Lock()
	defer n.consensusLock.Unlock()

	min := -1
	for _, nd := range n.nodes {
		c := len(n.consensus[nd.ID()])
		if min < 0 || c < min {
			min = c
		}
	}
	return min
}

// WaitForConsensus blocks until every node emitted at least count consensus
// events, or ctx is done.
func (n *Network) WaitForConsensus(ctx context.Context, count int) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if n.MinConsensusEvents() >= count {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d consensus events, got %d: %w", count, n.MinConsensusEvents(), ctx.Err())
		}
	}
}

// CheckConsistency compares the consensus events of all the nodes over their
// common prefix. Every node must emit the same events, in the same order,
// with the same timestamps.
func (n *Network) CheckConsistency() error {
	if len(n.nodes) == 0 {
		return nil
	}

	ref := n.ConsensusEvents(n.nodes[0].ID())
	for _, nd := range n.nodes[1:] {
		other := n.ConsensusEvents(nd.ID())

		l := len(ref)
		if len(other) < l {
			l = len(other)
		}

		for i := 0; i < l; i++ {
			a, b := ref[i], other[i]
			if a.Index != b.Index || a.Event.Hex() != b.Event.Hex() {
				return fmt.Errorf("node %d consensus event %d is %s, node %d has %s",
					nd.ID(), i, b.Event.Hex(), n.nodes[0].ID(), a.Event.Hex())
			}
			if !a.Timestamp.Equal(b.Timestamp) {
				return fmt.Errorf("node %d consensus timestamp %d is %v, node %d has %v",
					nd.ID(), i, b.Timestamp, n.nodes[0].ID(), a.Timestamp)
			}
		}
	}

	return nil
}
