package hashgraph

import "github.com/mosaicnetworks/swirl/src/event"

// Store is an interface for backend stores.
type Store interface {
	// SetEvent records an admitted event. Events are recorded in topological
	// order.
	SetEvent(ev *event.Event) error
	// GetEvent returns a recorded event by hash.
	GetEvent(hash string) (*event.Event, error)
	// TopologicalEvents returns at most limit events, in admission order,
	// starting at position start.
	TopologicalEvents(start int, limit int) ([]*event.Event, error)
	// EventCount returns the number of recorded events.
	EventCount() int
	// AddConsensusEvent records the next consensus event. Its index must be
	// equal to ConsensusEventCount.
	AddConsensusEvent(ce *ConsensusEvent) error
	// GetConsensusEvent returns the consensus event with the given index.
	GetConsensusEvent(index uint64) (*ConsensusEvent, error)
	// ConsensusEventCount returns the number of consensus events.
	ConsensusEventCount() uint64
	// SetRound stores a finalized round.
	SetRound(round int, ri *RoundInfo) error
	// GetRound retrieves a finalized round.
	GetRound(round int) (*RoundInfo, error)
	// LastRound returns the index of the last stored round, or -1.
	LastRound() int
	// SetWindow records the current non-ancient window.
	SetWindow(w event.Window) error
	// GetWindow returns the last recorded window.
	GetWindow() (event.Window, error)
	// Close closes the underlying database.
	Close() error
	// StorePath returns the filepath of the underlying database.
	StorePath() string
}
