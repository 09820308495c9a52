package hashgraph

import (
	"time"

	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/ugorji/go/codec"
)

// ConsensusEvent is an event placed in the consensus order. Index is
// gap-free and starts at zero; Timestamp strictly increases with Index.
type ConsensusEvent struct {
	Event         *event.Event
	Index         uint64
	Timestamp     time.Time
	RoundReceived int
}

// CommitCallback receives the events of each finalized round, in consensus
// order.
type CommitCallback func(round int, events []*ConsensusEvent) error

type consensusEventWrapper struct {
	Event         []byte
	Index         uint64
	Timestamp     time.Time
	RoundReceived int
}

// Marshal returns the canonical JSON encoding.
func (c *ConsensusEvent) Marshal() ([]byte, error) {
	ev, err := c.Event.Marshal()
	if err != nil {
		return nil, err
	}

	var b []byte
	enc := codec.NewEncoderBytes(&b, jsonHandle())
	err = enc.Encode(consensusEventWrapper{
		Event:         ev,
		Index:         c.Index,
		Timestamp:     c.Timestamp,
		RoundReceived: c.RoundReceived,
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal decodes the output of Marshal.
func (c *ConsensusEvent) Unmarshal(data []byte) error {
	var w consensusEventWrapper
	dec := codec.NewDecoderBytes(data, jsonHandle())
	if err := dec.Decode(&w); err != nil {
		return err
	}

	ev := new(event.Event)
	if err := ev.Unmarshal(w.Event); err != nil {
		return err
	}

	c.Event = ev
	c.Index = w.Index
	c.Timestamp = w.Timestamp
	c.RoundReceived = w.RoundReceived
	return nil
}
