// Package node implements the reactive component of a swirl node.
//
// A Node wraps a Core, which owns the hashgraph of the node and is the only
// place where consensus runs. All calls into the Core happen on the Node's
// run loop goroutine, so the consensus state needs no further locking.
//
// Intake
//
// Events created by other nodes are handed to Submit, from any goroutine.
// They are queued on a bounded intake channel and applied in arrival order by
// the run loop. The caller is responsible for delivering events in causal
// order; an event whose parents are unknown is rejected.
//
// Event creation
//
// On every heartbeat, the Core asks the tipset advisor which of the latest
// events of other creators would advance its view of the hashgraph the most,
// and creates a signed self-event citing them. The heartbeat is fast while
// there are pending transactions or undetermined events, and slow otherwise.
// Created events are handed to a Publisher.
//
// States
//
// A node is Running until it is shut down. A consensus invariant violation is
// not recoverable: the node moves to the Halted state, stops consuming its
// intake queue, and keeps answering queries about what it already computed.
//
// Output
//
// Events reaching consensus are emitted on the ConsensusEvents channel in
// consensus order, with their consensus timestamp and index. The channel must
// be drained for the node to make progress.
package node
