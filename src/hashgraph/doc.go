// Package hashgraph implements the consensus core of a swirl node.
//
// It is based on the Hashgraph consensus algorithm, invented by Leemon Baird:
//
// http://www.swirlds.com/downloads/SWIRLDS-TR-2016-01.pdf
//
// Events
//
// Events are admitted one at a time, parents first. Each event is assigned a
// round from its parents and classified as a witness when it is the first
// event of its creator in that round. Events below the non-ancient window are
// not admitted; the tipset tracker still sees them for diagnostics.
//
// Elections
//
// Every witness becomes a candidate whose fame is decided by virtual voting
// of the witnesses of later rounds. Voting weight is the stake of the voter's
// creator, and every CoinRoundFreq-th round is a coin round where voters
// without a supermajority fall back to a bit of their own hash. Each round
// counts its undecided candidates; the round is decided when the count
// reaches zero.
//
// Finalization
//
// Decided rounds are finalized in ascending order. Finalizing a round gives
// a round received to every undetermined event that is an ancestor of one of
// its famous witnesses, sorts those events by median timestamp, creator and
// hash, and hands them to the commit callback with a gap-free consensus
// index. The non-ancient window then moves forward, and everything below it
// is evicted from memory.
//
// Store
//
// Admitted events, consensus events, finalized rounds and the window are
// written to a Store. InmemStore keeps them in memory. BadgerStore persists
// them to a key-value database on disk that Bootstrap can replay to rebuild
// the same consensus state after a restart.
package hashgraph
