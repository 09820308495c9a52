// Package tipset measures how far the DAG has progressed as seen from each
// event.
//
// A Tipset maps every node of the address book to the highest generation of
// that node's events reachable from a given event. The Tracker computes and
// remembers the tipset of every non-ancient event, and the Advisor uses those
// tipsets to choose which events a node should cite next so that its new event
// advances the tipset as much as possible.
//
// Tipsets are immutable values, so they can be handed to other goroutines
// without copying. The Tracker itself is not safe for concurrent use and must
// only be driven by the consensus goroutine.
package tipset
