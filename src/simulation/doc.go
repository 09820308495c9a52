// Package simulation runs a whole swirl network inside one process.
//
// Each node has its own key, store and hashgraph, and creates events on its
// own heartbeat. A single dispatcher fans every created event out to the other
// nodes in the order they were published, which stands in for gossip. The
// network collects the consensus events of every node, so that runs can check
// that all nodes reach the same order.
package simulation
