// Package keys implements the node keys used by swirl.
//
// Every node listed in the address book owns a secp256k1 key-pair. The public
// key identifies the node, and unless the address book sets it explicitly the
// NodeID is derived from it. Events are signed with the private key so that the
// layer handing events to the consensus core can check their origin.
package keys
