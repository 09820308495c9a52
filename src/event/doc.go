// Package event defines the immutable events exchanged between swirl nodes and
// the notion of ancientness used to bound the state the consensus core keeps.
//
// An Event names its creator, a generation one higher than the highest
// generation among its parents, the consensus round its creator considered
// current when creating it (its birth round), an optional self-parent and any
// number of other-parents. Parents are referenced by Descriptor, which carries
// the fields needed to order and window events without resolving the parent.
//
// Every running instance picks one AncientMode. The mode decides which numeric
// field of a Descriptor is its sequence key, and a Window declares every event
// whose sequence key is below the ancient threshold ancient.
package event
