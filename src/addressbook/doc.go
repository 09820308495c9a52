// Package addressbook defines the set of nodes taking part in consensus and
// the voting weight each of them holds.
//
// An AddressBook is fixed for the lifetime of a consensus epoch. All weight
// arithmetic in the consensus core goes through it: an amount of weight is a
// supermajority when it is strictly more than two thirds of the total weight.
//
// Upon starting up, a swirl node expects to find an addressbook.json file in
// its data directory, listing every node with its public key, weight and an
// optional numeric identifier. When the identifier is omitted it is derived
// from the public key.
package addressbook
