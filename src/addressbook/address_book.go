package addressbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/crypto"
)

// AddressBook is an immutable set of Addresses ordered by NodeID.
type AddressBook struct {
	addresses   []*Address
	byID        map[NodeID]*Address
	index       map[NodeID]int
	totalWeight uint64
	hash        []byte
}

// New builds an AddressBook. Addresses without an ID get one derived from
// their public key; duplicated IDs are rejected.
func New(addresses []*Address) (*AddressBook, error) {
	book := &AddressBook{
		addresses: make([]*Address, 0, len(addresses)),
		byID:      make(map[NodeID]*Address, len(addresses)),
		index:     make(map[NodeID]int, len(addresses)),
	}

	for _, a := range addresses {
		c := *a
		c.PubKeyHex = normalizePubKeyHex(c.PubKeyHex)
		if c.ID == 0 {
			if err := c.computeID(); err != nil {
				return nil, fmt.Errorf("address %q has neither id nor valid public key: %w", c.Moniker, err)
			}
		}
		if _, ok := book.byID[c.ID]; ok {
			return nil, fmt.Errorf("duplicate node id %d", c.ID)
		}
		book.byID[c.ID] = &c
		book.addresses = append(book.addresses, &c)
		book.totalWeight += c.Weight
	}

	sort.Slice(book.addresses, func(i, j int) bool {
		return book.addresses[i].ID < book.addresses[j].ID
	})

	hash := []byte{}
	for i, a := range book.addresses {
		book.index[a.ID] = i
		hash = crypto.SHA256Concat(hash,
			[]byte(strconv.FormatUint(uint64(a.ID), 10)),
			[]byte(a.PubKeyHex),
			[]byte(strconv.FormatUint(a.Weight, 10)))
	}
	book.hash = hash

	return book, nil
}

// NewUniform is a convenience constructor for books where every node has the
// same weight and no key, as used by simulations and tests.
func NewUniform(ids []NodeID, weight uint64) *AddressBook {
	addresses := make([]*Address, len(ids))
	for i, id := range ids {
		addresses[i] = &Address{ID: id, Weight: weight, Moniker: fmt.Sprintf("node%d", id)}
	}
	book, err := New(addresses)
	if err != nil {
		panic(err)
	}
	return book
}

// Len returns the number of nodes.
func (b *AddressBook) Len() int {
	return len(b.addresses)
}

// Addresses returns the addresses in NodeID order.
func (b *AddressBook) Addresses() []*Address {
	res := make([]*Address, len(b.addresses))
	copy(res, b.addresses)
	return res
}

// IDs returns the node identifiers in ascending order.
func (b *AddressBook) IDs() []NodeID {
	res := make([]NodeID, len(b.addresses))
	for i, a := range b.addresses {
		res[i] = a.ID
	}
	return res
}

// Get returns the Address for id.
func (b *AddressBook) Get(id NodeID) (*Address, bool) {
	a, ok := b.byID[id]
	return a, ok
}

// Contains reports whether id belongs to the book.
func (b *AddressBook) Contains(id NodeID) bool {
	_, ok := b.byID[id]
	return ok
}

// Index returns the position of id in NodeID order.
func (b *AddressBook) Index(id NodeID) (int, bool) {
	i, ok := b.index[id]
	return i, ok
}

// Weight returns the voting weight of id, zero for unknown nodes.
func (b *AddressBook) Weight(id NodeID) uint64 {
	if a, ok := b.byID[id]; ok {
		return a.Weight
	}
	return 0
}

// TotalWeight returns the sum of all weights.
func (b *AddressBook) TotalWeight() uint64 {
	return b.totalWeight
}

// IsSuperMajority reports whether weight is strictly more than two thirds of
// the total weight.
func (b *AddressBook) IsSuperMajority(weight uint64) bool {
	return 3*weight > 2*b.totalWeight
}

// IsStrictMajority reports whether weight is strictly more than half of the
// total weight.
func (b *AddressBook) IsStrictMajority(weight uint64) bool {
	return 2*weight > b.totalWeight
}

// Hash identifies the book by its ids, keys and weights.
func (b *AddressBook) Hash() []byte {
	return b.hash
}

// Hex is the hexadecimal representation of Hash.
func (b *AddressBook) Hex() string {
	return common.EncodeToString(b.hash)
}

// Marshal returns the JSON list of addresses.
func (b *AddressBook) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(b.addresses); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
