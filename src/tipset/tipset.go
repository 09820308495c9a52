package tipset

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/swirl/src/addressbook"
)

// UndefinedGeneration is the value of a node no event has been observed for.
const UndefinedGeneration uint64 = 0

// Tipset is an immutable vector of generations indexed by the nodes of an
// address book.
type Tipset struct {
	book *addressbook.AddressBook
	tips []uint64
}

// New returns the base tipset of book, with nothing observed.
func New(book *addressbook.AddressBook) *Tipset {
	return &Tipset{
		book: book,
		tips: make([]uint64, book.Len()),
	}
}

// AddressBook returns the book the tipset is indexed by.
func (t *Tipset) AddressBook() *addressbook.AddressBook {
	return t.book
}

// Size returns the number of nodes covered.
func (t *Tipset) Size() int {
	return len(t.tips)
}

// Get returns the generation recorded for id, UndefinedGeneration for nodes
// outside the book.
func (t *Tipset) Get(id addressbook.NodeID) uint64 {
	i, ok := t.book.Index(id)
	if !ok {
		return UndefinedGeneration
	}
	return t.tips[i]
}

// Advance returns a copy with the entry of id raised to generation if it was
// lower. Nodes outside the book are ignored.
func (t *Tipset) Advance(id addressbook.NodeID, generation uint64) *Tipset {
	res := t.copy()
	if i, ok := t.book.Index(id); ok && res.tips[i] < generation {
		res.tips[i] = generation
	}
	return res
}

// Merge returns the coordinatewise maximum of tipsets over book. Nil tipsets
// are skipped, merging nothing yields the base tipset, and entries for nodes
// not in book are dropped.
func Merge(book *addressbook.AddressBook, tipsets ...*Tipset) *Tipset {
	res := New(book)
	for _, ts := range tipsets {
		if ts == nil {
			continue
		}
		if ts.book == book {
			for i, g := range ts.tips {
				if g > res.tips[i] {
					res.tips[i] = g
				}
			}
			continue
		}
		for i, id := range ts.book.IDs() {
			j, ok := book.Index(id)
			if ok && ts.tips[i] > res.tips[j] {
				res.tips[j] = ts.tips[i]
			}
		}
	}
	return res
}

// AdvancedNodes returns the nodes for which other records a higher
// generation than t.
func (t *Tipset) AdvancedNodes(other *Tipset) []addressbook.NodeID {
	var res []addressbook.NodeID
	for _, id := range t.book.IDs() {
		if other.Get(id) > t.Get(id) {
			res = append(res, id)
		}
	}
	return res
}

// Equal reports whether both tipsets hold the same generations for the same
// nodes.
func (t *Tipset) Equal(other *Tipset) bool {
	if other == nil || len(t.tips) != len(other.tips) {
		return false
	}
	for _, id := range t.book.IDs() {
		if !other.book.Contains(id) || t.Get(id) != other.Get(id) {
			return false
		}
	}
	return true
}

// String returns the tipset as "[id:gen ...]".
func (t *Tipset) String() string {
	parts := make([]string, 0, len(t.tips))
	for i, id := range t.book.IDs() {
		parts = append(parts, fmt.Sprintf("%d:%d", id, t.tips[i]))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (t *Tipset) copy() *Tipset {
	tips := make([]uint64, len(t.tips))
	copy(tips, t.tips)
	return &Tipset{book: t.book, tips: tips}
}
