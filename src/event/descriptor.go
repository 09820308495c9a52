package event

import (
	"fmt"

	"github.com/mosaicnetworks/swirl/src/addressbook"
)

// FirstGeneration is the generation of an event without parents.
const FirstGeneration uint64 = 1

// Descriptor identifies an event along with the fields used to sequence it.
type Descriptor struct {
	Hash       string
	Creator    addressbook.NodeID
	Generation uint64
	BirthRound uint64
}

// String returns a short human readable form.
func (d Descriptor) String() string {
	h := d.Hash
	if len(h) > 10 {
		h = h[:10]
	}
	return fmt.Sprintf("%s(c=%d,g=%d,br=%d)", h, d.Creator, d.Generation, d.BirthRound)
}
