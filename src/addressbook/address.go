package addressbook

import (
	"fmt"
	"strings"

	"github.com/mosaicnetworks/swirl/src/common"
)

// NodeID identifies a creator of events for the duration of an address book
// epoch.
type NodeID uint64

// Address describes one node of the address book.
type Address struct {
	ID        NodeID `json:"id,omitempty"`
	PubKeyHex string `json:"pub_key,omitempty"`
	NetAddr   string `json:"net_addr,omitempty"`
	Moniker   string `json:"moniker,omitempty"`
	Weight    uint64 `json:"weight"`
}

// NewAddress creates an Address whose ID is derived from its public key.
func NewAddress(pubKeyHex, netAddr, moniker string, weight uint64) (*Address, error) {
	a := &Address{
		PubKeyHex: normalizePubKeyHex(pubKeyHex),
		NetAddr:   netAddr,
		Moniker:   moniker,
		Weight:    weight,
	}
	if err := a.computeID(); err != nil {
		return nil, err
	}
	return a, nil
}

// PubKeyBytes decodes the public key.
func (a *Address) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(a.PubKeyHex)
}

// String returns the moniker if there is one, the numeric ID otherwise.
func (a *Address) String() string {
	if a.Moniker != "" {
		return a.Moniker
	}
	return fmt.Sprintf("%d", a.ID)
}

func (a *Address) computeID() error {
	pub, err := a.PubKeyBytes()
	if err != nil {
		return err
	}
	a.ID = NodeID(common.Hash32(pub))
	return nil
}

// normalizePubKeyHex standardises public key strings to the 0X prefixed
// uppercase form produced by keys.PublicKeyHex.
func normalizePubKeyHex(s string) string {
	if s == "" {
		return s
	}
	upper := strings.ToUpper(s)
	return "0X" + strings.TrimPrefix(upper, "0X")
}
