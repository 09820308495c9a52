package node

import (
	"crypto/ecdsa"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/crypto/keys"
)

// Validator struct holds information about the validator for a node
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id       addressbook.NodeID
	pubBytes []byte
	pubHex   string
}

// NewValidator is a factory method for a Validator
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
	}
}

// ID returns the NodeID of the validator, derived from its public key the same
// way the address book derives it.
func (v *Validator) ID() addressbook.NodeID {
	if v.id == 0 {
		v.id = addressbook.NodeID(keys.PublicKeyID(v.PublicKeyBytes()))
	}
	return v.id
}

// PublicKeyBytes returns the validator's public key as a byte array
func (v *Validator) PublicKeyBytes() []byte {
	if len(v.pubBytes) == 0 {
		v.pubBytes = keys.FromPublicKey(&v.Key.PublicKey)
	}
	return v.pubBytes
}

// PublicKeyHex returns the validator's public key as a hex string
func (v *Validator) PublicKeyHex() string {
	if len(v.pubHex) == 0 {
		v.pubHex = keys.PublicKeyHex(&v.Key.PublicKey)
	}
	return v.pubHex
}

// Address returns the address book entry of the validator.
func (v *Validator) Address(netAddr string, weight uint64) *addressbook.Address {
	return &addressbook.Address{
		ID:        v.ID(),
		PubKeyHex: v.PublicKeyHex(),
		NetAddr:   netAddr,
		Moniker:   v.Moniker,
		Weight:    weight,
	}
}
