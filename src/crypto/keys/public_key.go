package keys

import (
	"crypto/ecdsa"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/swirl/src/common"
)

// FromPublicKey returns the uncompressed form of a public key.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return (*btcec.PublicKey)(pub).SerializeUncompressed()
}

// ToPublicKey parses a public key in compressed or uncompressed form.
func ToPublicKey(pub []byte) (*ecdsa.PublicKey, error) {
	pk, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return nil, err
	}
	return pk.ToECDSA(), nil
}

// PublicKeyHex returns the 0X prefixed hex form of the uncompressed key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// PublicKeyID derives a short numeric identifier from the key bytes. Collisions
// are possible, so address books may set identifiers explicitly instead.
func PublicKeyID(pubBytes []byte) uint32 {
	return common.Hash32(pubBytes)
}
