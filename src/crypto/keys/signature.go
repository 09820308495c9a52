package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Sign signs a hash with the private key.
func Sign(priv *ecdsa.PrivateKey, hash []byte) (r, s *big.Int, err error) {
	return ecdsa.Sign(rand.Reader, priv, hash)
}

// Verify checks a signature produced by Sign.
func Verify(pub *ecdsa.PublicKey, hash []byte, r, s *big.Int) bool {
	return ecdsa.Verify(pub, hash, r, s)
}

// EncodeSignature returns the base-36 "r|s" form of a signature.
func EncodeSignature(r, s *big.Int) string {
	return fmt.Sprintf("%s|%s", r.Text(36), s.Text(36))
}

// DecodeSignature parses the output of EncodeSignature.
func DecodeSignature(sig string) (r, s *big.Int, err error) {
	values := strings.Split(sig, "|")
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("wrong number of values in signature: got %d, want 2", len(values))
	}
	r, okR := new(big.Int).SetString(values[0], 36)
	s, okS := new(big.Int).SetString(values[1], 36)
	if !okR || !okS {
		return nil, nil, fmt.Errorf("malformed signature %q", sig)
	}
	return r, s, nil
}
