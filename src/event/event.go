package event

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/crypto"
	"github.com/mosaicnetworks/swirl/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

/*******************************************************************************
Body
*******************************************************************************/

// Body contains the payload of an Event and the references tying it to other
// Events. Its canonical encoding is what gets hashed and signed.
type Body struct {
	Creator      addressbook.NodeID
	Generation   uint64
	BirthRound   uint64
	SelfParent   *Descriptor
	OtherParents []Descriptor
	TimeCreated  time.Time
	Transactions [][]byte
}

// Marshal returns the canonical JSON encoding of the Body.
func (b *Body) Marshal() ([]byte, error) {
	var bytes []byte
	enc := codec.NewEncoderBytes(&bytes, jsonHandle())
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return bytes, nil
}

// Hash returns the SHA256 hash of the canonical encoding.
func (b *Body) Hash() ([]byte, error) {
	data, err := b.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(data), nil
}

/*******************************************************************************
Event
*******************************************************************************/

// Event is the unit of the DAG. Events are immutable once built: the hash is
// computed by New or Unmarshal and nothing on an Event changes afterwards,
// except the Signature set by its creator before the Event is published.
type Event struct {
	Body      Body
	Signature string

	hash []byte
	hex  string
}

// New builds an Event. The generation is one more than the highest parent
// generation, or FirstGeneration when there are no parents.
func New(creator addressbook.NodeID,
	selfParent *Descriptor,
	otherParents []Descriptor,
	birthRound uint64,
	timeCreated time.Time,
	transactions [][]byte) *Event {

	gen := FirstGeneration
	if selfParent != nil && selfParent.Generation+1 > gen {
		gen = selfParent.Generation + 1
	}
	for _, op := range otherParents {
		if op.Generation+1 > gen {
			gen = op.Generation + 1
		}
	}

	var sp *Descriptor
	if selfParent != nil {
		c := *selfParent
		sp = &c
	}

	e := &Event{
		Body: Body{
			Creator:      creator,
			Generation:   gen,
			BirthRound:   birthRound,
			SelfParent:   sp,
			OtherParents: append([]Descriptor(nil), otherParents...),
			TimeCreated:  timeCreated.UTC(),
			Transactions: transactions,
		},
	}
	if err := e.computeHash(); err != nil {
		// Body only holds plain values; the encoder cannot fail on it.
		panic(fmt.Sprintf("encoding event body: %v", err))
	}
	return e
}

func (e *Event) computeHash() error {
	hash, err := e.Body.Hash()
	if err != nil {
		return err
	}
	e.hash = hash
	e.hex = common.EncodeToString(hash)
	return nil
}

// Hash returns the SHA256 hash of the body.
func (e *Event) Hash() []byte {
	return e.hash
}

// Hex returns the hex form of Hash, which is how events are keyed.
func (e *Event) Hex() string {
	return e.hex
}

// Creator returns the NodeID of the creator.
func (e *Event) Creator() addressbook.NodeID {
	return e.Body.Creator
}

// Generation returns the generation.
func (e *Event) Generation() uint64 {
	return e.Body.Generation
}

// BirthRound returns the birth round.
func (e *Event) BirthRound() uint64 {
	return e.Body.BirthRound
}

// TimeCreated returns the creator's claimed creation time.
func (e *Event) TimeCreated() time.Time {
	return e.Body.TimeCreated
}

// SelfParent returns the self-parent, nil for a creator's first event.
func (e *Event) SelfParent() *Descriptor {
	return e.Body.SelfParent
}

// OtherParents returns the other-parents.
func (e *Event) OtherParents() []Descriptor {
	return e.Body.OtherParents
}

// Parents returns all parents, self-parent first.
func (e *Event) Parents() []Descriptor {
	res := make([]Descriptor, 0, len(e.Body.OtherParents)+1)
	if e.Body.SelfParent != nil {
		res = append(res, *e.Body.SelfParent)
	}
	return append(res, e.Body.OtherParents...)
}

// Transactions returns the payload.
func (e *Event) Transactions() [][]byte {
	return e.Body.Transactions
}

// Descriptor returns the Descriptor other events use to reference this one.
func (e *Event) Descriptor() Descriptor {
	return Descriptor{
		Hash:       e.hex,
		Creator:    e.Body.Creator,
		Generation: e.Body.Generation,
		BirthRound: e.Body.BirthRound,
	}
}

// SequenceKey returns the sequence key under mode.
func (e *Event) SequenceKey(mode AncientMode) uint64 {
	return mode.SequenceKey(e.Descriptor())
}

// String returns the short form of the descriptor.
func (e *Event) String() string {
	return e.Descriptor().String()
}

// Sign signs the hash with the creator's private key.
func (e *Event) Sign(privKey *ecdsa.PrivateKey) error {
	r, s, err := keys.Sign(privKey, e.hash)
	if err != nil {
		return err
	}
	e.Signature = keys.EncodeSignature(r, s)
	return nil
}

// Verify checks the signature against the creator's public key.
func (e *Event) Verify(pubKey *ecdsa.PublicKey) (bool, error) {
	r, s, err := keys.DecodeSignature(e.Signature)
	if err != nil {
		return false, err
	}
	return keys.Verify(pubKey, e.hash, r, s), nil
}

type eventWrapper struct {
	Body      Body
	Signature string
}

// Marshal returns the canonical encoding of the body and signature.
func (e *Event) Marshal() ([]byte, error) {
	var bytes []byte
	enc := codec.NewEncoderBytes(&bytes, jsonHandle())
	if err := enc.Encode(eventWrapper{Body: e.Body, Signature: e.Signature}); err != nil {
		return nil, err
	}
	return bytes, nil
}

// Unmarshal decodes the output of Marshal and recomputes the hash.
func (e *Event) Unmarshal(data []byte) error {
	var w eventWrapper
	dec := codec.NewDecoderBytes(data, jsonHandle())
	if err := dec.Decode(&w); err != nil {
		return err
	}
	e.Body = w.Body
	e.Signature = w.Signature
	return e.computeHash()
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}
