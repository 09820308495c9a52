package hashgraph

import (
	"sort"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/ugorji/go/codec"
)

// RoundEvent records how an event created in a round was classified.
type RoundEvent struct {
	Witness bool
	Famous  common.Trilean
}

// RoundInfo summarises a round: the events created in it, the fame of its
// witnesses, and once finalized the events it received in consensus order.
type RoundInfo struct {
	Events              map[string]RoundEvent
	ReceivedEvents      []string
	MinFamousGeneration uint64
	Finalized           bool
}

// NewRoundInfo creates an empty RoundInfo.
func NewRoundInfo() *RoundInfo {
	return &RoundInfo{
		Events: make(map[string]RoundEvent),
	}
}

// Copy returns a deep copy of r.
func (r *RoundInfo) Copy() *RoundInfo {
	res := &RoundInfo{
		Events:              make(map[string]RoundEvent, len(r.Events)),
		ReceivedEvents:      append([]string(nil), r.ReceivedEvents...),
		MinFamousGeneration: r.MinFamousGeneration,
		Finalized:           r.Finalized,
	}
	for x, e := range r.Events {
		res.Events[x] = e
	}
	return res
}

// AddCreatedEvent records an event whose round is this one.
func (r *RoundInfo) AddCreatedEvent(x string, witness bool) {
	if _, ok := r.Events[x]; !ok {
		r.Events[x] = RoundEvent{Witness: witness}
	}
}

// SetFame records the fame of a witness.
func (r *RoundInfo) SetFame(x string, famous bool) {
	e := r.Events[x]
	e.Witness = true
	e.Famous = common.FromBool(famous)
	r.Events[x] = e
}

// Witnesses returns the witnesses sorted by hash.
func (r *RoundInfo) Witnesses() []string {
	res := []string{}
	for x, e := range r.Events {
		if e.Witness {
			res = append(res, x)
		}
	}
	sort.Strings(res)
	return res
}

// FamousWitnesses returns the famous witnesses sorted by hash.
func (r *RoundInfo) FamousWitnesses() []string {
	res := []string{}
	for x, e := range r.Events {
		if e.Witness && e.Famous == common.True {
			res = append(res, x)
		}
	}
	sort.Strings(res)
	return res
}

// IsDecided reports whether x is a witness with decided fame.
func (r *RoundInfo) IsDecided(x string) bool {
	e, ok := r.Events[x]
	return ok && e.Witness && e.Famous != common.Undefined
}

// WitnessesDecided returns true if no witness's fame is left undefined.
func (r *RoundInfo) WitnessesDecided() bool {
	for _, e := range r.Events {
		if e.Witness && e.Famous == common.Undefined {
			return false
		}
	}
	return true
}

// Marshal returns the canonical JSON encoding.
func (r *RoundInfo) Marshal() ([]byte, error) {
	var b []byte
	enc := codec.NewEncoderBytes(&b, jsonHandle())
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return b, nil
}

// Unmarshal decodes the output of Marshal.
func (r *RoundInfo) Unmarshal(data []byte) error {
	dec := codec.NewDecoderBytes(data, jsonHandle())
	if err := dec.Decode(r); err != nil {
		return err
	}
	if r.Events == nil {
		r.Events = make(map[string]RoundEvent)
	}
	return nil
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}
