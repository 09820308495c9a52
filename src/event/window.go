package event

import (
	"fmt"
)

// AncientMode selects the field used as sequence key.
type AncientMode int

const (
	// GenerationThreshold sequences events by generation.
	GenerationThreshold AncientMode = iota
	// BirthRoundThreshold sequences events by birth round.
	BirthRoundThreshold
)

// GenesisRound is the round of events without parents, and the birth round of
// events created before any round reached consensus.
const GenesisRound = 0

// NoConsensusRound is the LatestConsensusRound of a window before any round
// has been finalized.
const NoConsensusRound = -1

var ancientModes = map[AncientMode]string{
	GenerationThreshold: "generation",
	BirthRoundThreshold: "birth-round",
}

// String returns the configuration name of the mode.
func (m AncientMode) String() string {
	if s, ok := ancientModes[m]; ok {
		return s
	}
	return fmt.Sprintf("AncientMode(%d)", int(m))
}

// ParseAncientMode parses the configuration name of a mode.
func ParseAncientMode(s string) (AncientMode, error) {
	for m, name := range ancientModes {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown ancient mode %q, expected generation or birth-round", s)
}

// SequenceKey returns the field of d the mode orders and windows events by.
func (m AncientMode) SequenceKey(d Descriptor) uint64 {
	if m == BirthRoundThreshold {
		return d.BirthRound
	}
	return d.Generation
}

// GenesisThreshold is the lowest sequence key an event can have.
func (m AncientMode) GenesisThreshold() uint64 {
	if m == BirthRoundThreshold {
		return GenesisRound
	}
	return FirstGeneration
}

// Window is the non-ancient event window: events whose sequence key is below
// AncientThreshold are ancient. Windows only ever move forward.
type Window struct {
	LatestConsensusRound int
	AncientThreshold     uint64
	Mode                 AncientMode
}

// GenesisWindow is the window in effect before any round reaches consensus.
func GenesisWindow(mode AncientMode) Window {
	return Window{
		LatestConsensusRound: NoConsensusRound,
		AncientThreshold:     mode.GenesisThreshold(),
		Mode:                 mode,
	}
}

// IsAncient reports whether d is below the ancient threshold.
func (w Window) IsAncient(d Descriptor) bool {
	return w.Mode.SequenceKey(d) < w.AncientThreshold
}

// PendingRound is the first round not yet finalized. New events take it as
// their birth round.
func (w Window) PendingRound() int {
	return w.LatestConsensusRound + 1
}

// CheckAdvance returns an error if next would move the window backwards or
// switch modes.
func (w Window) CheckAdvance(next Window) error {
	if next.Mode != w.Mode {
		return fmt.Errorf("window mode changed from %s to %s", w.Mode, next.Mode)
	}
	if next.AncientThreshold < w.AncientThreshold {
		return fmt.Errorf("ancient threshold regressed from %d to %d", w.AncientThreshold, next.AncientThreshold)
	}
	if next.LatestConsensusRound < w.LatestConsensusRound {
		return fmt.Errorf("latest consensus round regressed from %d to %d", w.LatestConsensusRound, next.LatestConsensusRound)
	}
	return nil
}

// String returns a short human readable form.
func (w Window) String() string {
	return fmt.Sprintf("%s>=%d@r%d", w.Mode, w.AncientThreshold, w.LatestConsensusRound)
}
