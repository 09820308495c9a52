// Package observer carries diagnostics out of the consensus core.
//
// The core never logs or records metrics on its own account for the three
// conditions below; it reports them to the Observer it was built with.
// Observers must not block and must not call back into the core.
package observer

import (
	"github.com/mosaicnetworks/swirl/src/event"
)

// Observer receives notifications from the consensus core.
type Observer interface {
	// AncientEventReceived is called when an event below the ancient
	// threshold reaches the tipset tracker.
	AncientEventReceived(d event.Descriptor, w event.Window)

	// WitnessFameDecided is called once per witness when its fame is decided.
	// votingRounds is how many rounds after the witness's own round the
	// decision took.
	WitnessFameDecided(round int, witness event.Descriptor, famous bool, votingRounds int)

	// RoundFinalized is called when a round's received events have been
	// ordered and emitted, with the window that results.
	RoundFinalized(round int, received int, w event.Window)
}

// Nop is an Observer that ignores everything.
type Nop struct{}

// AncientEventReceived implements Observer.
func (Nop) AncientEventReceived(event.Descriptor, event.Window) {}

// WitnessFameDecided implements Observer.
func (Nop) WitnessFameDecided(int, event.Descriptor, bool, int) {}

// RoundFinalized implements Observer.
func (Nop) RoundFinalized(int, int, event.Window) {}

// Multi fans notifications out to several observers in order.
type Multi []Observer

// AncientEventReceived implements Observer.
func (m Multi) AncientEventReceived(d event.Descriptor, w event.Window) {
	for _, o := range m {
		o.AncientEventReceived(d, w)
	}
}

// WitnessFameDecided implements Observer.
func (m Multi) WitnessFameDecided(round int, witness event.Descriptor, famous bool, votingRounds int) {
	for _, o := range m {
		o.WitnessFameDecided(round, witness, famous, votingRounds)
	}
}

// RoundFinalized implements Observer.
func (m Multi) RoundFinalized(round int, received int, w event.Window) {
	for _, o := range m {
		o.RoundFinalized(round, received, w)
	}
}
