package tipset

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/observer"
	"github.com/sirupsen/logrus"
)

const initialTipsetMapCapacity = 64

// ErrWindowRegression is returned by SetWindow when asked to move the window
// backwards.
var ErrWindowRegression = errors.New("non-ancient event window regression")

// Tracker computes and stores the tipset of every non-ancient event, keyed by
// the event's sequence key so that advancing the window evicts in bulk.
type Tracker struct {
	book     *addressbook.AddressBook
	mode     event.AncientMode
	window   event.Window
	tipsets  *common.SequenceMap[event.Descriptor, *Tipset]
	latest   *Tipset
	observer observer.Observer
	logger   *logrus.Entry
}

// NewTracker creates a Tracker in the genesis window of mode.
func NewTracker(book *addressbook.AddressBook,
	mode event.AncientMode,
	obs observer.Observer,
	logger *logrus.Entry) *Tracker {

	if obs == nil {
		obs = observer.Nop{}
	}
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	window := event.GenesisWindow(mode)

	return &Tracker{
		book:     book,
		mode:     mode,
		window:   window,
		tipsets:  common.NewSequenceMap[event.Descriptor, *Tipset](window.AncientThreshold, initialTipsetMapCapacity),
		latest:   New(book),
		observer: obs,
		logger:   logger.WithField("component", "tipset-tracker"),
	}
}

// SetWindow moves the tracker to w and evicts the tipsets that became
// ancient. Setting the current window again does nothing.
func (t *Tracker) SetWindow(w event.Window) error {
	if err := t.window.CheckAdvance(w); err != nil {
		return fmt.Errorf("%w: %v", ErrWindowRegression, err)
	}

	t.window = w
	evicted := t.tipsets.ShiftWindow(w.AncientThreshold)

	if len(evicted) > 0 {
		t.logger.WithFields(logrus.Fields{
			"window":  w.String(),
			"evicted": len(evicted),
			"size":    t.tipsets.Size(),
		}).Debug("Shifted tipset window")
	}

	return nil
}

// Window returns the current window.
func (t *Tracker) Window() event.Window {
	return t.window
}

// AddEvent computes the tipset of an event from the tipsets of its parents,
// advanced at the event's own creator and generation. Parents that are not
// tracked are skipped.
//
// An event that is already ancient gets its tipset computed and returned but
// not stored, and does not count towards the latest tipset.
func (t *Tracker) AddEvent(d event.Descriptor, parents []event.Descriptor) *Tipset {
	parentTipsets := make([]*Tipset, 0, len(parents))
	for _, p := range parents {
		if ts, ok := t.tipsets.Get(p); ok {
			parentTipsets = append(parentTipsets, ts)
		}
	}

	ts := Merge(t.book, parentTipsets...).Advance(d.Creator, d.Generation)

	if t.window.IsAncient(d) {
		t.observer.AncientEventReceived(d, t.window)
		return ts
	}

	t.tipsets.Put(d, t.mode.SequenceKey(d), ts)
	t.latest = Merge(t.book, t.latest, ts)

	return ts
}

// GetTipset returns the tipset of an event, if it is tracked.
func (t *Tracker) GetTipset(d event.Descriptor) (*Tipset, bool) {
	return t.tipsets.Get(d)
}

// LatestTipset returns the merge of every tipset added so far.
func (t *Tracker) LatestTipset() *Tipset {
	return t.latest
}

// GetLatestGenerationForNode returns the highest generation observed for id.
func (t *Tracker) GetLatestGenerationForNode(id addressbook.NodeID) uint64 {
	return t.latest.Get(id)
}

// Size returns the number of tracked tipsets.
func (t *Tracker) Size() int {
	return t.tipsets.Size()
}

// Clear forgets everything and returns to the genesis window.
func (t *Tracker) Clear() {
	t.window = event.GenesisWindow(t.mode)
	t.tipsets.Clear(t.window.AncientThreshold)
	t.latest = New(t.book)
}
