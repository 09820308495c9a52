package hashgraph

import (
	"fmt"
	"sort"
	"time"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/sirupsen/logrus"
)

type receivedEvent struct {
	ev        *event.Event
	timestamp int64
}

// ProcessDecidedRounds finalizes the decided rounds at the front of the
// pending queue, in ascending order. It stops at the first undecided round.
func (h *Hashgraph) ProcessDecidedRounds() error {
	processed := []int{}
	defer func() {
		h.pendingRounds.Remove(processed)
	}()

	for _, pr := range h.pendingRounds.Ordered() {
		if !pr.Decided {
			break
		}
		fresh, err := h.finalizeRound(pr.Index)
		if err != nil {
			return err
		}
		processed = append(processed, pr.Index)
		if err := h.deliver(pr.Index, fresh); err != nil {
			return err
		}
	}

	return nil
}

// oldestSelfAncestorToSee walks down the self-parent chain of w and returns
// the earliest event that is still a descendant of x.
func (h *Hashgraph) oldestSelfAncestorToSee(w, x string) *event.Event {
	cur, _ := h.arena.Get(w)
	for {
		sp := cur.SelfParent()
		if sp == nil {
			return cur
		}
		parent, ok := h.arena.Get(sp.Hash)
		if !ok || !h.ancestor(sp.Hash, x) {
			return cur
		}
		cur = parent
	}
}

// finalizeRound assigns round received r to every undetermined event that is
// an ancestor of a famous witness of r, orders and indexes them, then moves
// the window forward. It returns the events that still have to be delivered.
func (h *Hashgraph) finalizeRound(r int) ([]*ConsensusEvent, error) {
	if r <= h.window.LatestConsensusRound {
		return nil, newInvariantError("round %d finalized after round %d", r, h.window.LatestConsensusRound)
	}

	ri := h.roundInfo(r)
	famous := ri.FamousWitnesses()

	received := []receivedEvent{}
	remaining := []string{}
	for _, x := range h.undeterminedEvents {
		ex, ok := h.arena.Get(x)
		if !ok {
			continue
		}

		times := []int64{}
		for _, w := range famous {
			if h.ancestor(w, x) {
				s := h.oldestSelfAncestorToSee(w, x)
				times = append(times, s.TimeCreated().UnixNano())
			}
		}

		if len(times) == 0 {
			remaining = append(remaining, x)
			continue
		}

		m := h.meta[x]
		if m.roundReceived != event.NoConsensusRound {
			return nil, newInvariantError("event %s received in round %d and again in round %d", ex, m.roundReceived, r)
		}
		m.roundReceived = r

		received = append(received, receivedEvent{
			ev:        ex,
			timestamp: common.Median(times),
		})
	}
	h.undeterminedEvents = remaining

	sort.Slice(received, func(i, j int) bool {
		a, b := received[i], received[j]
		if a.timestamp != b.timestamp {
			return a.timestamp < b.timestamp
		}
		if a.ev.Creator() != b.ev.Creator() {
			return a.ev.Creator() < b.ev.Creator()
		}
		return a.ev.Hex() < b.ev.Hex()
	})

	fresh := []*ConsensusEvent{}
	increment := h.conf.MinTimestampIncrement.Nanoseconds()
	for _, re := range received {
		ts := re.timestamp
		if h.consensusIndex > 0 && ts < h.lastConsensusTime+increment {
			ts = h.lastConsensusTime + increment
		}

		ce := &ConsensusEvent{
			Event:         re.ev,
			Index:         h.consensusIndex,
			Timestamp:     time.Unix(0, ts).UTC(),
			RoundReceived: r,
		}
		h.consensusIndex++
		h.lastConsensusTime = ts

		ri.ReceivedEvents = append(ri.ReceivedEvents, re.ev.Hex())

		if ce.Index < h.replayed {
			continue
		}
		if err := h.Store.AddConsensusEvent(ce); err != nil {
			return nil, err
		}
		fresh = append(fresh, ce)
	}

	ri.MinFamousGeneration = h.minGeneration(famous)
	ri.Finalized = true
	if err := h.Store.SetRound(r, ri); err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"round":           r,
		"famous":          len(famous),
		"received":        len(received),
		"consensus_index": h.consensusIndex,
	}).Debug("Round finalized")

	if err := h.advanceWindow(r); err != nil {
		return nil, err
	}

	h.observer.RoundFinalized(r, len(received), h.window)

	return fresh, nil
}

// deliver hands the new consensus events of round r to the commit callback.
// They are already indexed, so a failed delivery leaves a gap in the
// consensus stream that no later round can fill.
func (h *Hashgraph) deliver(r int, fresh []*ConsensusEvent) error {
	if len(fresh) == 0 || h.commitCallback == nil {
		return nil
	}
	if err := h.commitCallback(r, fresh); err != nil {
		h.logger.WithError(err).Error("Commit callback")
		return InvariantError{
			msg:   fmt.Sprintf("round %d: %d consensus events not delivered", r, len(fresh)),
			cause: err,
		}
	}
	return nil
}

func (h *Hashgraph) minGeneration(witnesses []string) uint64 {
	var min uint64
	for _, w := range witnesses {
		ew, ok := h.arena.Get(w)
		if !ok {
			continue
		}
		if min == 0 || ew.Generation() < min {
			min = ew.Generation()
		}
	}
	return min
}

// advanceWindow moves the window after round r is finalized, then evicts
// everything that became ancient.
func (h *Hashgraph) advanceWindow(r int) error {
	next := event.Window{
		LatestConsensusRound: r,
		AncientThreshold:     h.window.AncientThreshold,
		Mode:                 h.window.Mode,
	}

	ancientRound := r - h.conf.RoundsNonAncient + 1
	if ancientRound >= event.GenesisRound {
		var threshold uint64
		switch h.window.Mode {
		case event.BirthRoundThreshold:
			threshold = uint64(ancientRound)
		default:
			if ri, ok := h.rounds[ancientRound]; ok && ri.Finalized {
				threshold = ri.MinFamousGeneration
			}
		}
		if threshold > next.AncientThreshold {
			next.AncientThreshold = threshold
		}
	}

	if err := h.window.CheckAdvance(next); err != nil {
		return newInvariantError("%v", err)
	}
	if err := h.tracker.SetWindow(next); err != nil {
		return newInvariantError("%v", err)
	}
	h.window = next

	evicted := h.arena.ShiftWindow(next.AncientThreshold)
	for _, x := range evicted {
		delete(h.meta, x)
	}

	if len(evicted) > 0 {
		remaining := h.undeterminedEvents[:0]
		for _, x := range h.undeterminedEvents {
			if h.arena.Contains(x) {
				remaining = append(remaining, x)
			}
		}
		h.undeterminedEvents = remaining
	}

	for round := range h.rounds {
		if round < ancientRound {
			delete(h.rounds, round)
			h.elections.evict(round)
			delete(h.undecided, round)
		}
	}
	h.elections.evict(r)
	delete(h.undecided, r)

	if err := h.Store.SetWindow(next); err != nil {
		return err
	}

	if len(evicted) > 0 {
		h.logger.WithFields(logrus.Fields{
			"window":  next.String(),
			"evicted": len(evicted),
			"arena":   h.arena.Size(),
		}).Debug("Advanced window")
	}

	return nil
}
