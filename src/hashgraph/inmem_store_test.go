package hashgraph

import (
	"testing"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
)

func TestInmemEvents(t *testing.T) {
	store := NewInmemStore(cacheSize)
	_, ordered := buildEvents(scenarioPlays())

	t.Run("Store Events", func(t *testing.T) {
		for _, ev := range ordered {
			if err := store.SetEvent(ev); err != nil {
				t.Fatal(err)
			}
		}

		for k, ev := range ordered {
			rev, err := store.GetEvent(ev.Hex())
			if err != nil {
				t.Fatal(err)
			}
			if rev.Hex() != ev.Hex() {
				t.Fatalf("events[%d] should be %s, not %s", k, ev, rev)
			}
		}

		if err := store.SetEvent(ordered[0]); !common.IsStore(err, common.KeyAlreadyExists) {
			t.Fatalf("storing an event twice should fail with KeyAlreadyExists, got %v", err)
		}
	})

	t.Run("Topological Events", func(t *testing.T) {
		if store.EventCount() != len(ordered) {
			t.Fatalf("event count should be %d, not %d", len(ordered), store.EventCount())
		}

		events, err := store.TopologicalEvents(3, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 5 {
			t.Fatalf("5 events expected, got %d", len(events))
		}
		for i, ev := range events {
			if ev.Hex() != ordered[3+i].Hex() {
				t.Fatalf("topological event %d should be %s, not %s", 3+i, ordered[3+i], ev)
			}
		}
	})
}

func TestInmemTopologicalLimit(t *testing.T) {
	size := 5
	store := NewInmemStore(size)
	_, ordered := buildEvents(scenarioPlays())

	for _, ev := range ordered {
		if err := store.SetEvent(ev); err != nil {
			t.Fatal(err)
		}
	}

	if store.EventCount() != len(ordered) {
		t.Fatalf("event count should be %d, not %d", len(ordered), store.EventCount())
	}
	// trimmed back to size hashes at the 10th event
	if len(store.topo) != 6 || store.topoOffset != 5 {
		t.Fatalf("topological index should hold 6 hashes from 5, got %d from %d", len(store.topo), store.topoOffset)
	}

	if _, err := store.TopologicalEvents(0, 3); !common.IsStore(err, common.TooLate) {
		t.Fatalf("trimmed events should fail with TooLate, got %v", err)
	}
	if _, err := store.TopologicalEvents(5, 3); !common.IsStore(err, common.TooLate) {
		t.Fatalf("events evicted from the cache should fail with TooLate, got %v", err)
	}

	first := len(ordered) - size
	events, err := store.TopologicalEvents(first, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != size {
		t.Fatalf("%d events expected, got %d", size, len(events))
	}
	for i, ev := range events {
		if ev.Hex() != ordered[first+i].Hex() {
			t.Fatalf("topological event %d should be %s, not %s", first+i, ordered[first+i], ev)
		}
	}

	if events, _ := store.TopologicalEvents(len(ordered), 10); len(events) != 0 {
		t.Fatalf("no events expected past the last one, got %d", len(events))
	}
}

func TestInmemConsensusEvents(t *testing.T) {
	store := NewInmemStore(cacheSize)
	_, ordered := buildEvents(scenarioPlays())

	for i, ev := range ordered[:4] {
		ce := &ConsensusEvent{Event: ev, Index: uint64(i), Timestamp: ev.TimeCreated()}
		if err := store.AddConsensusEvent(ce); err != nil {
			t.Fatal(err)
		}
	}

	skipped := &ConsensusEvent{Event: ordered[5], Index: 6}
	if err := store.AddConsensusEvent(skipped); !common.IsStore(err, common.SkippedIndex) {
		t.Fatalf("skipping an index should fail with SkippedIndex, got %v", err)
	}

	if store.ConsensusEventCount() != 4 {
		t.Fatalf("consensus event count should be 4, not %d", store.ConsensusEventCount())
	}

	ce, err := store.GetConsensusEvent(2)
	if err != nil {
		t.Fatal(err)
	}
	if ce.Event.Hex() != ordered[2].Hex() {
		t.Fatalf("consensus event 2 should be %s, not %s", ordered[2], ce.Event)
	}

	if _, err := store.GetConsensusEvent(4); !common.IsStore(err, common.KeyNotFound) {
		t.Fatalf("consensus event 4 should not be found, got %v", err)
	}
}

func TestInmemRoundsAndWindow(t *testing.T) {
	store := NewInmemStore(cacheSize)

	if store.LastRound() != -1 {
		t.Fatalf("last round should be -1, not %d", store.LastRound())
	}

	ri := NewRoundInfo()
	ri.AddCreatedEvent("0XAA", true)
	ri.SetFame("0XAA", true)
	if err := store.SetRound(0, ri); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if fw := got.FamousWitnesses(); len(fw) != 1 || fw[0] != "0XAA" {
		t.Fatalf("famous witnesses should be [0XAA], not %v", fw)
	}

	// the store keeps its own copy
	ri.AddCreatedEvent("0XBB", false)
	ri.Finalized = true
	if got, _ := store.GetRound(0); len(got.Events) != 1 || got.Finalized {
		t.Fatalf("stored round should not change with the caller's copy, got %+v", got)
	}
	if store.LastRound() != 0 {
		t.Fatalf("last round should be 0, not %d", store.LastRound())
	}

	if _, err := store.GetWindow(); !common.IsStore(err, common.Empty) {
		t.Fatalf("window should be empty, got %v", err)
	}

	w := event.Window{LatestConsensusRound: 3, AncientThreshold: 2, Mode: event.BirthRoundThreshold}
	if err := store.SetWindow(w); err != nil {
		t.Fatal(err)
	}
	if gw, _ := store.GetWindow(); gw != w {
		t.Fatalf("window should be %s, not %s", w, gw)
	}
}
