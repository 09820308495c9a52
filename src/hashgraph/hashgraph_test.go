package hashgraph

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/mosaicnetworks/swirl/src/addressbook"
	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/sirupsen/logrus"
)

var (
	cacheSize = 1000
	baseTime  = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	creators  = map[string]addressbook.NodeID{"A": 1, "B": 2, "C": 3, "D": 4}
)

type play struct {
	creator      string
	name         string
	selfParent   string
	otherParents []string
	seconds      int
}

func testLogger(t testing.TB) *logrus.Entry {
	return logrus.NewEntry(common.NewTestLogger(t))
}

func testBook() *addressbook.AddressBook {
	return addressbook.NewUniform([]addressbook.NodeID{1, 2, 3, 4}, 25)
}

// buildEvents creates the events of a play table, in order.
func buildEvents(plays []play) (map[string]*event.Event, []*event.Event) {
	byName := make(map[string]*event.Event)
	ordered := []*event.Event{}

	for _, p := range plays {
		var sp *event.Descriptor
		if p.selfParent != "" {
			d := byName[p.selfParent].Descriptor()
			sp = &d
		}
		ops := []event.Descriptor{}
		for _, op := range p.otherParents {
			ops = append(ops, byName[op].Descriptor())
		}
		ev := event.New(creators[p.creator],
			sp,
			ops,
			0,
			baseTime.Add(time.Duration(p.seconds)*time.Second),
			[][]byte{[]byte(p.name)})
		byName[p.name] = ev
		ordered = append(ordered, ev)
	}

	return byName, ordered
}

/*
Round 0 is decided once round 1 has enough witnesses.

 r1:  D1   A2   B2   C2
      |    |    |    |
 r0:  A1-B1-C1 ... (see plays)
      A0   B0   C0   D0
*/
func scenarioPlays() []play {
	return []play{
		{"A", "A0", "", nil, 1},
		{"B", "B0", "", nil, 2},
		{"C", "C0", "", nil, 3},
		{"D", "D0", "", nil, 4},
		{"A", "A1", "A0", []string{"B0"}, 5},
		{"B", "B1", "B0", []string{"A1", "C0"}, 6},
		{"C", "C1", "C0", []string{"B1", "D0"}, 7},
		{"D", "D1", "D0", []string{"C1", "B1"}, 8},
		{"A", "A2", "A1", []string{"D1", "C1"}, 9},
		{"B", "B2", "B1", []string{"A2", "D1"}, 10},
		{"C", "C2", "C1", []string{"B2", "A2"}, 11},
	}
}

type committed struct {
	rounds []int
	events []*ConsensusEvent
}

func (c *committed) callback(round int, events []*ConsensusEvent) error {
	c.rounds = append(c.rounds, round)
	c.events = append(c.events, events...)
	return nil
}

func initHashgraph(t *testing.T, plays []play) (*Hashgraph, map[string]*event.Event, *committed) {
	byName, ordered := buildEvents(plays)
	c := &committed{}

	h := NewHashgraph(DefaultConfig(),
		testBook(),
		NewInmemStore(cacheSize),
		nil,
		c.callback,
		testLogger(t))

	for i, ev := range ordered {
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatalf("inserting event %d (%s): %v", i, plays[i].name, err)
		}
	}

	return h, byName, c
}

type ancestryItem struct {
	descendant, ancestor string
	val                  bool
}

func TestAncestor(t *testing.T) {
	h, index, _ := initHashgraph(t, scenarioPlays())

	expected := []ancestryItem{
		{"A1", "A0", true},
		{"A1", "B0", true},
		{"B1", "A0", true},
		{"C1", "D0", true},
		{"D1", "A1", true},
		{"C2", "D0", true},
		{"A0", "A0", true},
		{"A1", "C0", false},
		{"B1", "D0", false},
		{"A0", "A1", false},
		{"D1", "A2", false},
	}

	for _, exp := range expected {
		a := h.ancestor(index[exp.descendant].Hex(), index[exp.ancestor].Hex())
		if a != exp.val {
			t.Fatalf("ancestor(%s, %s) should be %v, not %v", exp.descendant, exp.ancestor, exp.val, a)
		}
	}
}

func TestStronglySee(t *testing.T) {
	h, index, _ := initHashgraph(t, scenarioPlays())

	expected := []ancestryItem{
		{"C1", "A0", true},
		{"C1", "B0", true},
		{"C1", "C0", false},
		{"C1", "D0", false},
		{"D1", "A0", true},
		{"D1", "C0", true},
		{"D1", "D0", false},
		{"A2", "D0", true},
		{"B1", "A0", false},
		{"C2", "D1", true},
		{"C2", "A2", true},
		{"C2", "B2", false},
	}

	for _, exp := range expected {
		a := h.stronglySee(index[exp.descendant].Hex(), index[exp.ancestor].Hex())
		if a != exp.val {
			t.Fatalf("stronglySee(%s, %s) should be %v, not %v", exp.descendant, exp.ancestor, exp.val, a)
		}
	}
}

func TestRoundAndWitness(t *testing.T) {
	h, index, _ := initHashgraph(t, scenarioPlays())

	expected := []struct {
		name    string
		round   int
		witness bool
	}{
		{"A0", 0, true},
		{"B0", 0, true},
		{"C0", 0, true},
		{"D0", 0, true},
		{"A1", 0, false},
		{"B1", 0, false},
		{"C1", 0, false},
		{"D1", 1, true},
		{"A2", 1, true},
		{"B2", 1, true},
		{"C2", 1, true},
	}

	for _, exp := range expected {
		x := index[exp.name].Hex()
		r, ok := h.Round(x)
		if !ok {
			t.Fatalf("%s should have a round", exp.name)
		}
		if r != exp.round {
			t.Fatalf("%s round should be %d, not %d", exp.name, exp.round, r)
		}
		if w := h.IsWitness(x); w != exp.witness {
			t.Fatalf("%s witness should be %v, not %v", exp.name, exp.witness, w)
		}
	}
}

func TestDecideFame(t *testing.T) {
	h, index, _ := initHashgraph(t, scenarioPlays())

	ri, ok := h.GetRoundInfo(0)
	if !ok {
		t.Fatal("round 0 should be known")
	}

	for _, name := range []string{"A0", "B0", "C0", "D0"} {
		e := ri.Events[index[name].Hex()]
		if !e.Witness {
			t.Fatalf("%s should be a witness", name)
		}
		if e.Famous != common.True {
			t.Fatalf("%s should be famous, not %v", name, e.Famous)
		}
	}

	if !ri.WitnessesDecided() {
		t.Fatal("round 0 witnesses should be decided")
	}

	ri1, _ := h.GetRoundInfo(1)
	if ri1.WitnessesDecided() {
		t.Fatal("round 1 witnesses should not be decided")
	}
}

func TestUndecidedCounter(t *testing.T) {
	plays := scenarioPlays()
	byName, ordered := buildEvents(plays)

	obs := &fameRecorder{}
	h := NewHashgraph(DefaultConfig(), testBook(), NewInmemStore(cacheSize), obs, nil, testLogger(t))

	for i, ev := range ordered {
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatalf("inserting %s: %v", plays[i].name, err)
		}
		// round 0 stays open until the last round-1 witness arrives
		if plays[i].name == "B2" && len(obs.finalized) != 0 {
			t.Fatalf("round 0 should not be finalized after B2")
		}
	}

	if len(obs.decided) != 4 {
		t.Fatalf("4 fame decisions expected, got %d", len(obs.decided))
	}
	for _, d := range obs.decided {
		if d.votingRounds != 1 {
			t.Fatalf("fame of %s should be decided in 1 voting round, not %d", d.witness, d.votingRounds)
		}
	}

	// D0 is the last one decided, only C2 tips the vote
	last := obs.decided[len(obs.decided)-1]
	if last.witness.Hash != byName["D0"].Hex() {
		t.Fatalf("last decided witness should be D0, not %s", last.witness)
	}

	if len(obs.finalized) != 1 || obs.finalized[0] != 0 {
		t.Fatalf("round 0 should be finalized exactly once, got %v", obs.finalized)
	}
	if _, ok := h.undecided[0]; ok {
		t.Fatal("undecided counter of round 0 should be gone")
	}
}

func TestProcessDecidedRounds(t *testing.T) {
	h, index, c := initHashgraph(t, scenarioPlays())

	if len(c.rounds) != 1 || c.rounds[0] != 0 {
		t.Fatalf("commit callback should have been called for round 0 only, got %v", c.rounds)
	}

	expectedOrder := []string{"A0", "B0", "C0", "D0"}
	if len(c.events) != len(expectedOrder) {
		t.Fatalf("%d consensus events expected, got %d", len(expectedOrder), len(c.events))
	}

	for i, name := range expectedOrder {
		ce := c.events[i]
		if ce.Event.Hex() != index[name].Hex() {
			t.Fatalf("consensus event %d should be %s, not %s", i, name, ce.Event)
		}
		if ce.Index != uint64(i) {
			t.Fatalf("consensus event %d has index %d", i, ce.Index)
		}
		if ce.RoundReceived != 0 {
			t.Fatalf("%s round received should be 0, not %d", name, ce.RoundReceived)
		}
		if !ce.Timestamp.Equal(index[name].TimeCreated()) {
			t.Fatalf("%s timestamp should be %v, not %v", name, index[name].TimeCreated(), ce.Timestamp)
		}
		if rr := h.RoundReceived(index[name].Hex()); rr != 0 {
			t.Fatalf("%s round received should be 0, not %d", name, rr)
		}
	}

	if rr := h.RoundReceived(index["A1"].Hex()); rr != event.NoConsensusRound {
		t.Fatalf("A1 should not have a round received yet, got %d", rr)
	}

	if w := h.Window(); w.LatestConsensusRound != 0 {
		t.Fatalf("latest consensus round should be 0, not %d", w.LatestConsensusRound)
	}
	if h.Store.ConsensusEventCount() != 4 {
		t.Fatalf("store should hold 4 consensus events, not %d", h.Store.ConsensusEventCount())
	}
	if h.Store.LastRound() != 0 {
		t.Fatalf("store last round should be 0, not %d", h.Store.LastRound())
	}

	ri, err := h.Store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if !ri.Finalized || len(ri.ReceivedEvents) != 4 || ri.MinFamousGeneration != event.FirstGeneration {
		t.Fatalf("unexpected round 0 info: %+v", ri)
	}
}

func TestStoredRoundUnchanged(t *testing.T) {
	h, index, _ := initHashgraph(t, scenarioPlays())

	stored, err := h.Store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	before, err := stored.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	storedEvents := len(stored.Events)

	// events of an unknown creator citing A0 keep landing in round 0
	a0 := index["A0"].Descriptor()
	var sp *event.Descriptor
	for i := 0; i < 50; i++ {
		ev := event.New(99, sp, []event.Descriptor{a0}, 0, baseTime.Add(time.Duration(i)*time.Millisecond), nil)
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatalf("inserting event %d: %v", i, err)
		}
		d := ev.Descriptor()
		sp = &d
	}

	live, _ := h.GetRoundInfo(0)
	if len(live.Events) != storedEvents+50 {
		t.Fatalf("round 0 should have %d events, not %d", storedEvents+50, len(live.Events))
	}

	ri, err := h.Store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	after, err := ri.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("finalized round 0 changed in the store:\n%s\n%s", before, after)
	}
}

func TestCommitFailure(t *testing.T) {
	errClosed := errors.New("consensus queue closed")
	_, ordered := buildEvents(scenarioPlays())

	calls := 0
	h := NewHashgraph(DefaultConfig(),
		testBook(),
		NewInmemStore(cacheSize),
		nil,
		func(int, []*ConsensusEvent) error {
			calls++
			return errClosed
		},
		testLogger(t))

	var err error
	for _, ev := range ordered {
		if err = h.InsertEventAndRunConsensus(ev); err != nil {
			break
		}
	}

	if !IsInvariantViolation(err) {
		t.Fatalf("a failed commit should be an invariant violation, got %v", err)
	}
	if !errors.Is(err, errClosed) {
		t.Fatalf("the violation should wrap the callback error, got %v", err)
	}

	// the round is finalized and indexed all the same
	if w := h.Window(); w.LatestConsensusRound != 0 {
		t.Fatalf("latest consensus round should be 0, not %d", w.LatestConsensusRound)
	}
	if h.Store.ConsensusEventCount() != 4 {
		t.Fatalf("store should hold 4 consensus events, not %d", h.Store.ConsensusEventCount())
	}
	if _, ok := h.pendingRounds.Get(0); ok {
		t.Fatal("round 0 should have left the pending queue")
	}

	// running consensus again neither finalizes nor delivers round 0 twice
	if err := h.RunConsensus(); err != nil {
		t.Fatalf("running consensus again: %v", err)
	}
	if calls != 1 {
		t.Fatalf("commit callback should have been called once, not %d", calls)
	}
}

func TestConsensusTimestampIncrement(t *testing.T) {
	plays := scenarioPlays()
	// all genesis events claim the same time
	for i := 0; i < 4; i++ {
		plays[i].seconds = 1
	}

	_, index, c := initHashgraph(t, plays)

	if len(c.events) != 4 {
		t.Fatalf("4 consensus events expected, got %d", len(c.events))
	}

	// equal medians are ordered by creator
	for i, name := range []string{"A0", "B0", "C0", "D0"} {
		if c.events[i].Event.Hex() != index[name].Hex() {
			t.Fatalf("consensus event %d should be %s", i, name)
		}
		expected := baseTime.Add(time.Second + time.Duration(i)*DefaultMinTimestampIncrement)
		if !c.events[i].Timestamp.Equal(expected) {
			t.Fatalf("consensus event %d timestamp should be %v, not %v", i, expected, c.events[i].Timestamp)
		}
	}
}

func TestInsertEvent(t *testing.T) {
	h, index, _ := initHashgraph(t, scenarioPlays())

	t.Run("Duplicate", func(t *testing.T) {
		err := h.InsertEvent(index["B1"])
		if !common.IsStore(err, common.KeyAlreadyExists) {
			t.Fatalf("inserting B1 twice should fail with KeyAlreadyExists, got %v", err)
		}
	})

	t.Run("Unknown creator", func(t *testing.T) {
		ev := event.New(99, nil, nil, 0, baseTime, nil)
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatal(err)
		}
		if h.IsWitness(ev.Hex()) {
			t.Fatal("event of unknown creator should not be a witness")
		}
	})

	t.Run("Late witness", func(t *testing.T) {
		ev := event.New(4, nil, nil, 0, baseTime, [][]byte{[]byte("late")})
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatal(err)
		}
		if !h.IsWitness(ev.Hex()) {
			t.Fatal("event should be a witness")
		}
		ri, _ := h.GetRoundInfo(0)
		if f := ri.Events[ev.Hex()].Famous; f != common.False {
			t.Fatalf("late witness should not be famous, got %v", f)
		}
	})

	t.Run("Foreign self-parent", func(t *testing.T) {
		sp := index["A2"].Descriptor()
		ev := event.New(2, &sp, nil, 0, baseTime, nil)
		err := h.InsertEvent(ev)
		if err == nil {
			t.Fatal("self-parent by another creator should be rejected")
		}
	})
}

// chainEvents builds a round-robin gossip: every event takes the previous
// event as other-parent.
func chainEvents(h *Hashgraph, count int, t *testing.T) {
	ids := h.AddressBook().IDs()
	var prev *event.Descriptor
	heads := make(map[addressbook.NodeID]*event.Descriptor)

	for k := 0; k < count; k++ {
		creator := ids[k%len(ids)]
		ops := []event.Descriptor{}
		if prev != nil {
			ops = append(ops, *prev)
		}
		ev := event.New(creator,
			heads[creator],
			ops,
			uint64(h.Window().PendingRound()),
			baseTime.Add(time.Duration(k)*time.Millisecond),
			nil)
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatalf("inserting event %d: %v", k, err)
		}
		d := ev.Descriptor()
		heads[creator] = &d
		prev = &d
	}
}

func checkConsensusOrder(t *testing.T, events []*ConsensusEvent) {
	seen := make(map[string]bool)
	for i, ce := range events {
		if ce.Index != uint64(i) {
			t.Fatalf("consensus event %d has index %d", i, ce.Index)
		}
		if i > 0 && !ce.Timestamp.After(events[i-1].Timestamp) {
			t.Fatalf("consensus timestamp %d does not increase", i)
		}
		if i > 0 && ce.RoundReceived < events[i-1].RoundReceived {
			t.Fatalf("round received decreases at %d", i)
		}
		if seen[ce.Event.Hex()] {
			t.Fatalf("event %s received twice", ce.Event)
		}
		seen[ce.Event.Hex()] = true
	}
}

func TestWindowAdvance(t *testing.T) {
	for _, mode := range []event.AncientMode{event.GenerationThreshold, event.BirthRoundThreshold} {
		t.Run(mode.String(), func(t *testing.T) {
			conf := DefaultConfig()
			conf.AncientMode = mode
			conf.RoundsNonAncient = 3

			c := &committed{}
			h := NewHashgraph(conf, testBook(), NewInmemStore(cacheSize), nil, c.callback, testLogger(t))

			count := 400
			chainEvents(h, count, t)

			checkConsensusOrder(t, c.events)

			w := h.Window()
			if w.LatestConsensusRound < 5 {
				t.Fatalf("latest consensus round should be at least 5, not %d", w.LatestConsensusRound)
			}
			if w.AncientThreshold <= mode.GenesisThreshold() {
				t.Fatalf("ancient threshold should have moved, window %s", w)
			}
			if h.Tracker().Window() != w {
				t.Fatalf("tracker window %s should be %s", h.Tracker().Window(), w)
			}
			stats := h.Stats()
			if stats.ArenaEvents >= count {
				t.Fatalf("ancient events should have been evicted, arena holds %d", stats.ArenaEvents)
			}
			if stats.ConsensusEvents != uint64(len(c.events)) {
				t.Fatalf("stats report %d consensus events, callback got %d", stats.ConsensusEvents, len(c.events))
			}
			for r := range h.rounds {
				if r < w.LatestConsensusRound-conf.RoundsNonAncient+1 {
					t.Fatalf("round %d should have been evicted", r)
				}
			}
		})
	}
}

func TestMiddleBit(t *testing.T) {
	if middleBit("0X0000000000") {
		t.Fatal("middle bit of zero hash should be false")
	}
	if !middleBit("0X0000FF0000") {
		t.Fatal("middle bit should be true")
	}
}

func TestInvariantError(t *testing.T) {
	c := &CandidateWitness{Round: 3}
	if changed, err := c.decide(true); !changed || err != nil {
		t.Fatalf("first decision should succeed, got %v %v", changed, err)
	}
	if changed, err := c.decide(true); changed || err != nil {
		t.Fatalf("same decision should be a no-op, got %v %v", changed, err)
	}
	_, err := c.decide(false)
	if !IsInvariantViolation(err) {
		t.Fatalf("conflicting decision should be an invariant violation, got %v", err)
	}
}

//------------------------------------------------------------------------------

type fameDecision struct {
	round        int
	witness      event.Descriptor
	famous       bool
	votingRounds int
}

type fameRecorder struct {
	decided   []fameDecision
	finalized []int
}

func (f *fameRecorder) AncientEventReceived(event.Descriptor, event.Window) {}

func (f *fameRecorder) WitnessFameDecided(round int, witness event.Descriptor, famous bool, votingRounds int) {
	f.decided = append(f.decided, fameDecision{round, witness, famous, votingRounds})
}

func (f *fameRecorder) RoundFinalized(round int, received int, w event.Window) {
	f.finalized = append(f.finalized, round)
}

func (f *fameRecorder) find(hash string) (fameDecision, bool) {
	for _, d := range f.decided {
		if d.witness.Hash == hash {
			return d, true
		}
	}
	return fameDecision{}, false
}
