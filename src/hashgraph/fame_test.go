package hashgraph

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/swirl/src/common"
	"github.com/mosaicnetworks/swirl/src/event"
)

// playSteps inserts the plays one at a time and runs the check registered
// under the name of each play right after it is inserted.
func playSteps(t *testing.T, conf Config, plays []play, obs *fameRecorder, checks map[string]func(h *Hashgraph)) (*Hashgraph, *committed) {
	_, ordered := buildEvents(plays)
	c := &committed{}

	h := NewHashgraph(conf, testBook(), NewInmemStore(cacheSize), obs, c.callback, testLogger(t))

	for i, ev := range ordered {
		if err := h.InsertEventAndRunConsensus(ev); err != nil {
			t.Fatalf("inserting %s: %v", plays[i].name, err)
		}
		if check, ok := checks[plays[i].name]; ok {
			check(h)
		}
	}

	return h, c
}

func checkFame(t *testing.T, obs *fameRecorder, byName map[string]*event.Event, name string, famous bool, votingRounds int) {
	d, ok := obs.find(byName[name].Hex())
	if !ok {
		t.Fatalf("fame of %s should be decided", name)
	}
	if d.famous != famous {
		t.Fatalf("%s famous should be %v, not %v", name, famous, d.famous)
	}
	if d.votingRounds != votingRounds {
		t.Fatalf("fame of %s should take %d voting rounds, not %d", name, votingRounds, d.votingRounds)
	}
}

/*
D0 is never seen by anyone. The round 1 witnesses vote it down directly.

      A    B    C    D
r1    A2   B2   C2
      |    |    |
r0    A1   B1   C1
      |    |    |
      A0   B0   C0   D0

other-parents:
  A1 <- B0
  B1 <- A1, C0
  C1 <- B1
  A2 <- C1
  B2 <- A2
  C2 <- B2
*/
func unseenWitnessPlays() []play {
	return []play{
		{"A", "A0", "", nil, 1},
		{"B", "B0", "", nil, 2},
		{"C", "C0", "", nil, 3},
		{"D", "D0", "", nil, 4},
		{"A", "A1", "A0", []string{"B0"}, 5},
		{"B", "B1", "B0", []string{"A1", "C0"}, 6},
		{"C", "C1", "C0", []string{"B1"}, 7},
		{"A", "A2", "A1", []string{"C1"}, 8},
		{"B", "B2", "B1", []string{"A2"}, 9},
		{"C", "C2", "C1", []string{"B2"}, 10},
	}
}

func TestFameNotFamous(t *testing.T) {
	plays := unseenWitnessPlays()
	byName, _ := buildEvents(plays)
	obs := &fameRecorder{}

	checks := map[string]func(h *Hashgraph){
		"B2": func(h *Hashgraph) {
			// two round 1 witnesses are not enough either way
			if n := h.undecided[0]; n != 4 {
				t.Fatalf("round 0 should have 4 undecided witnesses, not %d", n)
			}
			if len(obs.decided) != 0 {
				t.Fatalf("no fame should be decided after B2, got %d", len(obs.decided))
			}
		},
	}

	h, c := playSteps(t, DefaultConfig(), plays, obs, checks)

	for _, name := range []string{"A2", "B2", "C2"} {
		if r, _ := h.Round(byName[name].Hex()); r != 1 || !h.IsWitness(byName[name].Hex()) {
			t.Fatalf("%s should be a round 1 witness, round %d", name, r)
		}
	}

	if len(obs.decided) != 4 {
		t.Fatalf("4 fame decisions expected, got %d", len(obs.decided))
	}
	for _, name := range []string{"A0", "B0", "C0"} {
		checkFame(t, obs, byName, name, true, 1)
	}
	checkFame(t, obs, byName, "D0", false, 1)

	ri, _ := h.GetRoundInfo(0)
	if f := ri.Events[byName["D0"].Hex()].Famous; f != common.False {
		t.Fatalf("D0 should not be famous, got %v", f)
	}
	if _, ok := h.undecided[0]; ok {
		t.Fatal("undecided counter of round 0 should be gone")
	}

	if len(obs.finalized) != 1 || obs.finalized[0] != 0 {
		t.Fatalf("round 0 should be finalized, got %v", obs.finalized)
	}
	if len(c.events) != 3 {
		t.Fatalf("only the ancestors of A0, B0 and C0 should be received, got %d", len(c.events))
	}
	for i, name := range []string{"A0", "B0", "C0"} {
		if c.events[i].Event.Hex() != byName[name].Hex() {
			t.Fatalf("consensus event %d should be %s, not %s", i, name, c.events[i].Event)
		}
	}
	if rr := h.RoundReceived(byName["D0"].Hex()); rr != event.NoConsensusRound {
		t.Fatalf("D0 should not be received, got round %d", rr)
	}

	t.Run("Late witness", func(t *testing.T) {
		stored, err := h.Store.GetRound(0)
		if err != nil {
			t.Fatal(err)
		}
		before, _ := stored.Marshal()

		late := event.New(creators["D"], nil, nil, 0, baseTime.Add(20*time.Second), [][]byte{[]byte("D0'")})
		if err := h.InsertEventAndRunConsensus(late); err != nil {
			t.Fatal(err)
		}

		if r, _ := h.Round(late.Hex()); r != 0 || !h.IsWitness(late.Hex()) {
			t.Fatalf("late event should be a round 0 witness, round %d", r)
		}
		ri, _ := h.GetRoundInfo(0)
		if f := ri.Events[late.Hex()].Famous; f != common.False {
			t.Fatalf("late witness should not be famous, got %v", f)
		}
		if len(obs.decided) != 4 {
			t.Fatalf("a late witness should not go through an election, %d decisions", len(obs.decided))
		}
		if _, ok := h.undecided[0]; ok {
			t.Fatal("a late witness should not reopen round 0")
		}
		if _, ok := h.pendingRounds.Get(0); ok {
			t.Fatal("a late witness should not queue round 0 again")
		}

		stored, err = h.Store.GetRound(0)
		if err != nil {
			t.Fatal(err)
		}
		after, _ := stored.Marshal()
		if string(before) != string(after) {
			t.Fatal("finalized round 0 should not change in the store")
		}
	})
}

/*
The round 1 witnesses split evenly over D0. Round 2 carries the tie, and the
first round 3 witness sees a supermajority of round 2 voting yes.

      A    B    C    D
r3         B5
r2    A3   B4   C4   D2
           |    |
r1    A2   B3   C3   D1
      |    |    |    |
      |    B2   C2   |
      |    |    |    |
r0    A1   B1   C1   |
      |    |    |    |
      A0   B0   C0   D0

B3 and C3 are not witnesses.

other-parents:
  A1 <- B0         B3 <- D0         C3 <- D1         D2 <- C4
  B1 <- A1, C0     C2 <- B3         B4 <- C3         B5 <- D2
  C1 <- B1         D1 <- C2         A3 <- B4
  A2 <- C1                          C4 <- A3
  B2 <- A2

round 1 votes on D0: A2 no, B2 no, C2 yes, D1 yes
*/
func splitVotePlays() []play {
	return []play{
		{"A", "A0", "", nil, 1},
		{"B", "B0", "", nil, 2},
		{"C", "C0", "", nil, 3},
		{"D", "D0", "", nil, 4},
		{"A", "A1", "A0", []string{"B0"}, 5},
		{"B", "B1", "B0", []string{"A1", "C0"}, 6},
		{"C", "C1", "C0", []string{"B1"}, 7},
		{"A", "A2", "A1", []string{"C1"}, 8},
		{"B", "B2", "B1", []string{"A2"}, 9},
		{"B", "B3", "B2", []string{"D0"}, 10},
		{"C", "C2", "C1", []string{"B3"}, 11},
		{"D", "D1", "D0", []string{"C2"}, 12},
		{"C", "C3", "C2", []string{"D1"}, 13},
		{"B", "B4", "B3", []string{"C3"}, 14},
		{"A", "A3", "A2", []string{"B4"}, 15},
		{"C", "C4", "C3", []string{"A3"}, 16},
		{"D", "D2", "D1", []string{"C4"}, 17},
		{"B", "B5", "B4", []string{"D2"}, 18},
	}
}

type roundItem struct {
	name    string
	round   int
	witness bool
}

func checkRounds(t *testing.T, h *Hashgraph, byName map[string]*event.Event, items []roundItem) {
	for _, exp := range items {
		x := byName[exp.name].Hex()
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

var splitVoteRounds = []roundItem{
	{"C1", 0, false},
	{"A2", 1, true},
	{"B2", 1, true},
	{"B3", 1, false},
	{"C2", 1, true},
	{"D1", 1, true},
	{"C3", 1, false},
	{"B4", 2, true},
	{"A3", 2, true},
	{"C4", 2, true},
	{"D2", 2, true},
	{"B5", 3, true},
}

func TestFameMultipleRounds(t *testing.T) {
	plays := splitVotePlays()
	byName, _ := buildEvents(plays)
	d0 := byName["D0"].Hex()
	obs := &fameRecorder{}

	undecidedD0 := func(h *Hashgraph) {
		if n := h.undecided[0]; n != 1 {
			t.Fatalf("round 0 should have 1 undecided witness, not %d", n)
		}
		if _, ok := obs.find(d0); ok {
			t.Fatal("fame of D0 should not be decided yet")
		}
	}

	checks := map[string]func(h *Hashgraph){
		"C2": func(h *Hashgraph) {
			undecidedD0(h)
			if len(obs.decided) != 3 {
				t.Fatalf("A0, B0 and C0 should be decided after C2, got %d decisions", len(obs.decided))
			}
		},
		"D1": undecidedD0,
		"B4": undecidedD0,
		"C4": func(h *Hashgraph) {
			undecidedD0(h)
			// round 1 is decided but waits for round 0
			if pr, ok := h.pendingRounds.Get(1); !ok || !pr.Decided {
				t.Fatal("round 1 should be decided after C4")
			}
			if n := h.undecided[1]; n != 0 {
				t.Fatalf("round 1 should have no undecided witness, not %d", n)
			}
			if len(obs.finalized) != 0 {
				t.Fatalf("no round should be finalized before D0 is decided, got %v", obs.finalized)
			}
		},
		"D2": undecidedD0,
	}

	h, c := playSteps(t, DefaultConfig(), plays, obs, checks)

	checkRounds(t, h, byName, splitVoteRounds)

	for _, name := range []string{"A0", "B0", "C0"} {
		checkFame(t, obs, byName, name, true, 1)
	}
	for _, name := range []string{"A2", "B2", "C2", "D1"} {
		checkFame(t, obs, byName, name, true, 1)
	}
	checkFame(t, obs, byName, "D0", true, 3)

	if len(obs.finalized) != 2 || obs.finalized[0] != 0 || obs.finalized[1] != 1 {
		t.Fatalf("rounds 0 and 1 should be finalized, got %v", obs.finalized)
	}
	if _, ok := h.undecided[0]; ok {
		t.Fatal("undecided counter of round 0 should be gone")
	}

	// round 0 receives the genesis events, round 1 everything up to D1
	if len(c.events) != 12 {
		t.Fatalf("12 consensus events expected, got %d", len(c.events))
	}
	checkConsensusOrder(t, c.events)
	if rr := h.RoundReceived(byName["D0"].Hex()); rr != 0 {
		t.Fatalf("D0 should be received in round 0, not %d", rr)
	}
	if rr := h.RoundReceived(byName["B3"].Hex()); rr != 1 {
		t.Fatalf("B3 should be received in round 1, not %d", rr)
	}
	if rr := h.RoundReceived(byName["C3"].Hex()); rr != event.NoConsensusRound {
		t.Fatalf("C3 should not be received yet, got round %d", rr)
	}
}

// With a coin round every other voting round, round 2 votes with the middle
// bit of each witness hash, and round 3 decides only if B5 strongly sees
// matching coins.
func TestFameCoinRound(t *testing.T) {
	conf := DefaultConfig()
	conf.CoinRoundFreq = 2

	plays := splitVotePlays()
	byName, _ := buildEvents(plays)
	obs := &fameRecorder{}

	h, c := playSteps(t, conf, plays, obs, nil)

	checkRounds(t, h, byName, splitVoteRounds)

	// B5 strongly sees A3, B4 and C4 but not D2
	coins := []bool{}
	for _, name := range []string{"A3", "B4", "C4"} {
		coins = append(coins, middleBit(byName[name].Hex()))
	}

	if coins[0] == coins[1] && coins[1] == coins[2] {
		checkFame(t, obs, byName, "D0", coins[0], 3)
		if len(obs.finalized) != 2 {
			t.Fatalf("rounds 0 and 1 should be finalized, got %v", obs.finalized)
		}
		// D0 is received in round 0 if famous, in round 1 otherwise
		if len(c.events) != 12 {
			t.Fatalf("12 consensus events expected, got %d", len(c.events))
		}
		return
	}

	if _, ok := obs.find(byName["D0"].Hex()); ok {
		t.Fatal("split coins should leave D0 undecided")
	}
	if n := h.undecided[0]; n != 1 {
		t.Fatalf("round 0 should have 1 undecided witness, not %d", n)
	}
	if len(obs.finalized) != 0 {
		t.Fatalf("no round should be finalized, got %v", obs.finalized)
	}
}
