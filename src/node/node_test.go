package node

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/swirl/src/event"
	"github.com/mosaicnetworks/swirl/src/hashgraph"
	"github.com/mosaicnetworks/swirl/src/node/state"
)

type publisher struct {
	sync.Mutex
	events []*event.Event
}

func (p *publisher) Publish(ev *event.Event) {
	p.Lock()
	defer p.Unlock()
	p.events = append(p.events, ev)
}

func (p *publisher) count() int {
	p.Lock()
	defer p.Unlock()
	return len(p.events)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNodeLifecycle(t *testing.T) {
	validators, book := initValidators(t, 4)
	conf := TestConfig(t)
	pub := &publisher{}

	node := NewNode(conf, validators[0], book, hashgraph.NewInmemStore(1000), nil, pub)
	if err := node.Init(); err != nil {
		t.Fatal(err)
	}
	node.RunAsync()

	// The first heartbeat creates the genesis event.
	waitFor(t, "genesis event", func() bool { return pub.count() > 0 })

	// Genesis events of the other nodes.
	for _, v := range validators[1:] {
		ev := event.New(v.ID(), nil, nil, 0, time.Now().UTC(), nil)
		if err := ev.Sign(v.Key); err != nil {
			t.Fatal(err)
		}
		if err := node.Submit(context.Background(), ev); err != nil {
			t.Fatalf("submitting event: %v", err)
		}
	}

	waitFor(t, "events received", func() bool {
		return node.Stats()["events_received"] == "3"
	})

	// The node now has useful other-parents and creates a second event.
	waitFor(t, "second event", func() bool { return pub.count() > 1 })

	pub.Lock()
	second := pub.events[1]
	pub.Unlock()
	if len(second.OtherParents()) == 0 {
		t.Fatal("second event should cite other-parents")
	}

	stats := node.Stats()
	if stats["state"] != state.Running.String() {
		t.Fatalf("state should be Running, not %s", stats["state"])
	}
	if stats["id"] != strconv.FormatUint(uint64(node.ID()), 10) {
		t.Fatalf("stats id should be %d, not %s", node.ID(), stats["id"])
	}

	node.Shutdown()
	node.Shutdown()

	if s := node.GetState(); s != state.Shutdown {
		t.Fatalf("state should be Shutdown, not %s", s)
	}

	err := node.Submit(context.Background(), second)
	if err != ErrShutdown {
		t.Fatalf("Submit after Shutdown should return ErrShutdown, not %v", err)
	}
}

func TestNodeDuplicateIsNotRejected(t *testing.T) {
	validators, book := initValidators(t, 4)
	conf := TestConfig(t)

	node := NewNode(conf, validators[0], book, hashgraph.NewInmemStore(1000), nil, nil)
	defer node.Shutdown()

	ev := event.New(validators[1].ID(), nil, nil, 0, time.Now().UTC(), nil)
	node.processEvent(ev)
	node.processEvent(ev)

	stats := node.Stats()
	if stats["events_received"] != "1" {
		t.Fatalf("events_received should be 1, not %s", stats["events_received"])
	}
	if stats["events_rejected"] != "0" {
		t.Fatalf("a duplicate should not count as rejected, got %s", stats["events_rejected"])
	}

	unknown := event.New(12345, nil, nil, 0, time.Now().UTC(), nil)
	node.processEvent(unknown)
	if node.Stats()["events_rejected"] != "1" {
		t.Fatal("event from an unknown creator should be rejected")
	}
	if node.GetState() != state.Running {
		t.Fatal("a rejected event should not halt the node")
	}
}

func TestNodeHalt(t *testing.T) {
	validators, book := initValidators(t, 4)
	conf := TestConfig(t)

	node := NewNode(conf, validators[0], book, hashgraph.NewInmemStore(1000), nil, nil)
	defer node.Shutdown()

	done := make(chan struct{})
	go func() {
		node.Run()
		close(done)
	}()

	node.handleError(hashgraph.InvariantError{}, "test")

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run should return after the node halted")
	}

	if s := node.GetState(); s != state.Halted {
		t.Fatalf("state should be Halted, not %s", s)
	}
	if !hashgraph.IsInvariantViolation(node.Err()) {
		t.Fatalf("Err should return the invariant violation, not %v", node.Err())
	}

	ev := event.New(validators[1].ID(), nil, nil, 0, time.Now().UTC(), nil)
	if err := node.Submit(context.Background(), ev); err != ErrHalted {
		t.Fatalf("Submit on a halted node should return ErrHalted, not %v", err)
	}

	// Queries still work.
	if _, err := node.GetConsensusEvent(0); err == nil {
		t.Fatal("there should be no consensus event")
	}
}

func TestNodeShutdownDuringCommit(t *testing.T) {
	validators, book := initValidators(t, 4)
	conf := TestConfig(t)

	node := NewNode(conf, validators[0], book, hashgraph.NewInmemStore(1000), nil, nil)
	defer node.Shutdown()

	node.handleError(fmt.Errorf("round 3: %w", ErrShutdown), "test")

	if s := node.GetState(); s != state.Running {
		t.Fatalf("state should still be Running, not %s", s)
	}
	if node.Err() != nil {
		t.Fatalf("Err should be nil, not %v", node.Err())
	}
	if node.Stats()["events_rejected"] != "0" {
		t.Fatal("an interrupted commit should not count as a rejected event")
	}
}

func TestNodeSubmitContext(t *testing.T) {
	validators, book := initValidators(t, 4)
	conf := TestConfig(t)
	conf.IntakeQueue = 1

	node := NewNode(conf, validators[0], book, hashgraph.NewInmemStore(1000), nil, nil)
	defer node.Shutdown()

	ev := event.New(validators[1].ID(), nil, nil, 0, time.Now().UTC(), nil)

	// The node is not running: the first event fills the queue.
	if err := node.Submit(context.Background(), ev); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := node.Submit(ctx, ev); err != context.DeadlineExceeded {
		t.Fatalf("Submit on a full queue should time out, got %v", err)
	}
}
