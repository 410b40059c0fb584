package hashgraph

import (
	"testing"

	cm "github.com/mosaicnetworks/chorus/src/common"
)

type testParticipant struct {
	signer testSigner
	hex    string
}

func initInmemStore(t *testing.T, n int) (*InmemStore, []testParticipant) {
	peerSet, signers := newPeerSet(t, n)

	participants := []testParticipant{}
	for i, s := range signers {
		participants = append(participants, testParticipant{s, peerSet.Peers[i].PubKeyString()})
	}

	return NewInmemStore(peerSet, cacheSize), participants
}

func createTestEvents(t *testing.T, store *InmemStore, participants []testParticipant, count int) map[string][]*Event {
	events := make(map[string][]*Event)
	for _, p := range participants {
		items := []*Event{}
		selfParent := ""
		for k := 0; k < count; k++ {
			e := NewEvent([][]byte{[]byte("abc")}, []string{selfParent, ""}, p.signer.pub, k, int64(k))
			if err := e.Sign(p.signer); err != nil {
				t.Fatal(err)
			}
			if err := store.SetEvent(e); err != nil {
				t.Fatal(err)
			}
			items = append(items, e)
			selfParent = e.Hex()
		}
		events[p.hex] = items
	}
	return events
}

func TestInmemEvents(t *testing.T) {
	store, participants := initInmemStore(t, 3)
	testSize := 15
	events := createTestEvents(t, store, participants, testSize)

	t.Run("Get Events", func(t *testing.T) {
		for _, p := range participants {
			for k, ev := range events[p.hex] {
				rev, err := store.GetEvent(ev.Hex())
				if err != nil {
					t.Fatal(err)
				}
				if rev.Hex() != ev.Hex() {
					t.Fatalf("events[%s][%d] should be %s, not %s", p.hex, k, ev.Hex(), rev.Hex())
				}
			}
		}
	})

	t.Run("Participant Events", func(t *testing.T) {
		skipIndex := -1 //do not skip any indexes
		for _, p := range participants {
			pEvents, err := store.ParticipantEvents(p.hex, skipIndex)
			if err != nil {
				t.Fatal(err)
			}
			if l := len(pEvents); l != testSize {
				t.Fatalf("%s should have %d events, not %d", p.hex, testSize, l)
			}

			expectedEvents := events[p.hex][skipIndex+1:]
			for k, e := range expectedEvents {
				if e.Hex() != pEvents[k] {
					t.Fatalf("ParticipantEvents[%s][%d] should be %s, not %s", p.hex, k, e.Hex(), pEvents[k])
				}
			}

			tail, err := store.ParticipantEvents(p.hex, 9)
			if err != nil {
				t.Fatal(err)
			}
			if len(tail) != testSize-10 || tail[0] != events[p.hex][10].Hex() {
				t.Fatalf("events after index 9 should start at index 10")
			}
		}

		if _, err := store.ParticipantEvents("0XBOGUS", -1); !cm.IsStore(err, cm.UnknownParticipant) {
			t.Fatalf("expected UnknownParticipant, got %v", err)
		}
	})

	t.Run("Last Events and Known", func(t *testing.T) {
		for _, p := range participants {
			last, err := store.LastEventFrom(p.hex)
			if err != nil {
				t.Fatal(err)
			}
			if last != events[p.hex][testSize-1].Hex() {
				t.Fatalf("last event from %s is wrong", p.hex)
			}
		}

		known := store.KnownEvents()
		for _, p := range store.peers.List() {
			if known[p.ID()] != testSize-1 {
				t.Fatalf("known[%d] should be %d, not %d", p.ID(), testSize-1, known[p.ID()])
			}
		}
	})

	t.Run("Topological Events", func(t *testing.T) {
		all, err := store.TopologicalEvents(0, -1)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3*testSize {
			t.Fatalf("expected %d events, got %d", 3*testSize, len(all))
		}

		page, err := store.TopologicalEvents(10, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) != 5 || page[0].Hex() != all[10].Hex() {
			t.Fatal("wrong topological page")
		}

		if _, err := store.TopologicalEvents(len(all)+1, 5); !cm.IsStore(err, cm.TooLate) {
			t.Fatalf("expected TooLate, got %v", err)
		}
	})
}

func TestInmemUnknownParticipant(t *testing.T) {
	store, _ := initInmemStore(t, 2)
	_, strangers := newPeerSet(t, 1)

	e := NewEvent(nil, []string{"", ""}, strangers[0].pub, 0, 0)
	if err := store.SetEvent(e); !cm.IsStore(err, cm.UnknownParticipant) {
		t.Fatalf("expected UnknownParticipant, got %v", err)
	}

	if _, err := store.LastEventFrom(e.Creator()); !cm.IsStore(err, cm.Empty) {
		t.Fatalf("expected Empty, got %v", err)
	}
}

func TestInmemKnownEmpty(t *testing.T) {
	peerSet, _ := newPeerSet(t, 3)
	store := NewInmemStore(peerSet, cacheSize)

	known := store.KnownEvents()
	if len(known) != 3 {
		t.Fatalf("known should have 3 entries, not %d", len(known))
	}
	for id, k := range known {
		if k != -1 {
			t.Fatalf("known[%d] should be -1, not %d", id, k)
		}
	}

	if store.LastRound() != -1 {
		t.Fatalf("last round should be -1, not %d", store.LastRound())
	}
}

func TestInmemRounds(t *testing.T) {
	store, participants := initInmemStore(t, 3)
	events := createTestEvents(t, store, participants, 1)

	round := NewRoundInfo()
	for _, p := range participants {
		round.AddCreatedEvent(events[p.hex][0].Hex(), true)
	}

	if err := store.SetRound(0, round); err != nil {
		t.Fatal(err)
	}

	if c := store.LastRound(); c != 0 {
		t.Fatalf("last round should be 0, not %d", c)
	}

	storedRound, err := store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(storedRound.Witnesses()) != 3 {
		t.Fatalf("round 0 should have 3 witnesses")
	}

	if _, err := store.GetRound(1); !cm.IsStore(err, cm.KeyNotFound) {
		t.Fatalf("expected KeyNotFound, got %v", err)
	}
}

func TestInmemConsensusEvents(t *testing.T) {
	store, participants := initInmemStore(t, 2)
	events := createTestEvents(t, store, participants, 5)

	order := []*Event{}
	for _, p := range participants {
		order = append(order, events[p.hex]...)
	}
	for _, e := range order {
		if err := store.AddConsensusEvent(e); err != nil {
			t.Fatal(err)
		}
	}

	if c := store.ConsensusEventsCount(); c != 10 {
		t.Fatalf("expected 10 consensus events, got %d", c)
	}

	cases := []struct {
		from, limit int
		expected    int
	}{
		{0, -1, 10},
		{0, 4, 4},
		{8, 4, 2},
		{10, 4, 0},
		{-3, 2, 2},
	}

	for _, c := range cases {
		res, err := store.ConsensusEvents(c.from, c.limit)
		if err != nil {
			t.Fatal(err)
		}
		if len(res) != c.expected {
			t.Fatalf("ConsensusEvents(%d, %d) should return %d events, not %d", c.from, c.limit, c.expected, len(res))
		}
		start := c.from
		if start < 0 {
			start = 0
		}
		for k, h := range res {
			if h != order[start+k].Hex() {
				t.Fatalf("ConsensusEvents(%d, %d)[%d] is out of order", c.from, c.limit, k)
			}
		}
	}
}
