package hashgraph

import (
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgraph-io/badger"
)

func TestBadgerStorePersistsEvents(t *testing.T) {
	peerSet, signers := newPeerSet(t, 3)
	dir := filepath.Join(t.TempDir(), "badger")

	store, err := NewBadgerStore(peerSet, cacheSize, dir, false, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}

	h := NewHashgraph(peerSet, store, testVerifier{}, nil, testLogger(t))

	events := []*Event{}
	for i, s := range signers {
		ev := NewEvent([][]byte{[]byte("genesis")}, []string{"", ""}, s.pub, 0, int64(i))
		if err := ev.Sign(s); err != nil {
			t.Fatal(err)
		}
		if err := h.InsertEvent(ev); err != nil {
			t.Fatal(err)
		}
		events = append(events, ev)
	}

	child := NewEvent(nil, []string{events[0].Hex(), events[1].Hex()}, signers[0].pub, 1, 10)
	if err := child.Sign(signers[0]); err != nil {
		t.Fatal(err)
	}
	if err := h.InsertEvent(child); err != nil {
		t.Fatal(err)
	}
	events = append(events, child)

	dbEvents, err := store.dbTopologicalEvents()
	if err != nil {
		t.Fatal(err)
	}

	if len(dbEvents) != len(events) {
		t.Fatalf("expected %d events in db, got %d", len(events), len(dbEvents))
	}

	for i, ev := range dbEvents {
		if ev.Hex() != events[i].Hex() {
			t.Fatalf("db event %d should be %s, not %s", i, events[i].Hex(), ev.Hex())
		}
		if ev.Signature != events[i].Signature {
			t.Fatalf("db event %d lost its signature", i)
		}
	}

	round, err := store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if len(round.Witnesses()) != 3 {
		t.Fatalf("round 0 should have 3 witnesses, got %d", len(round.Witnesses()))
	}

	//rounds are derived data and stay in the cache
	err = store.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			if !strings.HasPrefix(key, topoPrefix+"_") && !strings.HasPrefix(key, eventPrefix+"_") {
				t.Errorf("unexpected key in db: %s", key)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBadgerStoreMaintenanceMode(t *testing.T) {
	peerSet, signers := newPeerSet(t, 3)
	dir := filepath.Join(t.TempDir(), "badger")

	store, err := NewBadgerStore(peerSet, cacheSize, dir, true, testLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ev := NewEvent(nil, []string{"", ""}, signers[0].pub, 0, 0)
	if err := ev.Sign(signers[0]); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEvent(ev); err != nil {
		t.Fatal(err)
	}

	if _, err := store.GetEvent(ev.Hex()); err != nil {
		t.Fatalf("event should be in the cache: %v", err)
	}

	dbEvents, err := store.dbTopologicalEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(dbEvents) != 0 {
		t.Fatalf("maintenance mode should not write to the db, found %d events", len(dbEvents))
	}
}

func TestBadgerBootstrap(t *testing.T) {
	peerSet, signers := newPeerSet(t, 4)
	dir := filepath.Join(t.TempDir(), "badger")

	stores := make([]Store, len(signers))
	for i := range signers {
		if i == 0 {
			s, err := NewBadgerStore(peerSet, cacheSize, dir, false, quietLogger())
			if err != nil {
				t.Fatal(err)
			}
			stores[i] = s
			continue
		}
		stores[i] = NewInmemStore(peerSet, cacheSize)
	}

	sim, err := newSimulation(peerSet, signers, stores, quietLogger())
	if err != nil {
		t.Fatal(err)
	}

	if err := sim.run(rand.New(rand.NewSource(5)), 200); err != nil {
		t.Fatal(err)
	}

	original := sim.nodes[0].hg
	if original.Store.ConsensusEventsCount() == 0 {
		t.Fatal("no consensus before restart")
	}
	eventCount := original.Store.EventCount()

	if err := original.Store.Close(); err != nil {
		t.Fatal(err)
	}

	store, err := NewBadgerStore(peerSet, cacheSize, dir, false, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	recovered := NewHashgraph(peerSet, store, testVerifier{}, nil, quietLogger())
	if err := recovered.Bootstrap(); err != nil {
		t.Fatal(err)
	}

	if store.GetMaintenanceMode() {
		t.Fatal("bootstrap should restore the maintenance mode")
	}

	if c := recovered.Store.EventCount(); c != eventCount {
		t.Fatalf("recovered %d events, expected %d", c, eventCount)
	}

	if recovered.Store.ConsensusEventsCount() == 0 {
		t.Fatal("no consensus after bootstrap")
	}

	if err := checkAgreement(original, recovered); err != nil {
		t.Fatal(err)
	}

	//replaying did not duplicate anything on disk
	dbEvents, err := store.dbTopologicalEvents()
	if err != nil {
		t.Fatal(err)
	}
	if len(dbEvents) != eventCount {
		t.Fatalf("db holds %d events, expected %d", len(dbEvents), eventCount)
	}
}
