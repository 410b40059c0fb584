package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/chorus/src/config"
	"github.com/mosaicnetworks/chorus/src/crypto/keys"
	hg "github.com/mosaicnetworks/chorus/src/hashgraph"
	"github.com/mosaicnetworks/chorus/src/net"
	"github.com/mosaicnetworks/chorus/src/node"
	"github.com/mosaicnetworks/chorus/src/peers"
	"github.com/mosaicnetworks/chorus/src/proxy/dummy"
)

// initNode starts a single node and waits until the given transactions are
// committed.
func initNode(t *testing.T, txs []string) *node.Node {
	conf := config.NewTestConfig(t)

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}
	peerSet, err := peers.NewPeerSet([]*peers.Peer{
		peers.NewPeer(keys.PublicKeyHex(&key.PublicKey), "solo", "solo"),
	})
	if err != nil {
		t.Fatal(err)
	}

	_, trans := net.NewInmemTransport("solo", conf.TCPTimeout)
	app := dummy.NewInmemDummyClient(conf.Logger())

	n := node.NewNode(conf,
		node.NewValidator(key, "solo"),
		peerSet,
		hg.NewInmemStore(peerSet, conf.CacheSize),
		trans,
		app)
	if err := n.Init(); err != nil {
		t.Fatal(err)
	}
	n.RunAsync(context.Background())
	t.Cleanup(n.Shutdown)

	for _, tx := range txs {
		app.SubmitTx([]byte(tx))
	}

	deadline := time.Now().Add(10 * time.Second)
	for len(app.GetCommittedTransactions()) < len(txs) {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for transactions to be committed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	return n
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestService(t *testing.T) {
	n := initNode(t, []string{"tx0", "tx1", "tx2"})
	s := NewService("127.0.0.1:0", n, config.NewTestConfig(t).Logger().WithField("prefix", "service"))
	h := s.Handler()

	t.Run("Stats", func(t *testing.T) {
		rec := get(t, h, "/stats")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatal("missing CORS header")
		}
		stats := map[string]string{}
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatal(err)
		}
		if stats["moniker"] != "solo" {
			t.Fatalf("moniker should be solo, not %q", stats["moniker"])
		}
		if stats["consensus_events"] == "0" {
			t.Fatal("consensus_events should not be 0")
		}
	})

	var events []hg.ConsensusEvent

	t.Run("Events", func(t *testing.T) {
		rec := get(t, h, "/events?from=0&limit=2")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &events); err != nil {
			t.Fatal(err)
		}
		if len(events) == 0 || len(events) > 2 {
			t.Fatalf("expected 1 or 2 events, got %d", len(events))
		}
		for i, e := range events {
			if e.ConsensusOrder != i {
				t.Fatalf("events[%d] has consensus order %d", i, e.ConsensusOrder)
			}
		}
	})

	t.Run("Bad parameters", func(t *testing.T) {
		for _, url := range []string{"/events?from=abc", "/events?from=-1", "/events?limit=0", "/event/"} {
			if rec := get(t, h, url); rec.Code != http.StatusBadRequest {
				t.Fatalf("%s: expected 400, got %d", url, rec.Code)
			}
		}
	})

	t.Run("Event", func(t *testing.T) {
		if len(events) == 0 {
			t.Skip("no events")
		}
		rec := get(t, h, "/event/"+events[0].Hash)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var info node.EventInfo
		if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
			t.Fatal(err)
		}
		if info.Hash != events[0].Hash {
			t.Fatalf("expected event %s, got %s", events[0].Hash, info.Hash)
		}
		if info.ConsensusOrder == nil || *info.ConsensusOrder != 0 {
			t.Fatal("the first consensus event should have order 0")
		}

		if rec := get(t, h, "/event/0XDEADBEEF"); rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("Peers", func(t *testing.T) {
		rec := get(t, h, "/peers")
		if !strings.Contains(rec.Body.String(), "solo") {
			t.Fatalf("peers should contain the node: %s", rec.Body.String())
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rec := get(t, h, "/metrics")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "chorus_hashgraph_consensus_events") {
			t.Fatal("metrics should expose the consensus events gauge")
		}
	})
}
