package net

import (
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/chorus/src/common"
	"github.com/mosaicnetworks/chorus/src/hashgraph"
)

const (
	INMEM = iota
	TCP
	numTestTransports // NOTE: must be last
)

func NewTestTransport(ttype int, addr string, t *testing.T) Transport {
	switch ttype {
	case INMEM:
		_, it := NewInmemTransport(addr, time.Second)
		return it
	case TCP:
		tt, err := NewTCPTransport(addr, "", 2, time.Second, common.NewTestEntry(t, "net"))
		if err != nil {
			t.Fatal(err)
		}
		go tt.Listen()
		return tt
	default:
		panic("Unknown transport type")
	}
}

// connect routes in-memory transports to each other. TCP transports need
// nothing.
func connect(ttype int, trans1, trans2 Transport) {
	if ttype != INMEM {
		return
	}
	itrans1 := trans1.(*InmemTransport)
	itrans2 := trans2.(*InmemTransport)
	itrans1.Connect(trans2.LocalAddr(), trans2)
	itrans2.Connect(trans1.LocalAddr(), trans1)
}

func testWireEvents() []hashgraph.WireEvent {
	return []hashgraph.WireEvent{
		{
			Body: hashgraph.EventBody{
				Transactions: [][]byte{[]byte("tx1"), []byte("tx2")},
				Parents:      []string{"0xSELF", "0xOTHER"},
				Creator:      []byte("creator"),
				Index:        1,
				Timestamp:    1000,
			},
			Signature: "abc|def",
		},
		{
			Body: hashgraph.EventBody{
				Parents:   []string{"", ""},
				Creator:   []byte("other"),
				Index:     0,
				Timestamp: 2000,
			},
			Signature: "123|456",
		},
	}
}

func TestTransport_StartStop(t *testing.T) {
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans := NewTestTransport(ttype, "127.0.0.1:0", t)
		if err := trans.Close(); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
}

func TestTransport_Sync(t *testing.T) {
	addrs := []string{"inmem-1", "127.0.0.1:0"}
	addrs2 := []string{"inmem-2", "127.0.0.1:0"}
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addrs[ttype], t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		args := SyncRequest{
			FromID: 0,
			Known: map[uint32]int{
				0: 1,
				1: 2,
				2: 3,
			},
			Wanted:    []string{"0xMISSING"},
			SyncLimit: 100,
		}
		resp := SyncResponse{
			FromID: 1,
			Head:   "0xHEAD",
			Events: testWireEvents(),
			Known: map[uint32]int{
				0: 5,
				1: 5,
				2: 6,
			},
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req, ok := rpc.Command.(*SyncRequest)
				if !ok || !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", rpc.Command, args)
				}
				rpc.Respond(&resp, nil)
			case <-time.After(time.Second):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addrs2[ttype], t)
		defer trans2.Close()
		connect(ttype, trans1, trans2)

		var out SyncResponse
		if err := trans2.Sync(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_EagerSync(t *testing.T) {
	addrs := []string{"inmem-1", "127.0.0.1:0"}
	addrs2 := []string{"inmem-2", "127.0.0.1:0"}
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addrs[ttype], t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		args := EagerSyncRequest{
			FromID: 0,
			Events: testWireEvents(),
		}
		resp := EagerSyncResponse{
			FromID:  1,
			Success: true,
		}

		go func() {
			select {
			case rpc := <-rpcCh:
				req, ok := rpc.Command.(*EagerSyncRequest)
				if !ok || !reflect.DeepEqual(req, &args) {
					t.Errorf("command mismatch: %#v %#v", rpc.Command, args)
				}
				rpc.Respond(&resp, nil)
			case <-time.After(time.Second):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addrs2[ttype], t)
		defer trans2.Close()
		connect(ttype, trans1, trans2)

		var out EagerSyncResponse
		if err := trans2.EagerSync(trans1.LocalAddr(), &args, &out); err != nil {
			t.Fatalf("err: %v", err)
		}

		if !reflect.DeepEqual(resp, out) {
			t.Fatalf("response mismatch: %#v %#v", resp, out)
		}
	}
}

func TestTransport_RemoteError(t *testing.T) {
	addrs := []string{"inmem-1", "127.0.0.1:0"}
	addrs2 := []string{"inmem-2", "127.0.0.1:0"}
	for ttype := 0; ttype < numTestTransports; ttype++ {
		trans1 := NewTestTransport(ttype, addrs[ttype], t)
		defer trans1.Close()
		rpcCh := trans1.Consumer()

		go func() {
			select {
			case rpc := <-rpcCh:
				rpc.Respond(&SyncResponse{}, errBoom)
			case <-time.After(time.Second):
				t.Errorf("timeout")
			}
		}()

		trans2 := NewTestTransport(ttype, addrs2[ttype], t)
		defer trans2.Close()
		connect(ttype, trans1, trans2)

		var out SyncResponse
		err := trans2.Sync(trans1.LocalAddr(), &SyncRequest{FromID: 3}, &out)
		if !IsRemoteError(err) {
			t.Fatalf("expected RemoteError, got %v", err)
		}
	}
}

func TestTransport_Unreachable(t *testing.T) {
	_, trans := NewInmemTransport("", 50*time.Millisecond)
	defer trans.Close()

	var out SyncResponse
	err := trans.Sync("nowhere", &SyncRequest{}, &out)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}

	// a connected peer that never consumes
	_, silent := NewInmemTransport("silent", 50*time.Millisecond)
	defer silent.Close()
	trans.Connect("silent", silent)

	err = trans.Sync("silent", &SyncRequest{}, &out)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError on timeout, got %v", err)
	}

	tcp, err := NewTCPTransport("127.0.0.1:0", "", 1, 200*time.Millisecond, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatal(err)
	}
	addr := tcp.LocalAddr()
	tcp.Close()

	client, err := NewTCPTransport("127.0.0.1:0", "", 1, 200*time.Millisecond, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	err = client.Sync(addr, &SyncRequest{}, &out)
	if !IsTransportError(err) {
		t.Fatalf("expected TransportError from closed listener, got %v", err)
	}
}
