package net

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/chorus/src/common"
)

var errBoom = errors.New("boom")

func TestTCPTransport_BadAddr(t *testing.T) {
	_, err := NewTCPTransport("0.0.0.0:0", "", 1, 0, common.NewTestEntry(t, "net"))
	if err != errNotAdvertisable {
		t.Fatalf("err: %v", err)
	}
}

func TestTCPTransport_WithAdvertise(t *testing.T) {
	trans, err := NewTCPTransport("0.0.0.0:0", "127.0.0.1:12345", 1, 0, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans.Close()
	if trans.AdvertiseAddr() != "127.0.0.1:12345" {
		t.Fatalf("bad: %v", trans.AdvertiseAddr())
	}
}

func TestNetworkTransport_PooledConn(t *testing.T) {
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	go trans1.Listen()
	rpcCh := trans1.Consumer()

	args := SyncRequest{
		FromID: 0,
		Known: map[uint32]int{
			0: 1,
			1: 2,
			2: 3,
		},
	}
	resp := SyncResponse{
		FromID: 1,
		Events: testWireEvents(),
		Known: map[uint32]int{
			0: 5,
			1: 5,
			2: 6,
		},
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case rpc := <-rpcCh:
				rpc.Respond(&resp, nil)
			case <-done:
				return
			}
		}
	}()

	trans2, err := NewTCPTransport("127.0.0.1:0", "", 3, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()

	errCh := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			var out SyncResponse
			if err := trans2.Sync(trans1.LocalAddr(), &args, &out); err != nil {
				errCh <- err
				return
			}
			if !reflect.DeepEqual(resp, out) {
				errCh <- errors.New("response mismatch")
				return
			}
			errCh <- nil
		}()
	}

	for i := 0; i < 5; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	trans2.connPoolLock.Lock()
	pooled := len(trans2.connPool[trans1.LocalAddr()])
	trans2.connPoolLock.Unlock()
	if pooled < 1 || pooled > 3 {
		t.Fatalf("expected between 1 and 3 pooled connections, got %d", pooled)
	}
}

func TestNetworkTransport_BadRPCType(t *testing.T) {
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 1, time.Second, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatal(err)
	}
	defer trans1.Close()
	go trans1.Listen()

	trans2, err := NewTCPTransport("127.0.0.1:0", "", 1, 500*time.Millisecond, common.NewTestEntry(t, "net"))
	if err != nil {
		t.Fatal(err)
	}
	defer trans2.Close()

	var out SyncResponse
	err = trans2.genericRPC(trans1.LocalAddr(), 42, &SyncRequest{}, &out)
	if err == nil {
		t.Fatal("an unknown rpc type should fail")
	}
	if !IsTransportError(err) {
		t.Fatalf("expected the server to drop the connection, got %v", err)
	}
}
