package net

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// NewInmemAddr returns a new in-memory addr with a randomly generated UUID as
// the ID.
func NewInmemAddr() string {
	return generateUUID()
}

// generateUUID is used to generate a random UUID.
func generateUUID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	return fmt.Sprintf("%08x-%04x-%04x-%04x-%12x",
		buf[0:4],
		buf[4:6],
		buf[6:8],
		buf[8:10],
		buf[10:16])
}

// InmemTransport implements the Transport interface, to allow chorus nodes to
// be tested in-memory without going over a network. Requests are handed to
// the connected peer's consumer channel as they are, without serialization.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localAddr  string
	peers      map[string]*InmemTransport
	timeout    time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewInmemTransport is used to initialize a new transport and generates a
// random local address if none is specified. A zero timeout defaults to
// 500ms.
func NewInmemTransport(addr string, timeout time.Duration) (string, *InmemTransport) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localAddr:  addr,
		peers:      make(map[string]*InmemTransport),
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
	}
	return addr, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// AdvertiseAddr implements the Transport interface.
func (i *InmemTransport) AdvertiseAddr() string {
	return i.localAddr
}

// Sync implements the Transport interface.
func (i *InmemTransport) Sync(target string, args *SyncRequest, resp *SyncResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}

	out, ok := rpcResp.Response.(*SyncResponse)
	if !ok {
		return &SerializationError{Op: "sync response", Err: fmt.Errorf("unexpected type %T", rpcResp.Response)}
	}
	*resp = *out
	return nil
}

// EagerSync implements the Transport interface.
func (i *InmemTransport) EagerSync(target string, args *EagerSyncRequest, resp *EagerSyncResponse) error {
	rpcResp, err := i.makeRPC(target, args)
	if err != nil {
		return err
	}

	out, ok := rpcResp.Response.(*EagerSyncResponse)
	if !ok {
		return &SerializationError{Op: "eager-sync response", Err: fmt.Errorf("unexpected type %T", rpcResp.Response)}
	}
	*resp = *out
	return nil
}

func (i *InmemTransport) makeRPC(target string, args interface{}) (rpcResp RPCResponse, err error) {
	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		err = &TransportError{Op: "connect", Target: target, Err: fmt.Errorf("no route to peer")}
		return
	}

	respCh := make(chan RPCResponse, 1)
	timeout := time.NewTimer(i.timeout)
	defer timeout.Stop()

	select {
	case peer.consumerCh <- RPC{Command: args, RespChan: respCh}:
	case <-peer.shutdownCh:
		err = &TransportError{Op: "send", Target: target, Err: ErrTransportShutdown}
		return
	case <-timeout.C:
		err = &TransportError{Op: "send", Target: target, Err: fmt.Errorf("command timed out")}
		return
	}

	select {
	case rpcResp = <-respCh:
		if rpcResp.Error != nil {
			err = &RemoteError{Target: target, Msg: rpcResp.Error.Error()}
		}
	case <-timeout.C:
		err = &TransportError{Op: "receive", Target: target, Err: fmt.Errorf("command timed out")}
	}
	return
}

// Connect is used to connect this transport to another transport for a given
// peer name. This allows for local routing.
func (i *InmemTransport) Connect(peer string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = trans
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	i.shutdownOnce.Do(func() { close(i.shutdownCh) })
	return nil
}

// Listen blocks until the transport is closed. There is nothing to accept:
// peers write directly to the consumer channel.
func (i *InmemTransport) Listen() {
	<-i.shutdownCh
}
